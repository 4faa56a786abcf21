package imot

import (
	"context"
	"errors"
	"net/http"

	"imot-scraper/config"
	"imot-scraper/models"
)

// failureClass is the classification of one fetch outcome. Every outcome
// falls into exactly one class.
type failureClass int

const (
	classNone failureClass = iota // success
	classTransient
	classTerminal
)

// edgeStatusCodes are gateway/edge errors treated as infrastructure hiccups
// and retried regardless of the configured retry set.
var edgeStatusCodes = map[int]bool{
	522: true,
	523: true,
	524: true,
	525: true,
}

// retryPolicy classifies fetch outcomes and decides re-enqueueing. Retries
// are bounded and each one runs at a lower scheduling priority than its
// predecessor.
type retryPolicy struct {
	maxAttempts int
	retryable   map[int]bool
}

func newRetryPolicy(cfg *config.Config) *retryPolicy {
	retryable := make(map[int]bool, len(cfg.RetryStatusCodes))
	for _, code := range cfg.RetryStatusCodes {
		retryable[code] = true
	}
	return &retryPolicy{maxAttempts: cfg.MaxRetries, retryable: retryable}
}

func (p *retryPolicy) classify(out FetchOutcome, err error) failureClass {
	switch {
	case err != nil && errors.Is(err, context.Canceled):
		// A cancelled run must not requeue work.
		return classTerminal
	case err != nil:
		// Transport errors, timeouts and renderer timeouts.
		return classTransient
	case out.StatusCode == http.StatusOK:
		return classNone
	case edgeStatusCodes[out.StatusCode]:
		return classTransient
	case p.retryable[out.StatusCode]:
		return classTransient
	default:
		return classTerminal
	}
}

// next produces the retry of task, with its attempt counter raised and its
// priority demoted. Returns false once the attempt bound is exhausted.
func (p *retryPolicy) next(task models.FetchTask) (models.FetchTask, bool) {
	bound := task.MaxAttempts
	if bound == 0 {
		bound = p.maxAttempts
	}
	if task.Attempt >= bound {
		return task, false
	}
	task.Attempt++
	task.Priority--
	return task, true
}

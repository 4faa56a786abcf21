package imot

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"imot-scraper/config"
	"imot-scraper/models"
	"imot-scraper/utils"
)

// indexContentSelector is the marker that tells the renderer a search page
// has finished loading its listing cards.
const indexContentSelector = "div.item"

// Scheduler dispatches fetch tasks under a global and a per-domain
// concurrency cap, with a self-adjusting inter-request delay. Tasks that
// need JavaScript go through the renderer; everything else goes through the
// static fetcher. Raw outcomes are handed back for classification, never
// surfaced to callers.
type Scheduler struct {
	fetcher  Fetcher
	renderer Renderer

	global    *semaphore.Weighted
	domainCap int64

	mu      sync.Mutex
	domains map[string]*semaphore.Weighted
	delay   time.Duration

	minDelay time.Duration
	maxDelay time.Duration
	target   float64

	log *zap.SugaredLogger
}

func NewScheduler(cfg *config.Config, fetcher Fetcher, renderer Renderer, log *zap.SugaredLogger) *Scheduler {
	return &Scheduler{
		fetcher:   fetcher,
		renderer:  renderer,
		global:    semaphore.NewWeighted(int64(cfg.GlobalConcurrency)),
		domainCap: int64(cfg.DomainConcurrency),
		domains:   make(map[string]*semaphore.Weighted),
		delay:     cfg.StartDelay,
		minDelay:  cfg.MinDelay,
		maxDelay:  cfg.MaxDelay,
		target:    cfg.TargetConcurrency,
		log:       log,
	}
}

// Do executes one fetch task: jittered delay, admission under both caps,
// then the static or rendering path.
func (s *Scheduler) Do(ctx context.Context, task models.FetchTask) (FetchOutcome, error) {
	if err := utils.Sleep(ctx, utils.Jitter(s.currentDelay())); err != nil {
		return FetchOutcome{}, err
	}

	if err := s.global.Acquire(ctx, 1); err != nil {
		return FetchOutcome{}, err
	}
	defer s.global.Release(1)

	domain := s.domainSem(hostOf(task.URL))
	if err := domain.Acquire(ctx, 1); err != nil {
		return FetchOutcome{}, err
	}
	defer domain.Release(1)

	var out FetchOutcome
	var err error
	if task.Render {
		start := time.Now()
		var html string
		html, err = s.renderer.Render(ctx, task.URL, indexContentSelector)
		out = FetchOutcome{Body: html, Latency: time.Since(start)}
		if err == nil {
			out.StatusCode = http.StatusOK
		}
	} else {
		out, err = s.fetcher.Fetch(ctx, task)
	}

	s.adjustDelay(out.Latency, err == nil && out.StatusCode == http.StatusOK)
	return out, err
}

func (s *Scheduler) currentDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delay
}

// adjustDelay keeps the request rate self-limiting: the delay converges on
// latency/target, so observed concurrency settles around the target ratio.
// Failed responses may raise the delay but never lower it.
func (s *Scheduler) adjustDelay(latency time.Duration, ok bool) {
	if latency <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := time.Duration(float64(latency) / s.target)
	next := (s.delay + wanted) / 2
	if !ok && next < s.delay {
		return
	}
	if next < s.minDelay {
		next = s.minDelay
	}
	if next > s.maxDelay {
		next = s.maxDelay
	}
	s.delay = next
}

func (s *Scheduler) domainSem(host string) *semaphore.Weighted {
	s.mu.Lock()
	defer s.mu.Unlock()
	sem, ok := s.domains[host]
	if !ok {
		sem = semaphore.NewWeighted(s.domainCap)
		s.domains[host] = sem
	}
	return sem
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return rawURL
	}
	return u.Hostname()
}

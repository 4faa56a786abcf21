package imot

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"go.uber.org/zap"

	"imot-scraper/config"
	"imot-scraper/models"
)

// Scheduling priorities. Index pages outrank listing fetches so pagination
// keeps advancing; retries are demoted below both.
const (
	indexPriority   = 10
	listingPriority = 0
)

var districtSlugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// ListingStore is the slice of the persistence layer the pipeline needs:
// an idempotent merge of extracted records. Per-record failures are
// absorbed by the store; only total storage loss comes back as an error.
type ListingStore interface {
	UpsertBatch(ctx context.Context, records []models.ListingRecord) (int, error)
}

// Controller composes scheduler, retry policy, extraction and storage into
// one run. A run is (city, district, freshness); per-task failures never
// abort it.
type Controller struct {
	cfg    *config.Config
	sched  *Scheduler
	policy *retryPolicy
	store  ListingStore
	log    *zap.SugaredLogger
}

func NewController(cfg *config.Config, sched *Scheduler, store ListingStore, log *zap.SugaredLogger) *Controller {
	return &Controller{
		cfg:    cfg,
		sched:  sched,
		policy: newRetryPolicy(cfg),
		store:  store,
		log:    log,
	}
}

// RunAsync executes the run on its own goroutine so the caller's own
// concurrency domain never blocks; the result arrives on the returned
// channel.
func (c *Controller) RunAsync(ctx context.Context, req models.RunRequest) <-chan models.RunResult {
	ch := make(chan models.RunResult, 1)
	go func() {
		ch <- c.Run(ctx, req)
	}()
	return ch
}

// Run validates the request and, unless cached freshness was asked for,
// crawls the district and merges the results into the store.
func (c *Controller) Run(ctx context.Context, req models.RunRequest) models.RunResult {
	if err := validateRequest(req); err != nil {
		return failure(models.CategoryConfig, err.Error())
	}

	if req.Freshness == models.FreshnessCached {
		c.log.Infow("serving cached listings, crawl skipped",
			"city", req.City, "district", req.District)
		return models.RunResult{
			OK:       true,
			Category: models.CategoryOK,
			Message:  "using cached listings",
		}
	}

	state := c.crawl(ctx, req)

	if err := ctx.Err(); err != nil {
		return failure(models.CategoryCancelled, "run cancelled before results were stored")
	}

	stored, err := c.store.UpsertBatch(ctx, state.records)
	if err != nil {
		c.log.Errorw("storage failure ended the run", "err", err)
		return failure(models.CategoryStorage, "could not persist crawled listings")
	}

	stats := models.RunStats{
		PagesFetched:    state.pages,
		ListingsStored:  stored,
		ListingsSkipped: state.skipped,
		TasksFailed:     state.failed,
	}
	return models.RunResult{
		OK:       true,
		Category: models.CategoryOK,
		Message: fmt.Sprintf("stored %d listings from %d index pages (%d tasks failed, %d listings skipped)",
			stored, state.pages, state.failed, state.skipped),
		Stats: stats,
	}
}

func validateRequest(req models.RunRequest) error {
	if req.City == "" {
		return errors.New("city is required")
	}
	if req.District == "" || !districtSlugPattern.MatchString(req.District) {
		return fmt.Errorf("unknown district slug %q (want a normalized slug like \"lyulin-5\")", req.District)
	}
	return nil
}

func failure(category models.FailureCategory, message string) models.RunResult {
	return models.RunResult{OK: false, Category: category, Message: message}
}

// crawlState is the mutable result of one crawl, shared by the workers.
type crawlState struct {
	mu      sync.Mutex
	records []models.ListingRecord
	seen    map[string]bool
	pages   int
	skipped int
	failed  int
}

func (s *crawlState) markSeenIfNew(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen[url] {
		return false
	}
	s.seen[url] = true
	return true
}

func (s *crawlState) addRecord(rec models.ListingRecord) {
	s.mu.Lock()
	s.records = append(s.records, rec)
	s.mu.Unlock()
}

func (s *crawlState) addPage() {
	s.mu.Lock()
	s.pages++
	s.mu.Unlock()
}

func (s *crawlState) addSkipped() {
	s.mu.Lock()
	s.skipped++
	s.mu.Unlock()
}

func (s *crawlState) addFailed() {
	s.mu.Lock()
	s.failed++
	s.mu.Unlock()
}

// crawl runs the task graph: the seed index page feeds the priority queue,
// a fixed worker pool drains it, and completion is the queue's pending
// count reaching zero. Within the district pagination is strictly
// sequential; listing fetches from one index page run concurrently.
func (c *Controller) crawl(ctx context.Context, req models.RunRequest) *crawlState {
	queue := newTaskQueue()
	state := &crawlState{seen: make(map[string]bool)}

	seed := models.FetchTask{
		URL:         SeedURL(c.cfg.BaseURL, req.District),
		Kind:        models.TaskIndex,
		District:    req.District,
		Page:        1,
		MaxAttempts: c.cfg.MaxRetries,
		Priority:    indexPriority,
		Render:      true,
	}
	c.log.Infow("starting crawl", "city", req.City, "district", req.District, "seed", seed.URL)
	queue.Push(seed)

	var wg sync.WaitGroup
	for i := 0; i < c.cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			c.worker(ctx, id, queue, state, req)
		}(i + 1)
	}
	wg.Wait()
	queue.Close()

	return state
}

func (c *Controller) worker(ctx context.Context, id int, queue *taskQueue, state *crawlState, req models.RunRequest) {
	for {
		task, ok := queue.Pop(ctx)
		if !ok {
			return
		}
		c.handle(ctx, task, queue, state, req)
	}
}

// handle runs one task to an outcome and settles it: success is processed,
// transient failures are requeued at demoted priority until the attempt
// bound, everything else is recorded as a failed task.
func (c *Controller) handle(ctx context.Context, task models.FetchTask, queue *taskQueue, state *crawlState, req models.RunRequest) {
	out, err := c.sched.Do(ctx, task)

	switch c.policy.classify(out, err) {
	case classNone:
		c.process(task, out.Body, queue, state, req)
		queue.Done()

	case classTransient:
		if retry, ok := c.policy.next(task); ok {
			c.log.Warnw("transient fetch failure, requeueing",
				"url", task.URL, "kind", task.Kind.String(),
				"attempt", retry.Attempt, "status", out.StatusCode, "err", err)
			queue.Requeue(retry)
			return // still the same pending task
		}
		state.addFailed()
		c.log.Errorw("task failed, attempts exhausted",
			"url", task.URL, "kind", task.Kind.String(),
			"attempts", task.Attempt+1, "status", out.StatusCode, "err", err)
		queue.Done()

	default:
		state.addFailed()
		c.log.Errorw("terminal fetch failure",
			"url", task.URL, "kind", task.Kind.String(),
			"status", out.StatusCode, "err", err)
		queue.Done()
	}
}

func (c *Controller) process(task models.FetchTask, body string, queue *taskQueue, state *crawlState, req models.RunRequest) {
	switch task.Kind {
	case models.TaskIndex:
		c.processIndexPage(task, body, queue, state)
	case models.TaskListing:
		c.processListingPage(task, body, state, req)
	}
}

// processIndexPage is the pagination step: emit one listing task per newly
// discovered link, then the next index page — discovered only after this
// one is parsed, so traversal stays sequential and bounded.
func (c *Controller) processIndexPage(task models.FetchTask, body string, queue *taskQueue, state *crawlState) {
	if ContainsCaptcha(body) {
		c.log.Errorw("captcha detected, stopping district traversal",
			"district", task.District, "page", task.Page)
		return
	}

	page, err := ParseIndexPage(body, task.URL)
	if err != nil {
		c.log.Errorw("could not parse index page", "url", task.URL, "err", err)
		return
	}
	state.addPage()

	if len(page.ListingURLs) == 0 {
		c.log.Warnw("index page has no listings, traversal ends",
			"district", task.District, "page", task.Page)
		return
	}

	fresh := 0
	for _, listingURL := range page.ListingURLs {
		if !state.markSeenIfNew(listingURL) {
			continue
		}
		fresh++
		queue.Push(models.FetchTask{
			URL:         listingURL,
			Kind:        models.TaskListing,
			District:    task.District,
			Page:        task.Page,
			MaxAttempts: c.cfg.MaxRetries,
			Priority:    listingPriority,
		})
	}
	c.log.Infow("index page parsed",
		"district", task.District, "page", task.Page,
		"listings", len(page.ListingURLs), "new", fresh)

	if page.NextURL == "" {
		return
	}
	if task.Page >= c.cfg.MaxPages {
		c.log.Warnw("page cap reached, traversal ends",
			"district", task.District, "page", task.Page, "cap", c.cfg.MaxPages)
		return
	}
	queue.Push(models.FetchTask{
		URL:         page.NextURL,
		Kind:        models.TaskIndex,
		District:    task.District,
		Page:        task.Page + 1,
		MaxAttempts: c.cfg.MaxRetries,
		Priority:    indexPriority,
		Render:      true,
	})
}

func (c *Controller) processListingPage(task models.FetchTask, body string, state *crawlState, req models.RunRequest) {
	rec, err := ExtractListing(body, task.URL, req.City, req.District, time.Now().UTC())
	if err != nil {
		state.addSkipped()
		c.log.Warnw("listing skipped", "url", task.URL, "reason", err)
		return
	}
	state.addRecord(*rec)
	c.log.Debugw("listing extracted", "source_id", rec.SourceID, "title", rec.Title)
}

package imot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imot-scraper/config"
	"imot-scraper/models"
	"imot-scraper/utils"
)

// getRenderer stands in for the headless browser: it fetches the page over
// plain HTTP, which is all the test server needs.
type getRenderer struct{}

func (getRenderer) Render(ctx context.Context, url, _ string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrRenderTimeout, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	return string(body), err
}

type fakeStore struct {
	mu      sync.Mutex
	records []models.ListingRecord
	err     error
}

func (f *fakeStore) UpsertBatch(_ context.Context, records []models.ListingRecord) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.records = append(f.records, records...)
	return len(records), nil
}

type hitCounter struct {
	mu   sync.Mutex
	hits map[string]int
}

func newHitCounter() *hitCounter { return &hitCounter{hits: make(map[string]int)} }

func (h *hitCounter) inc(path string) {
	h.mu.Lock()
	h.hits[path]++
	h.mu.Unlock()
}

func (h *hitCounter) count(path string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hits[path]
}

func fastConfig(baseURL string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.Workers = 3
	cfg.StartDelay = 0
	cfg.MinDelay = 0
	cfg.MaxDelay = 0
	cfg.MaxRetries = 2
	cfg.RequestTimeout = 5 * time.Second
	return cfg
}

func newTestController(cfg *config.Config, store ListingStore) *Controller {
	fetcher := NewStaticFetcher(cfg, utils.NopLogger())
	scheduler := NewScheduler(cfg, fetcher, getRenderer{}, utils.NopLogger())
	return NewController(cfg, scheduler, store, utils.NopLogger())
}

func indexHTML(listingPaths []string, nextPath string) string {
	html := "<html><body>"
	for _, p := range listingPaths {
		html += fmt.Sprintf(`<div class="item"><a href="%s">Обява</a></div>`, p)
	}
	if nextPath != "" {
		html += fmt.Sprintf(`<a class="next" href="%s">Следваща</a>`, nextPath)
	}
	return html + "</body></html>"
}

func listingHTML(title string) string {
	return fmt.Sprintf(`<html><body>
	<div class="advHeader"><div class="title">%s</div></div>
	<div id="cena">100 000 EUR</div>
	<div>Тип имот: <strong>Двустаен</strong></div>
	<div>Площ: <strong>65 кв.м</strong></div>
	</body></html>`, title)
}

func TestRunCrawlsAllPagesAndStoresListings(t *testing.T) {
	const district = "lyulin-5"
	seedPath := "/obiavi/prodazhbi/grad-sofiya/" + district
	counter := newHitCounter()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		counter.inc(r.URL.Path)
		switch r.URL.Path {
		case seedPath:
			fmt.Fprint(w, indexHTML([]string{"/obiava-aaa111/prodava", "/obiava-bbb222/prodava"}, seedPath+"/p-2"))
		case seedPath + "/p-2":
			fmt.Fprint(w, indexHTML([]string{"/obiava-ccc333/prodava"}, ""))
		case "/obiava-aaa111/prodava", "/obiava-bbb222/prodava", "/obiava-ccc333/prodava":
			fmt.Fprint(w, listingHTML("Продава ДВУСТАЕН"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	store := &fakeStore{}
	controller := newTestController(fastConfig(server.URL), store)

	result := <-controller.RunAsync(context.Background(), models.RunRequest{
		City:     "sofia",
		District: district,
	})

	require.True(t, result.OK, "run failed: %s", result.Message)
	assert.Equal(t, models.CategoryOK, result.Category)
	assert.Equal(t, 2, result.Stats.PagesFetched)
	assert.Equal(t, 3, result.Stats.ListingsStored)
	assert.Zero(t, result.Stats.TasksFailed)

	// a district with exactly K index pages yields exactly K index fetches
	assert.Equal(t, 1, counter.count(seedPath))
	assert.Equal(t, 1, counter.count(seedPath+"/p-2"))

	require.Len(t, store.records, 3)
	ids := make(map[string]bool)
	for _, rec := range store.records {
		ids[rec.SourceID] = true
		assert.Equal(t, district, rec.District)
		assert.Equal(t, "sofia", rec.City)
		require.NotNil(t, rec.Rooms)
		assert.Equal(t, 2, *rec.Rooms)
	}
	assert.Equal(t, map[string]bool{"aaa111": true, "bbb222": true, "ccc333": true}, ids)
}

func TestRunToleratesFailingListingTask(t *testing.T) {
	const district = "mladost-1"
	seedPath := "/obiavi/prodazhbi/grad-sofiya/" + district
	counter := newHitCounter()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		counter.inc(r.URL.Path)
		switch r.URL.Path {
		case seedPath:
			fmt.Fprint(w, indexHTML([]string{"/obiava-good11/prodava", "/obiava-bad999/prodava"}, ""))
		case "/obiava-good11/prodava":
			fmt.Fprint(w, listingHTML("Продава ТРИСТАЕН"))
		default:
			// 404 is in the configured retry set; bad999 fails every attempt
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	cfg := fastConfig(server.URL)
	store := &fakeStore{}
	controller := newTestController(cfg, store)

	result := <-controller.RunAsync(context.Background(), models.RunRequest{
		City:     "sofia",
		District: district,
	})

	// one bad page never aborts the run
	require.True(t, result.OK, "run failed: %s", result.Message)
	assert.Equal(t, 1, result.Stats.ListingsStored)
	assert.Equal(t, 1, result.Stats.TasksFailed)

	// initial attempt plus MaxRetries retries, then the task is failed
	assert.Equal(t, cfg.MaxRetries+1, counter.count("/obiava-bad999/prodava"))
}

func TestRunStopsAtPageCap(t *testing.T) {
	const district = "centar"
	seedPath := "/obiavi/prodazhbi/grad-sofiya/" + district
	counter := newHitCounter()

	// every index page advertises another one; the cap has to stop us
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		counter.inc(r.URL.Path)
		switch {
		case strings.HasPrefix(r.URL.Path, seedPath):
			fmt.Fprint(w, indexHTML([]string{"/obiava-loop01/prodava"}, seedPath+"/p-next"))
		case r.URL.Path == "/obiava-loop01/prodava":
			fmt.Fprint(w, listingHTML("Продава ДВУСТАЕН"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	cfg := fastConfig(server.URL)
	cfg.MaxPages = 3
	store := &fakeStore{}
	controller := newTestController(cfg, store)

	result := <-controller.RunAsync(context.Background(), models.RunRequest{
		City:     "sofia",
		District: district,
	})

	require.True(t, result.OK, "run failed: %s", result.Message)
	assert.Equal(t, cfg.MaxPages, result.Stats.PagesFetched)
	assert.Equal(t, 1, counter.count(seedPath))
	assert.Equal(t, 2, counter.count(seedPath+"/p-next"))
}

func TestRunRejectsUnknownDistrictBeforeAnyFetch(t *testing.T) {
	serverHit := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serverHit = true
	}))
	defer server.Close()

	controller := newTestController(fastConfig(server.URL), &fakeStore{})

	for _, district := range []string{"", "Люлин", "lyulin 5", "LYULIN-5"} {
		result := controller.Run(context.Background(), models.RunRequest{City: "sofia", District: district})
		assert.False(t, result.OK, "district %q", district)
		assert.Equal(t, models.CategoryConfig, result.Category, "district %q", district)
	}
	assert.False(t, serverHit)
}

func TestRunCachedFreshnessSkipsCrawl(t *testing.T) {
	serverHit := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serverHit = true
	}))
	defer server.Close()

	controller := newTestController(fastConfig(server.URL), &fakeStore{})

	result := controller.Run(context.Background(), models.RunRequest{
		City:      "sofia",
		District:  "lyulin-5",
		Freshness: models.FreshnessCached,
	})
	require.True(t, result.OK)
	assert.False(t, serverHit)
}

func TestRunEscalatesStorageFailure(t *testing.T) {
	const district = "lyulin-5"
	seedPath := "/obiavi/prodazhbi/grad-sofiya/" + district

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case seedPath:
			fmt.Fprint(w, indexHTML([]string{"/obiava-aaa111/prodava"}, ""))
		default:
			fmt.Fprint(w, listingHTML("Продава ЕДНОСТАЕН"))
		}
	}))
	defer server.Close()

	store := &fakeStore{err: fmt.Errorf("connection refused")}
	controller := newTestController(fastConfig(server.URL), store)

	result := controller.Run(context.Background(), models.RunRequest{City: "sofia", District: district})
	assert.False(t, result.OK)
	assert.Equal(t, models.CategoryStorage, result.Category)
	// raw error text stays in the logs, not in the caller-facing message
	assert.NotContains(t, result.Message, "connection refused")
}

func TestRunSkipsMalformedListingAndContinues(t *testing.T) {
	const district = "vitosha"
	seedPath := "/obiavi/prodazhbi/grad-sofiya/" + district

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case seedPath:
			fmt.Fprint(w, indexHTML([]string{"/obiava-ok1234/prodava", "/obiava-broken/prodava"}, ""))
		case "/obiava-ok1234/prodava":
			fmt.Fprint(w, listingHTML("Продава ДВУСТАЕН"))
		default:
			// 200 but without the required title marker
			fmt.Fprint(w, "<html><body><p>страницата е преместена</p></body></html>")
		}
	}))
	defer server.Close()

	store := &fakeStore{}
	controller := newTestController(fastConfig(server.URL), store)

	result := controller.Run(context.Background(), models.RunRequest{City: "sofia", District: district})
	require.True(t, result.OK, "run failed: %s", result.Message)
	assert.Equal(t, 1, result.Stats.ListingsStored)
	assert.Equal(t, 1, result.Stats.ListingsSkipped)
}

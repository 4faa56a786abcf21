package imot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"go.uber.org/zap"

	"imot-scraper/config"
	"imot-scraper/models"
	"imot-scraper/utils"
)

// maxBodyBytes limits fetched page bodies.
const maxBodyBytes = 10 * 1024 * 1024 // 10 MB

// FetchOutcome is the raw result of one fetch attempt. StatusCode is zero
// when no HTTP response was received at all.
type FetchOutcome struct {
	StatusCode int
	Body       string
	Latency    time.Duration
}

// Fetcher retrieves page markup without JavaScript execution.
type Fetcher interface {
	Fetch(ctx context.Context, task models.FetchTask) (FetchOutcome, error)
}

// StaticFetcher is the plain-HTTP path used for listing-detail pages.
// Each request carries the Bulgarian-locale header set and a rotated
// user agent.
type StaticFetcher struct {
	client   *http.Client
	debugDir string
	log      *zap.SugaredLogger
}

func NewStaticFetcher(cfg *config.Config, log *zap.SugaredLogger) *StaticFetcher {
	return &StaticFetcher{
		client:   &http.Client{Timeout: cfg.RequestTimeout},
		debugDir: cfg.DebugDir,
		log:      log,
	}
}

func (f *StaticFetcher) Fetch(ctx context.Context, task models.FetchTask) (FetchOutcome, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, task.URL, nil)
	if err != nil {
		return FetchOutcome{}, fmt.Errorf("build request for %s: %w", task.URL, err)
	}
	for key, value := range utils.DefaultHeaders() {
		req.Header.Set(key, value)
	}
	req.Header.Set("User-Agent", utils.RandomUserAgent())

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return FetchOutcome{Latency: time.Since(start)}, fmt.Errorf("fetch %s: %w", task.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return FetchOutcome{StatusCode: resp.StatusCode, Latency: time.Since(start)},
			fmt.Errorf("read body of %s: %w", task.URL, err)
	}

	out := FetchOutcome{
		StatusCode: resp.StatusCode,
		Body:       string(body),
		Latency:    time.Since(start),
	}
	if out.StatusCode != http.StatusOK {
		f.dumpBadResponse(task, out)
	}
	return out, nil
}

var unsafeFilenameChars = regexp.MustCompile(`[^\w\-.]`)

// dumpBadResponse keeps non-200 bodies on disk for later inspection when a
// debug directory is configured.
func (f *StaticFetcher) dumpBadResponse(task models.FetchTask, out FetchOutcome) {
	if f.debugDir == "" {
		return
	}
	name := fmt.Sprintf("bad_response_%s_%d_%s.html",
		task.District, task.Page, unsafeFilenameChars.ReplaceAllString(task.URL, "_"))
	path := filepath.Join(f.debugDir, name)

	if err := os.MkdirAll(f.debugDir, 0o755); err != nil {
		f.log.Warnw("could not create debug dir", "dir", f.debugDir, "err", err)
		return
	}
	if err := os.WriteFile(path, []byte(out.Body), 0o644); err != nil {
		f.log.Warnw("could not save bad response", "path", path, "err", err)
		return
	}
	f.log.Debugw("saved bad response", "status", out.StatusCode, "path", path)
}

package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"imot-scraper/models"
	"imot-scraper/storage"
)

// ListingReader is the read side of the store the exporter consumes.
type ListingReader interface {
	Select(ctx context.Context, city, district string, filters models.Filters) ([]models.ListingRecord, error)
}

// Exporter turns already-stored rows into a filtered CSV artifact. An empty
// result set propagates storage.ErrEmptyResult instead of producing a file
// with zero data rows.
type Exporter struct {
	store ListingReader
	dir   string
	log   *zap.SugaredLogger
}

func NewExporter(store ListingReader, dir string, log *zap.SugaredLogger) *Exporter {
	return &Exporter{store: store, dir: dir, log: log}
}

var filenameUnsafe = regexp.MustCompile(`[^\w\-.]`)

// Export writes the artifact and returns its path. A keyword other than
// "all" narrows by apartment type (substring match on title).
func (e *Exporter) Export(ctx context.Context, city, district, keyword string, filters models.Filters) (string, error) {
	if city == "" || district == "" {
		return "", errors.New("city and district are required")
	}
	filters = ApplyKeyword(filters, keyword)

	records, err := e.store.Select(ctx, city, district, filters)
	if err != nil {
		return "", err
	}

	name := fmt.Sprintf("%s_%s_%s.csv",
		sanitizeFilename(city),
		sanitizeFilename(district),
		time.Now().Format("20060102_150405"),
	)
	path := filepath.Join(e.dir, name)

	if err := storage.NewCSVWriter(path).Write(records); err != nil {
		return "", err
	}

	e.log.Infow("export complete", "path", path, "rows", len(records))
	return path, nil
}

// ApplyKeyword narrows the filter set by apartment type (substring match on
// title). An empty keyword or "all" leaves the filters untouched.
func ApplyKeyword(filters models.Filters, keyword string) models.Filters {
	if keyword != "" && !strings.EqualFold(keyword, "all") {
		filters.ApartmentType = keyword
	}
	return filters
}

func sanitizeFilename(text string) string {
	return filenameUnsafe.ReplaceAllString(strings.ToLower(strings.TrimSpace(text)), "_")
}

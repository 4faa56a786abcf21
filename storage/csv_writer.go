package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"imot-scraper/models"
)

// CSVWriter renders listing rows to a tabular artifact. Nil numeric fields
// become empty cells.
type CSVWriter struct {
	path string
}

func NewCSVWriter(path string) *CSVWriter {
	return &CSVWriter{path: path}
}

var csvHeader = []string{
	"source", "source_id", "title", "price", "currency", "price_sqm",
	"area", "rooms", "floor", "construction_type", "year_built",
	"description", "location", "district", "city", "url",
	"agency", "phone", "scraped_at",
}

func (w *CSVWriter) Write(records []models.ListingRecord) error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}

	file, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, rec := range records {
		row := []string{
			rec.Source,
			rec.SourceID,
			rec.Title,
			formatFloat(rec.Price),
			rec.Currency,
			formatFloat(rec.PriceSqm),
			formatFloat(rec.Area),
			formatInt(rec.Rooms),
			rec.Floor,
			rec.ConstructionType,
			formatInt(rec.YearBuilt),
			rec.Description,
			rec.Location,
			rec.District,
			rec.City,
			rec.URL,
			rec.Agency,
			rec.Phone,
			rec.ScrapedAt.Format("2006-01-02"),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("csv write error: %w", err)
	}
	return nil
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

func formatInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"imot-scraper/models"
)

func TestBuildReport(t *testing.T) {
	p1, p2 := 100000.0, 200000.0
	sqm := 1500.0
	r2, r3 := 2, 3

	records := []models.ListingRecord{
		{Price: &p1, PriceSqm: &sqm, Rooms: &r2},
		{Price: &p2, Rooms: &r3},
		{Rooms: &r3}, // no price: counted, excluded from aggregates
	}
	stats := models.RunStats{PagesFetched: 2, TasksFailed: 1, ListingsSkipped: 1}

	report := BuildReport(records, stats)

	assert.Equal(t, 3, report.TotalListings)
	assert.Equal(t, 2, report.PagesFetched)
	assert.Equal(t, 1, report.TasksFailed)
	assert.Equal(t, 1, report.ListingsSkipped)

	assert.InDelta(t, 150000, report.AveragePrice, 0.001)
	assert.InDelta(t, 100000, report.MinPrice, 0.001)
	assert.InDelta(t, 200000, report.MaxPrice, 0.001)
	assert.InDelta(t, 1500, report.AveragePriceSqm, 0.001)

	assert.Equal(t, map[int]int{2: 1, 3: 2}, report.ByRooms)
}

func TestBuildReportEmpty(t *testing.T) {
	report := BuildReport(nil, models.RunStats{})
	assert.Zero(t, report.TotalListings)
	assert.Zero(t, report.AveragePrice)
	assert.Empty(t, report.ByRooms)
}

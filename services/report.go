package services

import (
	"fmt"
	"sort"

	"imot-scraper/models"
)

// Report is the post-run summary printed after a crawl.
type Report struct {
	TotalListings   int
	PagesFetched    int
	TasksFailed     int
	ListingsSkipped int

	AveragePrice    float64
	AveragePriceSqm float64
	MinPrice        float64
	MaxPrice        float64

	ByRooms map[int]int
}

// BuildReport computes summary figures over the stored rows of a run.
// Records without a parsed price are counted but excluded from the price
// aggregates.
func BuildReport(records []models.ListingRecord, stats models.RunStats) Report {
	report := Report{
		TotalListings:   len(records),
		PagesFetched:    stats.PagesFetched,
		TasksFailed:     stats.TasksFailed,
		ListingsSkipped: stats.ListingsSkipped,
		ByRooms:         make(map[int]int),
	}

	var (
		priceSum, sqmSum     float64
		priceCount, sqmCount int
	)

	for _, rec := range records {
		if rec.Rooms != nil {
			report.ByRooms[*rec.Rooms]++
		}
		if rec.PriceSqm != nil {
			sqmSum += *rec.PriceSqm
			sqmCount++
		}
		if rec.Price == nil {
			continue
		}
		price := *rec.Price
		priceSum += price
		priceCount++
		if report.MinPrice == 0 || price < report.MinPrice {
			report.MinPrice = price
		}
		if price > report.MaxPrice {
			report.MaxPrice = price
		}
	}

	if priceCount > 0 {
		report.AveragePrice = priceSum / float64(priceCount)
	}
	if sqmCount > 0 {
		report.AveragePriceSqm = sqmSum / float64(sqmCount)
	}
	return report
}

// PrintReport writes the summary to stdout.
func PrintReport(r Report) {
	fmt.Println()
	fmt.Println("══════════ CRAWL SUMMARY ══════════")
	fmt.Printf("Listings stored   : %d\n", r.TotalListings)
	fmt.Printf("Index pages       : %d\n", r.PagesFetched)
	fmt.Printf("Failed tasks      : %d\n", r.TasksFailed)
	fmt.Printf("Skipped listings  : %d\n", r.ListingsSkipped)
	if r.AveragePrice > 0 {
		fmt.Printf("Average price     : %.0f EUR (min %.0f, max %.0f)\n",
			r.AveragePrice, r.MinPrice, r.MaxPrice)
	}
	if r.AveragePriceSqm > 0 {
		fmt.Printf("Average price/m²  : %.0f EUR\n", r.AveragePriceSqm)
	}

	if len(r.ByRooms) > 0 {
		rooms := make([]int, 0, len(r.ByRooms))
		for k := range r.ByRooms {
			rooms = append(rooms, k)
		}
		sort.Ints(rooms)
		fmt.Println("By room count:")
		for _, k := range rooms {
			fmt.Printf("  %d-room: %d\n", k, r.ByRooms[k])
		}
	}
	fmt.Println()
}

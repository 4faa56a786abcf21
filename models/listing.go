package models

import "time"

// ListingRecord is one real-estate advertisement in its structured form.
// Numeric fields that failed tolerant parsing stay nil; the record itself
// is still stored. Exactly one row exists per (Source, SourceID).
type ListingRecord struct {
	Source           string
	SourceID         string
	Title            string
	Price            *float64
	Currency         string
	PriceSqm         *float64
	Area             *float64
	Rooms            *int
	Floor            string
	ConstructionType string
	YearBuilt        *int
	Description      string
	Location         string
	District         string
	City             string
	URL              string
	Agency           string
	Phone            string
	ScrapedAt        time.Time
}

// TaskKind distinguishes index-page traversal from listing-detail fetches.
type TaskKind int

const (
	TaskIndex TaskKind = iota
	TaskListing
)

func (k TaskKind) String() string {
	if k == TaskIndex {
		return "index"
	}
	return "listing"
}

// FetchTask is one unit of scheduling work. Attempt counts retries already
// performed; a task whose Attempt reaches MaxAttempts is recorded as failed.
type FetchTask struct {
	URL         string
	Kind        TaskKind
	District    string
	Page        int
	Attempt     int
	MaxAttempts int
	Priority    int
	Render      bool
}

// Freshness selects between crawling the source and serving stored rows.
type Freshness int

const (
	FreshnessFetch Freshness = iota
	FreshnessCached
)

// RunRequest is the caller's input for one pipeline run. It is immutable
// for the duration of the run.
type RunRequest struct {
	City      string
	District  string
	Keyword   string
	Freshness Freshness
}

// FailureCategory is the machine-distinguishable outcome category surfaced
// to the caller. Per-task and per-item failures are absorbed inside the run
// and never produce a category of their own.
type FailureCategory string

const (
	CategoryOK        FailureCategory = "ok"
	CategoryConfig    FailureCategory = "config"
	CategoryStorage   FailureCategory = "storage"
	CategoryCancelled FailureCategory = "cancelled"
)

// RunStats summarizes what one run did.
type RunStats struct {
	PagesFetched    int
	ListingsStored  int
	ListingsSkipped int
	TasksFailed     int
}

// RunResult is the terminal outcome of a run.
type RunResult struct {
	OK       bool
	Category FailureCategory
	Message  string
	Stats    RunStats
}

// Filters is the optional predicate set applied on the read path. All set
// fields combine with logical AND. Rooms holds either an integer literal or
// "3+" meaning three or more.
type Filters struct {
	ApartmentType string
	MinArea       *float64
	Rooms         string
	Balcony       bool
	NearMetro     bool
	LocationSide  string
}

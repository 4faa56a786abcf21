package imot

import (
	"errors"
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"imot-scraper/models"
)

// ErrSkipListing marks a single listing that cannot be extracted (missing
// required marker). The caller logs it and moves on; the page batch is
// never aborted.
var ErrSkipListing = errors.New("listing skipped")

const sourceName = "imot.bg"

var (
	sourceIDPattern = regexp.MustCompile(`obiava-(\w+)`)
	nonNumeric      = regexp.MustCompile(`[^0-9.]`)
	areaPattern     = regexp.MustCompile(`[0-9][0-9,.]*`)
	yearPattern     = regexp.MustCompile(`\d{4}`)
	brPattern       = regexp.MustCompile(`(?i)<br\s*/?>`)
	tagPattern      = regexp.MustCompile(`<[^>]+>`)
)

// roomVocabulary maps Bulgarian room ordinals to a count. Matched in order;
// the first hit wins.
var roomVocabulary = []struct {
	keyword string
	count   int
}{
	{"едностаен", 1},
	{"1-стаен", 1},
	{"двустаен", 2},
	{"2-стаен", 2},
	{"тристаен", 3},
	{"3-стаен", 3},
	{"четиристаен", 4},
	{"4-стаен", 4},
	{"многостаен", 4},
}

// ExtractListing is the pure transform from fetched listing markup to a
// structured record. Unparseable numeric fields become nil; a missing title
// or source id yields ErrSkipListing.
func ExtractListing(markup, pageURL, city, district string, scrapedAt time.Time) (*models.ListingRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse listing page: %w", err)
	}

	title := strings.TrimSpace(doc.Find("div.advHeader div.title").First().Text())
	if title == "" {
		return nil, fmt.Errorf("%w: no title element at %s", ErrSkipListing, pageURL)
	}
	sourceID := ExtractSourceID(pageURL)
	if sourceID == "" {
		return nil, fmt.Errorf("%w: no source id in %s", ErrSkipListing, pageURL)
	}

	rec := &models.ListingRecord{
		Source:           sourceName,
		SourceID:         sourceID,
		Title:            title,
		Currency:         "EUR",
		Price:            ParsePrice(doc.Find("#cena").First().Text()),
		PriceSqm:         ParsePrice(doc.Find("#cenakv").First().Text()),
		Area:             ParseArea(labelValue(doc, "Площ", 0)),
		Floor:            strings.TrimSpace(labelValue(doc, "Етаж", 0)),
		ConstructionType: strings.TrimSpace(labelValue(doc, "Строителство", 0)),
		YearBuilt:        ParseYear(labelValue(doc, "Строителство", 1)),
		Description:      extractDescription(doc),
		Location:         strings.TrimSpace(doc.Find("div.location").First().Text()),
		District:         district,
		City:             city,
		URL:              pageURL,
		Agency:           strings.TrimSpace(doc.Find("div.name").First().Text()),
		Phone:            strings.TrimSpace(doc.Find("div.phone").First().Text()),
		ScrapedAt:        scrapedAt,
	}

	rec.Rooms = InferRooms(labelValue(doc, "Тип имот", 0))
	if rec.Rooms == nil {
		rec.Rooms = InferRooms(title)
	}

	return rec, nil
}

// ExtractSourceID pulls the advertisement id out of a listing URL.
func ExtractSourceID(pageURL string) string {
	m := sourceIDPattern.FindStringSubmatch(pageURL)
	if m == nil {
		return ""
	}
	return m[1]
}

// ParsePrice parses price text such as "1 234,50 €" into 1234.50. Thousands
// separators, unit and currency text are stripped; anything unparseable
// yields nil rather than an error.
func ParsePrice(text string) *float64 {
	s := strings.NewReplacer(" ", "", " ", "", ",", ".").Replace(text)
	s = nonNumeric.ReplaceAllString(s, "")
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// ParseArea takes the first numeric group of area text ("86,5 кв.м" → 86.5).
func ParseArea(text string) *float64 {
	m := areaPattern.FindString(text)
	if m == "" {
		return nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", "."), 64)
	if err != nil {
		return nil
	}
	return &v
}

// ParseYear finds a four-digit year anywhere in the text.
func ParseYear(text string) *int {
	m := yearPattern.FindString(text)
	if m == "" {
		return nil
	}
	v, err := strconv.Atoi(m)
	if err != nil {
		return nil
	}
	return &v
}

// InferRooms matches text against the ordinal room vocabulary. No match
// yields nil.
func InferRooms(text string) *int {
	lower := strings.ToLower(text)
	for _, entry := range roomVocabulary {
		if strings.Contains(lower, entry.keyword) {
			count := entry.count
			return &count
		}
	}
	return nil
}

// labelValue finds the div whose own text carries the given label (e.g.
// "Площ: <strong>86 кв.м</strong>") and returns the text of its n-th
// strong child.
func labelValue(doc *goquery.Document, label string, n int) string {
	var out string
	doc.Find("div").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if !strings.Contains(ownText(sel), label) {
			return true
		}
		strong := sel.Find("strong")
		if strong.Length() > n {
			out = strong.Eq(n).Text()
			return false
		}
		return true
	})
	return out
}

// ownText collects only the direct text nodes of sel, so wrapper divs whose
// descendants carry the label do not match.
func ownText(sel *goquery.Selection) string {
	var b strings.Builder
	sel.Contents().Each(func(_ int, child *goquery.Selection) {
		if goquery.NodeName(child) == "#text" {
			b.WriteString(child.Text())
		}
	})
	return b.String()
}

// extractDescription flattens the description block to plain text, keeping
// line breaks.
func extractDescription(doc *goquery.Document) string {
	raw, err := doc.Find("#description_div").First().Html()
	if err != nil || raw == "" {
		return ""
	}
	text := brPattern.ReplaceAllString(raw, "\n")
	text = tagPattern.ReplaceAllString(text, "")
	return strings.TrimSpace(html.UnescapeString(text))
}

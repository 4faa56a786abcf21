package imot

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// IndexPage is the parsed content of one search-results page: the listing
// links it exposes and the next page in the traversal, if any.
type IndexPage struct {
	ListingURLs []string
	NextURL     string
}

// citySlug is the URL path segment for the supported city. The source keys
// its sale listings by city slug; only Sofia is wired up.
const citySlug = "grad-sofiya"

// SeedURL builds the first index page for a district traversal.
func SeedURL(baseURL, district string) string {
	return fmt.Sprintf("%s/obiavi/prodazhbi/%s/%s", strings.TrimRight(baseURL, "/"), citySlug, district)
}

// ParseIndexPage extracts the listing links (first anchor of each listing
// card) and the next-page link from rendered index markup. Relative links
// are resolved against pageURL.
func ParseIndexPage(markup, pageURL string) (*IndexPage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse index page: %w", err)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse index page url %q: %w", pageURL, err)
	}

	page := &IndexPage{}
	seen := make(map[string]bool)

	doc.Find("div.item").Each(func(_ int, card *goquery.Selection) {
		href, ok := card.Find("a[href]").First().Attr("href")
		if !ok || href == "" {
			return
		}
		abs := resolveURL(base, href)
		if abs == "" || seen[abs] {
			return
		}
		seen[abs] = true
		page.ListingURLs = append(page.ListingURLs, abs)
	})

	if href, ok := doc.Find("a.next").First().Attr("href"); ok {
		page.NextURL = resolveURL(base, href)
	}

	return page, nil
}

// ContainsCaptcha reports whether the markup looks like a captcha
// interstitial instead of a results page.
func ContainsCaptcha(markup string) bool {
	return strings.Contains(strings.ToLower(markup), "captcha")
}

func resolveURL(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

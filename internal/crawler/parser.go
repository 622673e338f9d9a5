package crawler

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// ScrapedReview is one review as found on the page.
type ScrapedReview struct {
	Title        string
	Author       string
	Content      string
	Rating       *float64
	HelpfulCount *int
	Date         *time.Time
}

var helpfulPattern = regexp.MustCompile(`([\d,]+)\s+out of`)

// ParseReviews extracts up to limit reviews from a review list page.
// Containers without text are skipped.
func ParseReviews(doc *goquery.Selection, limit int) []ScrapedReview {
	reviews := []ScrapedReview{}
	doc.Find(".review-container").EachWithBreak(func(_ int, item *goquery.Selection) bool {
		if limit > 0 && len(reviews) >= limit {
			return false
		}

		content := selectionText(item.Find(".text.show-more__control").First())
		if content == "" {
			return true
		}

		title := strings.TrimSpace(item.Find("a.title").First().Text())
		if title == "" {
			title = "No Title"
		}

		r := ScrapedReview{
			Title:   title,
			Author:  strings.TrimSpace(item.Find(".display-name-link a").First().Text()),
			Content: content,
			Rating:  parseRating(item.Find(".rating-other-user-rating span").First().Text()),
		}
		if m := helpfulPattern.FindStringSubmatch(item.Find(".actions").Text()); m != nil {
			if n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", "")); err == nil {
				r.HelpfulCount = &n
			}
		}
		if ts, err := time.Parse("2 January 2006", strings.TrimSpace(item.Find(".review-date").First().Text())); err == nil {
			r.Date = &ts
		}

		reviews = append(reviews, r)
		return true
	})
	return reviews
}

// parseRating reads "8/10" or "8". Anything else is no rating.
func parseRating(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	head, _, _ := strings.Cut(raw, "/")
	v, err := strconv.ParseFloat(strings.TrimSpace(head), 64)
	if err != nil {
		return nil
	}
	return &v
}

// selectionText joins text nodes with single spaces so <br> breaks do not glue
// words together.
func selectionText(sel *goquery.Selection) string {
	if sel.Length() == 0 {
		return ""
	}
	sel.Find("br").ReplaceWithHtml(" ")
	return strings.Join(strings.Fields(sel.Text()), " ")
}

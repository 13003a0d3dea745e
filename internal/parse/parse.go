// Package parse extracts structured data from fetched listing pages. It is
// the only package that knows the site's DOM; everything downstream works
// on listing.Record.
package parse

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"idealista-harvester/internal/listing"
)

// Error reports an extraction failure: a selector that matched nothing or
// a heading whose text did not carry what it should.
type Error struct {
	URL    string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("parse %s: %s", e.URL, e.Reason)
}

var countPattern = regexp.MustCompile(`([0-9.,]+)\s*(?:casas|anuncios)`)

// SearchLinks returns the property URLs on a search results page, resolved
// against the page URL. An empty page yields an empty slice, not an error.
func SearchLinks(body []byte, pageURL string) ([]string, error) {
	doc, err := document(body, pageURL)
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, &Error{URL: pageURL, Reason: "page URL unparseable"}
	}

	var links []string
	doc.Find("article.item .item-link").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		links = append(links, base.ResolveReference(ref).String())
	})
	return links, nil
}

// TotalResults reads the result count from the page heading, e.g.
// "1.234 casas y pisos en venta" or "562 anuncios".
func TotalResults(body []byte, pageURL string) (int, error) {
	doc, err := document(body, pageURL)
	if err != nil {
		return 0, err
	}
	heading := doc.Find("h1#h1-container").First()
	if heading.Length() == 0 {
		return 0, &Error{URL: pageURL, Reason: "result count heading not found"}
	}
	m := countPattern.FindStringSubmatch(heading.Text())
	if m == nil {
		return 0, &Error{URL: pageURL, Reason: "result count heading carries no count"}
	}
	n, err := strconv.Atoi(stripSeparators(m[1]))
	if err != nil {
		return 0, &Error{URL: pageURL, Reason: "result count is not a number"}
	}
	return n, nil
}

// Item extracts a full listing record from a property page. Title and
// location are mandatory; everything else degrades to its zero value.
func Item(body []byte, pageURL string, scrapedAt time.Time) (listing.Record, error) {
	doc, err := document(body, pageURL)
	if err != nil {
		return listing.Record{}, err
	}

	title := text(doc.Find(".main-info__title-main").First())
	if title == "" {
		return listing.Record{}, &Error{URL: pageURL, Reason: "title not found"}
	}
	location := text(doc.Find(".main-info__title-minor").First())
	if location == "" {
		return listing.Record{}, &Error{URL: pageURL, Reason: "location not found"}
	}

	rec := listing.Record{
		URL:           pageURL,
		Title:         title,
		Location:      location,
		Price:         intFrom(text(doc.Find(".info-data-price span").First())),
		OriginalPrice: intFrom(text(doc.Find(".pricedown_price span").First())),
		Currency:      currency(doc),
		Description:   description(doc),
		Features:      features(doc),
		Updated:       updated(doc),
		ScrapedAt:     scrapedAt,
	}

	if tags := text(doc.Find(".detail-info-tags").First()); tags != "" {
		rec.Tags = strings.Fields(tags)
	}

	if agency := doc.Find(".advertiser-name-container .about-advertiser-name").First(); agency.Length() > 0 {
		rec.PosterType = listing.PosterProfessional
		rec.PosterName = text(agency)
	} else {
		rec.PosterType = listing.PosterParticular
		rec.PosterName = text(doc.Find(".professional-name span").First())
	}

	return rec, nil
}

func document(body []byte, pageURL string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &Error{URL: pageURL, Reason: "body is not HTML"}
	}
	return doc, nil
}

// currency is the trailing text node of the price block, "220.000 €" -> "€".
func currency(doc *goquery.Document) string {
	var out string
	doc.Find(".info-data-price").First().Contents().Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "#text" {
			if t := strings.TrimSpace(s.Text()); t != "" {
				out = t
			}
		}
	})
	return out
}

func description(doc *goquery.Document) string {
	var paragraphs []string
	doc.Find("div.comment p").Each(func(_ int, s *goquery.Selection) {
		paragraphs = append(paragraphs, text(s))
	})
	return strings.Join(paragraphs, "\n")
}

// features walks the detail section headings and collects the feature lines
// under each. The energy certificate block encodes its values in spans and
// a title attribute, so its lines are recomposed.
func features(doc *goquery.Document) map[string][]string {
	out := make(map[string][]string)
	doc.Find(`[class^="details-property-h"]`).Each(func(_ int, heading *goquery.Selection) {
		name := text(heading)
		if name == "" {
			return
		}
		items := heading.NextAllFiltered("div").First().Find("li")
		lines := make([]string, 0, items.Length())
		items.Each(func(_ int, li *goquery.Selection) {
			if name == listing.SectionEnergy {
				if line := energyLine(li); line != "" {
					lines = append(lines, line)
				}
				return
			}
			lines = append(lines, text(li))
		})
		out[name] = lines
	})
	return out
}

func energyLine(li *goquery.Selection) string {
	spans := li.Find("span")
	if spans.Length() < 2 {
		return text(li)
	}
	kind := text(spans.Eq(0))
	value := spans.Eq(1)
	label, _ := value.Attr("title")
	return strings.TrimSpace(kind + " " + text(value) + " " + strings.ToUpper(label))
}

// updated finds the stats line "Anuncio actualizado el 12 de mayo" and keeps
// the date fragment.
func updated(doc *goquery.Document) string {
	var out string
	doc.Find("p.stats-text").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		t := text(s)
		if !strings.Contains(t, "actualizado el") {
			return true
		}
		parts := strings.Split(t, " el ")
		out = parts[len(parts)-1]
		return false
	})
	return out
}

func text(s *goquery.Selection) string {
	return strings.TrimSpace(s.Text())
}

func intFrom(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(stripSeparators(s))
	if err != nil {
		return 0
	}
	return n
}

func stripSeparators(s string) string {
	return strings.NewReplacer(".", "", ",", "").Replace(s)
}

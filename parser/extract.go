package parser

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/bookscrape/models"
)

// CataloguePage is everything extracted from one listing page.
type CataloguePage struct {
	URL       string
	Records   []models.BookRecord
	Malformed []models.MalformedRecord
	NextURL   string // empty when the page has no "next" control
}

// HasNext reports whether the page links to a following page.
func (p *CataloguePage) HasNext() bool {
	return p != nil && p.NextURL != ""
}

// ExtractCatalogue parses a catalogue listing page. Entries failing mandatory
// validation are returned in Malformed and never abort the page. Relative
// links are resolved against pageURL. ScrapedAt is left for the caller.
func ExtractCatalogue(markup []byte, pageURL string) (*CataloguePage, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse markup: %w", err)
	}

	page := &CataloguePage{URL: pageURL}
	doc.Find("article.product_pod").Each(func(i int, s *goquery.Selection) {
		rec, err := extractEntry(s, base)
		if err != nil {
			page.Malformed = append(page.Malformed, models.MalformedRecord{
				PageURL:   pageURL,
				Index:     i,
				Title:     rec.Title,
				SourceURL: rec.URL,
				Reason:    err.Error(),
				Err:       err,
			})
			return
		}
		page.Records = append(page.Records, rec)
	})

	if href, ok := doc.Find("li.next a").First().Attr("href"); ok && strings.TrimSpace(href) != "" {
		page.NextURL = resolve(base, href)
	}
	return page, nil
}

func extractEntry(s *goquery.Selection, base *url.URL) (models.BookRecord, error) {
	var rec models.BookRecord

	link := s.Find("h3 a").First()
	rec.Title = strings.TrimSpace(link.AttrOr("title", ""))
	if rec.Title == "" {
		rec.Title = strings.TrimSpace(link.Text())
	}
	if href := strings.TrimSpace(link.AttrOr("href", "")); href != "" {
		rec.URL = resolve(base, href)
	}
	if src := strings.TrimSpace(s.Find("img").First().AttrOr("src", "")); src != "" {
		rec.ImageURL = resolve(base, src)
	}

	if rec.Title == "" {
		return rec, fmt.Errorf("title: %w", ErrMissingField)
	}
	if rec.URL == "" {
		return rec, fmt.Errorf("url: %w", ErrMissingField)
	}

	price, err := ParsePrice(s.Find("p.price_color").First().Text())
	if err != nil {
		return rec, err
	}
	rec.Price = price

	rating, err := RatingToNumeric(ratingTier(s.Find("p.star-rating").First().AttrOr("class", "")))
	if err != nil {
		return rec, err
	}
	rec.Rating = rating

	rec.Availability = ParseAvailability(s.Find("p.availability").First().Text())
	return rec, nil
}

// ratingTier picks the tier name out of a class list like "star-rating Three".
func ratingTier(class string) string {
	for _, field := range strings.Fields(class) {
		if field != "star-rating" {
			return field
		}
	}
	return ""
}

// Detail holds the fields only a product page carries.
type Detail struct {
	Title        string
	Description  *string
	Category     *string
	ProductInfo  map[string]string
	Availability *models.Availability
}

// ExtractDetail parses a single product page.
func ExtractDetail(markup []byte, pageURL string) (*Detail, error) {
	if _, err := url.Parse(pageURL); err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse markup: %w", err)
	}

	d := &Detail{
		Title: strings.TrimSpace(doc.Find(".product_main h1, h1").First().Text()),
	}
	if d.Title == "" {
		return nil, fmt.Errorf("product title: %w", ErrMissingField)
	}

	desc := strings.TrimSpace(doc.Find("#product_description").First().NextFiltered("p").Text())
	if desc == "" {
		desc = strings.TrimSpace(doc.Find(`meta[name="description"]`).AttrOr("content", ""))
	}
	if desc != "" {
		desc = strings.Join(strings.Fields(desc), " ")
		d.Description = &desc
	}

	crumbs := doc.Find("ul.breadcrumb li")
	if crumbs.Length() >= 4 {
		if cat := strings.TrimSpace(crumbs.Eq(2).Text()); cat != "" {
			d.Category = &cat
		}
	}

	doc.Find("table.table-striped tr").Each(func(_ int, row *goquery.Selection) {
		key := ProductInfoKey(row.Find("th").First().Text())
		if key == "" {
			return
		}
		if d.ProductInfo == nil {
			d.ProductInfo = make(map[string]string)
		}
		d.ProductInfo[key] = strings.TrimSpace(row.Find("td").First().Text())
	})

	if text := doc.Find(".product_main p.availability").First().Text(); strings.TrimSpace(text) != "" {
		avail := ParseAvailability(text)
		d.Availability = &avail
	}
	return d, nil
}

// Apply copies the product page fields onto rec. Fields the page lacked stay absent.
func (d *Detail) Apply(rec *models.BookRecord) {
	if d == nil || rec == nil {
		return
	}
	if d.Description != nil {
		rec.Description = d.Description
	}
	if d.Category != nil {
		rec.Category = d.Category
	}
	if d.ProductInfo != nil {
		rec.ProductInfo = d.ProductInfo
	}
	if d.Availability != nil {
		rec.Availability = *d.Availability
	}
}

func resolve(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

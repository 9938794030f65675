package parser

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/aluiziolira/bookscrape/models"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
)

const pageURL = "http://example.test/catalogue/page-1.html"

type entry struct {
	href, title, price, tier, stock string
}

func buildListing(entries []entry, next string) []byte {
	var b strings.Builder
	b.WriteString(`<html><body><section><ol class="row">`)
	for _, e := range entries {
		b.WriteString(`<li><article class="product_pod">`)
		slug := strings.Split(e.href, "/")[0]
		fmt.Fprintf(&b, `<div class="image_container"><a href="%s"><img src="../media/cache/%s.jpg" alt="%s"></a></div>`, e.href, slug, e.title)
		fmt.Fprintf(&b, `<p class="star-rating %s"><i class="icon-star"></i></p>`, e.tier)
		fmt.Fprintf(&b, `<h3><a href="%s" title="%s">%s</a></h3>`, e.href, e.title, e.title)
		fmt.Fprintf(&b, `<div class="product_price"><p class="price_color">%s</p>`, e.price)
		fmt.Fprintf(&b, `<p class="instock availability"><i class="icon-ok"></i>%s</p></div>`, e.stock)
		b.WriteString(`</article></li>`)
	}
	b.WriteString(`</ol>`)
	if next != "" {
		fmt.Fprintf(&b, `<ul class="pager"><li class="current">Page 1 of 2</li><li class="next"><a href="%s">next</a></li></ul>`, next)
	}
	b.WriteString(`</section></body></html>`)
	return []byte(b.String())
}

func TestExtractCatalogueWellFormed(t *testing.T) {
	markup := buildListing([]entry{
		{href: "a-light-in-the-attic_1000/index.html", title: "A Light in the Attic", price: "£51.77", tier: "Three", stock: "\n    In stock\n"},
		{href: "tipping-the-velvet_999/index.html", title: "Tipping the Velvet", price: "Â£53.74", tier: "One", stock: "Out of stock"},
	}, "page-2.html")

	page, err := ExtractCatalogue(markup, pageURL)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	want := []models.BookRecord{
		{
			Title:        "A Light in the Attic",
			Price:        decimal.RequireFromString("51.77"),
			Rating:       3,
			Availability: models.Availability{InStock: true, Raw: "In stock"},
			ImageURL:     "http://example.test/media/cache/a-light-in-the-attic_1000.jpg",
			URL:          "http://example.test/catalogue/a-light-in-the-attic_1000/index.html",
		},
		{
			Title:        "Tipping the Velvet",
			Price:        decimal.RequireFromString("53.74"),
			Rating:       1,
			Availability: models.Availability{InStock: false, Raw: "Out of stock"},
			ImageURL:     "http://example.test/media/cache/tipping-the-velvet_999.jpg",
			URL:          "http://example.test/catalogue/tipping-the-velvet_999/index.html",
		},
	}

	decimalEqual := cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })
	if diff := cmp.Diff(want, page.Records, decimalEqual); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}
	if len(page.Malformed) != 0 {
		t.Fatalf("unexpected malformed entries: %+v", page.Malformed)
	}
	if !page.HasNext() || page.NextURL != "http://example.test/catalogue/page-2.html" {
		t.Fatalf("next url = %q", page.NextURL)
	}
}

func TestExtractCatalogueMarksAbsentFields(t *testing.T) {
	markup := buildListing([]entry{
		{href: "x_1/index.html", title: "X", price: "£1.00", tier: "Two", stock: "In stock"},
	}, "")

	page, err := ExtractCatalogue(markup, pageURL)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	rec := page.Records[0]
	if rec.Description != nil || rec.Category != nil || rec.ProductInfo != nil {
		t.Fatalf("listing-only record should leave detail fields absent: %+v", rec)
	}
	if rec.Availability.Count != nil {
		t.Fatalf("listing availability has no count, got %d", *rec.Availability.Count)
	}
}

func TestExtractCatalogueMalformedEntries(t *testing.T) {
	markup := buildListing([]entry{
		{href: "good_1/index.html", title: "Good One", price: "£10.00", tier: "Four", stock: "In stock"},
		{href: "bad-price_2/index.html", title: "Bad Price", price: "call us", tier: "Two", stock: "In stock"},
		{href: "bad-rating_3/index.html", title: "Bad Rating", price: "£3.00", tier: "Zero", stock: "In stock"},
		{href: "no-title_4/index.html", title: "", price: "£4.00", tier: "Two", stock: "In stock"},
		{href: "good_5/index.html", title: "Good Two", price: "£5.00", tier: "Five", stock: "In stock"},
	}, "")

	page, err := ExtractCatalogue(markup, pageURL)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	if got := len(page.Records); got != 2 {
		t.Fatalf("records = %d, want 2", got)
	}
	if got := len(page.Malformed); got != 3 {
		t.Fatalf("malformed = %d, want 3", got)
	}

	wantErrs := []error{ErrInvalidPrice, ErrUnknownRating, ErrMissingField}
	wantIdx := []int{1, 2, 3}
	for i, m := range page.Malformed {
		if !errors.Is(m.Err, wantErrs[i]) {
			t.Errorf("malformed[%d] err = %v, want %v", i, m.Err, wantErrs[i])
		}
		if m.Index != wantIdx[i] {
			t.Errorf("malformed[%d] index = %d, want %d", i, m.Index, wantIdx[i])
		}
		if m.PageURL != pageURL || m.Reason == "" {
			t.Errorf("malformed[%d] missing context: %+v", i, m)
		}
	}
	if page.Malformed[0].Title != "Bad Price" {
		t.Errorf("malformed title = %q", page.Malformed[0].Title)
	}
	if page.HasNext() {
		t.Fatalf("page without pager should have no next url")
	}
}

// A 200 page with no product entries and no pager yields nothing; the
// crawler treats it as the end of the catalogue rather than a failure.
func TestExtractCatalogueEmptyMarkup(t *testing.T) {
	for _, markup := range [][]byte{nil, []byte(""), []byte("<html><body><p>maintenance</p></body></html>"), []byte("<<<not html")} {
		page, err := ExtractCatalogue(markup, pageURL)
		if err != nil {
			t.Fatalf("extract %q: %v", markup, err)
		}
		if len(page.Records) != 0 || len(page.Malformed) != 0 || page.HasNext() {
			t.Fatalf("expected empty page for %q, got %+v", markup, page)
		}
	}
}

func TestExtractCatalogueDeterministic(t *testing.T) {
	markup := buildListing([]entry{
		{href: "a_1/index.html", title: "A", price: "£1.50", tier: "Two", stock: "In stock"},
		{href: "b_2/index.html", title: "B", price: "oops", tier: "Two", stock: "In stock"},
	}, "page-2.html")

	first, err := ExtractCatalogue(markup, pageURL)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	second, err := ExtractCatalogue(markup, pageURL)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	opts := cmp.Options{
		cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) }),
		cmp.Comparer(func(a, b error) bool { return a.Error() == b.Error() }),
	}
	if diff := cmp.Diff(first, second, opts); diff != "" {
		t.Fatalf("extraction not deterministic (-first +second):\n%s", diff)
	}
}

func TestExtractCatalogueBadPageURL(t *testing.T) {
	if _, err := ExtractCatalogue([]byte("<html></html>"), "http://[::1"); err == nil {
		t.Fatalf("expected error for unparsable page url")
	}
}

const detailPage = `<html><head>
<meta name="description" content="
    Fallback description.
">
</head><body>
<ul class="breadcrumb">
  <li><a href="../../index.html">Home</a></li>
  <li><a href="../category/books_1/index.html">Books</a></li>
  <li><a href="../category/books/poetry_23/index.html">Poetry</a></li>
  <li class="active">A Light in the Attic</li>
</ul>
<article class="product_page">
  <div class="col-sm-6 product_main">
    <h1>A Light in the Attic</h1>
    <p class="price_color">£51.77</p>
    <p class="instock availability"><i class="icon-ok"></i>
        In stock (22 available)
    </p>
  </div>
  <div id="product_description" class="sub-header"><h2>Product Description</h2></div>
  <p>It's hard to imagine a world without A Light in the Attic.</p>
  <table class="table table-striped">
    <tr><th>UPC</th><td>a897fe39b1053632</td></tr>
    <tr><th>Product Type</th><td>Books</td></tr>
    <tr><th>Price (excl. tax)</th><td>£51.77</td></tr>
    <tr><th>Number of reviews</th><td>0</td></tr>
  </table>
</article>
</body></html>`

func TestExtractDetail(t *testing.T) {
	d, err := ExtractDetail([]byte(detailPage), "http://example.test/catalogue/a-light-in-the-attic_1000/index.html")
	if err != nil {
		t.Fatalf("extract detail: %v", err)
	}

	if d.Title != "A Light in the Attic" {
		t.Errorf("title = %q", d.Title)
	}
	if d.Description == nil || *d.Description != "It's hard to imagine a world without A Light in the Attic." {
		t.Errorf("description = %v", d.Description)
	}
	if d.Category == nil || *d.Category != "Poetry" {
		t.Errorf("category = %v", d.Category)
	}
	wantInfo := map[string]string{
		"upc":               "a897fe39b1053632",
		"product_type":      "Books",
		"price_excl_tax":    "£51.77",
		"number_of_reviews": "0",
	}
	if diff := cmp.Diff(wantInfo, d.ProductInfo); diff != "" {
		t.Errorf("product info mismatch (-want +got):\n%s", diff)
	}
	if d.Availability == nil || !d.Availability.InStock || d.Availability.Count == nil || *d.Availability.Count != 22 {
		t.Errorf("availability = %+v", d.Availability)
	}

	rec := models.BookRecord{Title: "A Light in the Attic"}
	d.Apply(&rec)
	if rec.Category == nil || rec.ProductInfo["upc"] != "a897fe39b1053632" || rec.Availability.Count == nil {
		t.Errorf("Apply did not copy detail fields: %+v", rec)
	}
}

func TestExtractDetailFallbackAndAbsent(t *testing.T) {
	markup := `<html><head><meta name="description" content="  Only meta text.  "></head>
<body><div class="product_main"><h1>Bare Book</h1></div></body></html>`

	d, err := ExtractDetail([]byte(markup), "http://example.test/catalogue/bare_1/index.html")
	if err != nil {
		t.Fatalf("extract detail: %v", err)
	}
	if d.Description == nil || *d.Description != "Only meta text." {
		t.Errorf("description = %v", d.Description)
	}
	if d.Category != nil || d.ProductInfo != nil || d.Availability != nil {
		t.Errorf("expected absent fields, got %+v", d)
	}

	rec := models.BookRecord{Availability: models.Availability{InStock: true, Raw: "In stock"}}
	d.Apply(&rec)
	if rec.Category != nil || rec.ProductInfo != nil || !rec.Availability.InStock {
		t.Errorf("Apply overwrote fields with absent values: %+v", rec)
	}
}

func TestExtractDetailMissingTitle(t *testing.T) {
	_, err := ExtractDetail([]byte("<html><body></body></html>"), "http://example.test/x")
	if !errors.Is(err, ErrMissingField) {
		t.Fatalf("err = %v, want ErrMissingField", err)
	}
}

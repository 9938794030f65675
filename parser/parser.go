package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/aluiziolira/bookscrape/models"
	"github.com/shopspring/decimal"
)

var (
	// ErrMissingField marks an entry without a mandatory field.
	ErrMissingField = errors.New("missing mandatory field")
	// ErrInvalidPrice marks a price that does not parse as a decimal.
	ErrInvalidPrice = errors.New("invalid price")
	// ErrUnknownRating marks a star-rating class outside the five tiers.
	ErrUnknownRating = errors.New("unknown rating tier")
)

var ratingTiers = map[string]int{
	"One":   1,
	"Two":   2,
	"Three": 3,
	"Four":  4,
	"Five":  5,
}

var (
	stockCountPattern = regexp.MustCompile(`\((\d+)\s+available\)`)
	priceNoise        = regexp.MustCompile(`[^0-9.\-]`)
)

// ValidateBook ensures the scraper captured the required fields.
func ValidateBook(b *models.BookRecord) error {
	if b == nil {
		return fmt.Errorf("book is nil")
	}
	if strings.TrimSpace(b.Title) == "" {
		return fmt.Errorf("title: %w", ErrMissingField)
	}
	if strings.TrimSpace(b.URL) == "" {
		return fmt.Errorf("url for %q: %w", b.Title, ErrMissingField)
	}
	if b.Rating < 1 || b.Rating > 5 {
		return fmt.Errorf("rating %d for %q: %w", b.Rating, b.Title, ErrUnknownRating)
	}
	return nil
}

// NormalizePrice removes the currency symbol and surrounding whitespace.
func NormalizePrice(price string) string {
	return priceNoise.ReplaceAllString(strings.TrimSpace(price), "")
}

// ParsePrice converts page-locale currency text such as "£51.77" into a
// decimal amount. Parsing a Decimal's String() output returns the same value.
func ParsePrice(text string) (decimal.Decimal, error) {
	if strings.TrimSpace(text) == "" {
		return decimal.Decimal{}, fmt.Errorf("price: %w", ErrMissingField)
	}
	cleaned := NormalizePrice(text)
	if cleaned == "" {
		return decimal.Decimal{}, fmt.Errorf("%q: %w", text, ErrInvalidPrice)
	}
	value, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%q: %w", text, ErrInvalidPrice)
	}
	return value, nil
}

// NormalizeAvailability collapses the whitespace in availability text.
func NormalizeAvailability(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// ParseAvailability extracts the stock flag and, when stated, the number of
// copies available.
func ParseAvailability(text string) models.Availability {
	raw := NormalizeAvailability(text)
	out := models.Availability{Raw: raw}

	lower := strings.ToLower(raw)
	out.InStock = strings.HasPrefix(lower, "in stock")

	if m := stockCountPattern.FindStringSubmatch(raw); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			out.Count = &n
		}
	}
	return out
}

// RatingToNumeric converts the textual rating tier to the 1-5 scale.
func RatingToNumeric(rating string) (int, error) {
	tier := strings.TrimSpace(rating)
	value, ok := ratingTiers[tier]
	if !ok {
		return 0, fmt.Errorf("%q: %w", tier, ErrUnknownRating)
	}
	return value, nil
}

// ProductInfoKey turns a product table header ("Price (excl. tax)") into a
// lower_snake_case key ("price_excl_tax").
func ProductInfoKey(header string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(header)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			underscore = false
		case !underscore && b.Len() > 0:
			b.WriteByte('_')
			underscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

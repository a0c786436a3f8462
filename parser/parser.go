package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// DefaultPageSize is the number of products the search API returns per page.
const DefaultPageSize = 100

var (
	// ErrInvalidArgument marks malformed input to pure helpers.
	ErrInvalidArgument = errors.New("invalid argument")

	productURLPattern = regexp.MustCompile(`^https?://(?:www\.)?wildberries\.ru/catalog/(\d+)(?:/|$)`)
	whitespace        = regexp.MustCompile(`\s+`)
)

// Position maps a page number and a zero-based index on that page to the
// absolute 1-based rank. All rank numbers are computed here.
func Position(page, index, pageSize int) (int, error) {
	if page < 1 {
		return 0, fmt.Errorf("%w: page must be >= 1, got %d", ErrInvalidArgument, page)
	}
	if index < 0 {
		return 0, fmt.Errorf("%w: index must be >= 0, got %d", ErrInvalidArgument, index)
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return (page-1)*pageSize + index + 1, nil
}

// NormalizePrice converts a price in minor currency units to major units.
func NormalizePrice(minorUnits int64) float64 {
	return float64(minorUnits) / 100.0
}

// ParseProductID accepts a bare numeric identifier or a marketplace product URL.
func ParseProductID(ref string) (int64, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return 0, fmt.Errorf("%w: empty product reference", ErrInvalidArgument)
	}

	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		if id <= 0 {
			return 0, fmt.Errorf("%w: product id must be positive", ErrInvalidArgument)
		}
		return id, nil
	}

	match := productURLPattern.FindStringSubmatch(ref)
	if match == nil {
		return 0, fmt.Errorf("%w: not a product URL: %s", ErrInvalidArgument, ref)
	}
	id, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad product id in %s", ErrInvalidArgument, ref)
	}
	return id, nil
}

// CleanKeyword trims a keyword and collapses inner whitespace.
func CleanKeyword(keyword string) string {
	return whitespace.ReplaceAllString(strings.TrimSpace(keyword), " ")
}

// ValidateKeyword ensures a cleaned keyword can be sent as a search query.
func ValidateKeyword(keyword string) error {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return fmt.Errorf("keyword is empty")
	}
	if n := utf8.RuneCountInString(keyword); n > 100 {
		return fmt.Errorf("keyword too long: %d characters", n)
	}
	if strings.ContainsAny(keyword, "<>\"'&\n\r\t") {
		return fmt.Errorf("keyword contains forbidden characters: %q", keyword)
	}
	return nil
}

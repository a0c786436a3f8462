package parser

import (
	"errors"
	"strings"
	"testing"
)

func TestPosition(t *testing.T) {
	tests := []struct {
		name     string
		page     int
		index    int
		pageSize int
		expected int
	}{
		{name: "first item", page: 1, index: 0, pageSize: 100, expected: 1},
		{name: "last on first page", page: 1, index: 99, pageSize: 100, expected: 100},
		{name: "second page index five", page: 2, index: 5, pageSize: 100, expected: 106},
		{name: "default page size", page: 3, index: 0, pageSize: 0, expected: 201},
		{name: "small pages", page: 4, index: 2, pageSize: 10, expected: 33},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Position(tt.page, tt.index, tt.pageSize)
			if err != nil {
				t.Fatalf("Position(%d, %d, %d) error: %v", tt.page, tt.index, tt.pageSize, err)
			}
			if got != tt.expected {
				t.Fatalf("Position(%d, %d, %d) = %d, want %d", tt.page, tt.index, tt.pageSize, got, tt.expected)
			}
		})
	}
}

func TestPositionContinuousAcrossPages(t *testing.T) {
	for _, size := range []int{1, 7, 20, 100} {
		for page := 1; page <= 5; page++ {
			prev := 0
			for index := 0; index < size; index++ {
				pos, err := Position(page, index, size)
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if index > 0 && pos <= prev {
					t.Fatalf("size=%d page=%d: position %d not increasing after %d", size, page, pos, prev)
				}
				prev = pos
			}
			next, _ := Position(page+1, 0, size)
			last, _ := Position(page, size-1, size)
			if next != last+1 {
				t.Fatalf("size=%d: page %d starts at %d, previous page ends at %d", size, page+1, next, last)
			}
		}
	}
}

func TestPositionRejectsInvalidInput(t *testing.T) {
	for _, tc := range []struct{ page, index int }{{0, 0}, {-1, 3}, {1, -1}} {
		if _, err := Position(tc.page, tc.index, 100); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("Position(%d, %d) error = %v, want ErrInvalidArgument", tc.page, tc.index, err)
		}
	}
}

func TestNormalizePrice(t *testing.T) {
	if got := NormalizePrice(129900); got != 1299 {
		t.Fatalf("NormalizePrice(129900) = %v, want 1299", got)
	}
	if got := NormalizePrice(0); got != 0 {
		t.Fatalf("NormalizePrice(0) = %v, want 0", got)
	}
}

func TestParseProductID(t *testing.T) {
	tests := []struct {
		ref     string
		want    int64
		wantErr bool
	}{
		{ref: "123456", want: 123456},
		{ref: " 42 ", want: 42},
		{ref: "https://www.wildberries.ru/catalog/987654/detail.aspx", want: 987654},
		{ref: "https://wildberries.ru/catalog/555/detail.aspx?targetUrl=GP", want: 555},
		{ref: "http://www.wildberries.ru/catalog/777/", want: 777},
		{ref: "https://example.com/catalog/123/detail.aspx", wantErr: true},
		{ref: "https://www.wildberries.ru/brands/123", wantErr: true},
		{ref: "0", wantErr: true},
		{ref: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, err := ParseProductID(tt.ref)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidArgument) {
					t.Fatalf("ParseProductID(%q) error = %v, want ErrInvalidArgument", tt.ref, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseProductID(%q) error: %v", tt.ref, err)
			}
			if got != tt.want {
				t.Fatalf("ParseProductID(%q) = %d, want %d", tt.ref, got, tt.want)
			}
		})
	}
}

func TestKeywordHelpers(t *testing.T) {
	if got := CleanKeyword("  red   summer\tdress "); got != "red summer dress" {
		t.Fatalf("CleanKeyword = %q", got)
	}

	valid := []string{"платье", "iphone 15 pro", strings.Repeat("a", 100)}
	for _, kw := range valid {
		if err := ValidateKeyword(kw); err != nil {
			t.Fatalf("ValidateKeyword(%q) unexpected error: %v", kw, err)
		}
	}

	invalid := []string{"", "   ", strings.Repeat("я", 101), "<script>", "tom & jerry", `say "hi"`}
	for _, kw := range invalid {
		if err := ValidateKeyword(kw); err == nil {
			t.Fatalf("ValidateKeyword(%q) expected error", kw)
		}
	}
}

package parser

import (
	"errors"
	"testing"
)

func TestParseSearchPayload(t *testing.T) {
	body := []byte(`{
		"data": {
			"products": [
				{"id": 1, "name": "Dress", "brand": "Acme", "reviewRating": 4.7, "feedbacks": 120,
				 "sizes": [{"price": {"basic": 500000, "product": 349900, "total": 350000}}]},
				{"id": 2, "name": "Shirt", "sizes": [{"price": {"total": 120000, "basic": 150000}}]},
				{"id": 3, "name": "Scarf", "salePriceU": 99000, "priceU": 120000, "rating": 4},
				{"id": 4, "name": "Hat", "priceU": null},
				{"name": "no id"},
				"garbage"
			]
		}
	}`)

	result, err := ParseSearchPayload(body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(result.Products) != 4 {
		t.Fatalf("products=%d, want 4", len(result.Products))
	}
	if len(result.Skipped) != 2 {
		t.Fatalf("skipped=%d, want 2 (%v)", len(result.Skipped), result.Skipped)
	}

	first := result.Products[0]
	if first.ID != 1 || first.Name != "Dress" || first.Brand != "Acme" {
		t.Fatalf("unexpected first product: %+v", first)
	}
	if first.Price != 3499 {
		t.Fatalf("price=%v, want 3499 (sizes product price)", first.Price)
	}
	if first.Rating != 4.7 || first.Feedbacks != 120 {
		t.Fatalf("rating/feedbacks = %v/%d", first.Rating, first.Feedbacks)
	}

	if got := result.Products[1].Price; got != 1200 {
		t.Fatalf("fallback to total price: got %v, want 1200", got)
	}
	if got := result.Products[2].Price; got != 990 {
		t.Fatalf("fallback to salePriceU: got %v, want 990", got)
	}
	if got := result.Products[2].Rating; got != 4 {
		t.Fatalf("fallback rating: got %v, want 4", got)
	}
	if got := result.Products[3].Price; got != 0 {
		t.Fatalf("null price should be 0, got %v", got)
	}
}

func TestParseSearchPayloadPreservesOrder(t *testing.T) {
	body := []byte(`{"data":{"products":[{"id":30},{"id":10},{"id":20}]}}`)
	result, err := ParseSearchPayload(body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []int64{30, 10, 20}
	for i, p := range result.Products {
		if p.ID != want[i] {
			t.Fatalf("products[%d].ID = %d, want %d", i, p.ID, want[i])
		}
	}
}

func TestParseSearchPayloadAnomalies(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "html interstitial", body: "<!doctype html><html><title>Captcha</title></html>"},
		{name: "empty body", body: ""},
		{name: "json without data", body: `{"metadata":{"name":"x"}}`},
		{name: "data without products", body: `{"data":{"total":0}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSearchPayload([]byte(tt.body))
			if !errors.Is(err, ErrUnexpectedPayload) {
				t.Fatalf("error = %v, want ErrUnexpectedPayload", err)
			}
		})
	}
}

func TestParseSearchPayloadEmptyList(t *testing.T) {
	result, err := ParseSearchPayload([]byte(`{"data":{"products":[]}}`))
	if err != nil {
		t.Fatalf("empty list should not be an anomaly: %v", err)
	}
	if len(result.Products) != 0 {
		t.Fatalf("products=%d, want 0", len(result.Products))
	}
}

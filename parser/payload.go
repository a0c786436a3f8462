package parser

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aluiziolira/go-wb-ranker/models"
)

// ErrUnexpectedPayload is returned when a response body is not JSON or does
// not carry the product list.
var ErrUnexpectedPayload = errors.New("unexpected search payload")

type searchPayload struct {
	Data *struct {
		Products []json.RawMessage `json:"products"`
	} `json:"data"`
}

type productRecord struct {
	ID           *int64   `json:"id"`
	Name         string   `json:"name"`
	Brand        string   `json:"brand"`
	ReviewRating *float64 `json:"reviewRating"`
	Rating       *float64 `json:"rating"`
	Feedbacks    int      `json:"feedbacks"`
	SalePriceU   *int64   `json:"salePriceU"`
	PriceU       *int64   `json:"priceU"`
	Sizes        []struct {
		Price *struct {
			Product *int64 `json:"product"`
			Total   *int64 `json:"total"`
			Basic   *int64 `json:"basic"`
		} `json:"price"`
	} `json:"sizes"`
}

// PageResult is the decoded content of one search page.
type PageResult struct {
	Products []models.Product
	Skipped  []error
}

// ParseSearchPayload decodes a search response body. Entries that cannot be
// decoded or lack an identifier are skipped and reported in Skipped.
func ParseSearchPayload(body []byte) (PageResult, error) {
	var payload searchPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return PageResult{}, fmt.Errorf("%w: %v", ErrUnexpectedPayload, err)
	}
	if payload.Data == nil || payload.Data.Products == nil {
		return PageResult{}, fmt.Errorf("%w: missing data.products", ErrUnexpectedPayload)
	}

	result := PageResult{Products: make([]models.Product, 0, len(payload.Data.Products))}
	for i, raw := range payload.Data.Products {
		product, err := decodeProduct(raw)
		if err != nil {
			result.Skipped = append(result.Skipped, fmt.Errorf("entry %d: %w", i, err))
			continue
		}
		result.Products = append(result.Products, product)
	}
	return result, nil
}

func decodeProduct(raw json.RawMessage) (models.Product, error) {
	var rec productRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return models.Product{}, err
	}
	if rec.ID == nil {
		return models.Product{}, fmt.Errorf("missing id")
	}

	rating := 0.0
	switch {
	case rec.ReviewRating != nil:
		rating = *rec.ReviewRating
	case rec.Rating != nil:
		rating = *rec.Rating
	}

	return models.Product{
		ID:        *rec.ID,
		Name:      rec.Name,
		Price:     NormalizePrice(rec.priceMinorUnits()),
		Brand:     rec.Brand,
		Rating:    rating,
		Feedbacks: rec.Feedbacks,
	}, nil
}

// priceMinorUnits prefers the first size's product, total then basic price,
// falling back to the flat sale and list price fields.
func (r productRecord) priceMinorUnits() int64 {
	if len(r.Sizes) > 0 && r.Sizes[0].Price != nil {
		p := r.Sizes[0].Price
		for _, candidate := range []*int64{p.Product, p.Total, p.Basic} {
			if candidate != nil && *candidate != 0 {
				return *candidate
			}
		}
	}
	for _, candidate := range []*int64{r.SalePriceU, r.PriceU} {
		if candidate != nil && *candidate != 0 {
			return *candidate
		}
	}
	return 0
}

package models

import (
	"errors"
	"time"
)

// Doctor is a reference-data entry listed by the backend.
type Doctor struct {
	ID             string    `json:"_id"`
	Name           string    `json:"name"`
	Specialization string    `json:"specialization,omitempty"`
	Clinic         string    `json:"clinicName,omitempty"`
	Phone          string    `json:"phone,omitempty"`
	Location       *GeoPoint `json:"location,omitempty"`
}

// Product is a reference-data entry listed by the backend.
type Product struct {
	ID       string  `json:"_id"`
	Name     string  `json:"name"`
	Code     string  `json:"code,omitempty"`
	Category string  `json:"category,omitempty"`
	Price    float64 `json:"price,omitempty"`
}

// Stockist is a reference-data entry listed by the backend.
type Stockist struct {
	ID      string `json:"_id"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	Phone   string `json:"phone,omitempty"`
}

// SaleItem is one product line of a sale.
type SaleItem struct {
	ProductID string  `json:"product"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"price"`
}

// Sale is the create-sale request body.
type Sale struct {
	StockistID string     `json:"stockist"`
	Items      []SaleItem `json:"items"`
	SaleDate   time.Time  `json:"saleDate"`
	Notes      string     `json:"notes,omitempty"`
}

// Total returns the sum of quantity times unit price.
func (s Sale) Total() float64 {
	var total float64
	for _, it := range s.Items {
		total += float64(it.Quantity) * it.UnitPrice
	}
	return total
}

// Validate checks required sale fields.
func (s Sale) Validate() error {
	if s.StockistID == "" {
		return errors.New("stockist is required")
	}
	if len(s.Items) == 0 {
		return errors.New("at least one item is required")
	}
	for _, it := range s.Items {
		if it.ProductID == "" || it.Quantity <= 0 {
			return errors.New("items need a product and a positive quantity")
		}
	}
	return nil
}

// Scheme is the create-scheme request body.
type Scheme struct {
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	ProductIDs      []string  `json:"products,omitempty"`
	DiscountPercent float64   `json:"discountPercent"`
	ValidFrom       time.Time `json:"validFrom"`
	ValidTo         time.Time `json:"validTo"`
}

// Validate checks required scheme fields.
func (s Scheme) Validate() error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	if s.DiscountPercent < 0 || s.DiscountPercent > 100 {
		return errors.New("discountPercent must be between 0 and 100")
	}
	if !s.ValidTo.IsZero() && s.ValidTo.Before(s.ValidFrom) {
		return errors.New("validTo is before validFrom")
	}
	return nil
}

package models

import "github.com/shopspring/decimal"

// Category is a catalog category keyed by the external feed id.
type Category struct {
	ID           int64  `json:"id"`
	SourceID     string `json:"source_id"`
	NameEN       string `json:"name_en"`
	NameKH       string `json:"name_kh"`
	Description  string `json:"description"`
	Active       bool   `json:"active"`
	DisplayOrder int    `json:"display_order"`
}

// Product is a catalog product keyed by the external feed id. Price is a
// fixed-point amount with two decimals; all money math goes through
// lib/money so rounding stays consistent.
type Product struct {
	ID            int64           `json:"id"`
	SourceID      string          `json:"source_id"`
	NameEN        string          `json:"name_en"`
	NameKH        string          `json:"name_kh"`
	DescriptionEN string          `json:"description_en"`
	DescriptionKH string          `json:"description_kh"`
	Price         decimal.Decimal `json:"price"`
	ImageURL      string          `json:"image_url"`
	CategoryID    int64           `json:"category_id"`
	Active        bool            `json:"active"`
	Popular       bool            `json:"popular"`
	DisplayOrder  int             `json:"display_order"`
}

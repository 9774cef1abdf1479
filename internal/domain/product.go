package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category is one of the fixed catalog departments
type Category string

const (
	CategoryElectronics Category = "Electronics"
	CategoryClothing    Category = "Clothing"
	CategoryHome        Category = "Home & Garden"
	CategoryBooks       Category = "Books"
	CategorySports      Category = "Sports & Outdoors"
	CategoryBeauty      Category = "Beauty & Personal Care"
	CategoryToys        Category = "Toys & Games"
	CategoryHealth      Category = "Health & Wellness"
)

// Categories lists every category in display order
var Categories = []Category{
	CategoryElectronics,
	CategoryClothing,
	CategoryHome,
	CategoryBooks,
	CategorySports,
	CategoryBeauty,
	CategoryToys,
	CategoryHealth,
}

// Valid reports whether c is one of Categories
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Product is a catalog record. It is never mutated after generation.
type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Image       string          `json:"image"`
	Category    Category        `json:"category"`
	Rating      int             `json:"rating"`
	Stock       int             `json:"stock"`
	Brand       string          `json:"brand"`
	SKU         string          `json:"sku"`
	Tags        []string        `json:"tags"`
	CreatedAt   time.Time       `json:"createdAt"`
	Discount    int             `json:"discount"`
}

var hundred = decimal.NewFromInt(100)

// Valid reports whether the product carries an id
func (p *Product) Valid() bool {
	return p != nil && p.ID > 0
}

// InStock reports whether at least one unit is available
func (p Product) InStock() bool {
	return p.Stock > 0
}

// DiscountedPrice returns the unit price after the product discount, rounded to cents.
func (p Product) DiscountedPrice() decimal.Decimal {
	if p.Discount <= 0 {
		return p.Price
	}
	factor := hundred.Sub(decimal.NewFromInt(int64(p.Discount))).Div(hundred)
	return p.Price.Mul(factor).Round(2)
}

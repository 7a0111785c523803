package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// StockStatus is the availability of a product.
type StockStatus string

const (
	StockAvailable    StockStatus = "available"
	StockSoldOut      StockStatus = "soldOut"
	StockDiscontinued StockStatus = "discontinued"
)

// ParseStockStatus accepts canonical and legacy tokens. Empty means available.
func ParseStockStatus(s string) (StockStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "available", "disponivel":
		return StockAvailable, true
	case "soldout", "sold_out", "esgotado":
		return StockSoldOut, true
	case "discontinued", "descontinuado":
		return StockDiscontinued, true
	}
	return "", false
}

// Product is a catalog entry owned by one producer.
type Product struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"ownerId"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	StockStatus StockStatus     `json:"stockStatus"`
	Image       *DocumentRef    `json:"image,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Owner implements authz.Owned.
func (p *Product) Owner() string { return p.OwnerID }

// Kind implements authz.Owned.
func (p *Product) Kind() string { return "product" }

// Key implements authz.Owned.
func (p *Product) Key() string { return p.ID }

// PublicProduct is a storefront row. HasSeal is computed from the approved set,
// never stored.
type PublicProduct struct {
	Product
	HasSeal bool `json:"hasSeal"`
}

// CreateProductRequest is the body for POST /v1/producer/products.
type CreateProductRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	StockStatus string          `json:"stockStatus,omitempty"`
}

// UpdateProductRequest is the body for PATCH /v1/producer/products/{productId}.
// Nil fields are left unchanged.
type UpdateProductRequest struct {
	Name        *string          `json:"name,omitempty"`
	Description *string          `json:"description,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	StockStatus *string          `json:"stockStatus,omitempty"`
}

// ValidateProductFields checks the user-editable product fields.
func ValidateProductFields(name string, price decimal.Decimal) error {
	fields := map[string]string{}
	if strings.TrimSpace(name) == "" {
		fields["name"] = "nome é obrigatório"
	} else if len(name) > 100 {
		fields["name"] = "nome deve ter no máximo 100 caracteres"
	}
	if price.IsNegative() {
		fields["price"] = "preço não pode ser negativo"
	}
	if len(fields) > 0 {
		return &ErrValidation{Fields: fields}
	}
	return nil
}

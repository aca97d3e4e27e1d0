// Package catalog manages the product catalogue shown in the storefront.
package catalog

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the product does not exist.
	ErrNotFound = errors.New("catalog: product not found")
	// ErrSKUTaken indicates another product already uses the SKU.
	ErrSKUTaken = errors.New("catalog: sku already in use")
)

// Status is the publication state of a product.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

// Product is a sellable catalogue item. Prices are in minor units.
type Product struct {
	ID          int64     `json:"id"`
	SKU         string    `json:"sku"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	PriceCents  int64     `json:"price_cents"`
	Currency    string    `json:"currency"`
	Stock       int       `json:"stock"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProductInput is the create/update payload.
type ProductInput struct {
	SKU         string `json:"sku" validate:"required,max=64,printascii"`
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=10000"`
	PriceCents  int64  `json:"price_cents" validate:"gte=0"`
	Currency    string `json:"currency" validate:"required,iso4217"`
	Stock       int    `json:"stock" validate:"gte=0"`
	Status      Status `json:"status" validate:"required,oneof=draft published archived"`
}

// ListFilter narrows a product listing.
type ListFilter struct {
	Search string
	Status Status
	Limit  int
	Offset int
}

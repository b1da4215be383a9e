package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Branch is a single storefront of a business (the tenant; referenced by id
// everywhere). Slug is globally unique and immutable once published; it is
// the routable key of the public catalog.
type Branch struct {
	ID          int64           `json:"id"`
	BusinessID  int64           `json:"business_id"`
	Name        string          `json:"name"`
	Address     string          `json:"address"`
	Phone       string          `json:"phone"`
	Slug        string          `json:"slug"`
	DeliveryFee decimal.Decimal `json:"delivery_fee"`
	Active      bool            `json:"active"`
}

type Category struct {
	ID       int64  `json:"id"`
	BranchID int64  `json:"branch_id"`
	Name     string `json:"name"`
}

type Product struct {
	ID          int64           `json:"id"`
	BranchID    int64           `json:"branch_id"`
	CategoryID  int64           `json:"category_id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	ImageURL    string          `json:"image_url"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Active      bool            `json:"active"`
}

type PaymentMethod struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// DeliveryType describes how an order leaves the branch. RequiresAddress is
// the single source of truth for "this is a delivery": it forces a customer
// address and adds the branch delivery fee to the total.
type DeliveryType struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	RequiresAddress bool   `json:"requires_address"`
	Active          bool   `json:"active"`
}

type Order struct {
	ID              int64           `json:"id"`
	Number          string          `json:"number"`
	BranchID        int64           `json:"branch_id"`
	CustomerName    string          `json:"customer_name"`
	CustomerPhone   string          `json:"customer_phone"`
	CustomerAddress string          `json:"customer_address,omitempty"`
	PaymentMethodID int64           `json:"payment_method_id"`
	DeliveryTypeID  int64           `json:"delivery_type_id"`
	Observations    string          `json:"observations,omitempty"`
	Total           decimal.Decimal `json:"total"`
	Status          OrderStatus     `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	Lines           []OrderLine     `json:"lines,omitempty"`
}

// OrderLine carries the unit price snapshotted at admission time. It is never
// recomputed, even if the product's price changes later.
type OrderLine struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Note      string          `json:"note,omitempty"`
}

// DynamicQuote is the live {price, stock} pair for a product. It is always
// read fresh from the store, never cached.
type DynamicQuote struct {
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock"`
}

// CatalogSnapshot is the cacheable, static-only view of a branch catalog.
// It deliberately has no price and no stock fields anywhere.
type CatalogSnapshot struct {
	Branch         SnapshotBranch    `json:"branch"`
	Categories     []Category        `json:"categories"`
	Products       []SnapshotProduct `json:"products"`
	PaymentMethods []PaymentMethod   `json:"payment_methods"`
	DeliveryTypes  []DeliveryType    `json:"delivery_types"`
}

type SnapshotBranch struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
	Slug    string `json:"slug"`
}

type SnapshotProduct struct {
	ID          int64  `json:"id"`
	CategoryID  int64  `json:"category_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
}

// MergedProduct joins a snapshot product with its live quote for the public
// catalog view.
type MergedProduct struct {
	SnapshotProduct
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock"`
}

type MergedCatalog struct {
	Branch         SnapshotBranch  `json:"branch"`
	Categories     []Category      `json:"categories"`
	Products       []MergedProduct `json:"products"`
	PaymentMethods []PaymentMethod `json:"payment_methods"`
	DeliveryTypes  []DeliveryType  `json:"delivery_types"`
}

package order

import (
	"time"

	"github.com/noah-isme/backend-pasar/internal/promo"
)

// Status values an order moves through. The assembler only ever produces
// StatusPending; later transitions belong to payment and fulfilment.
const (
	StatusPending   = "PENDING_PAYMENT"
	StatusPaid      = "PAID"
	StatusShipped   = "SHIPPED"
	StatusDelivered = "DELIVERED"
	StatusCancelled = "CANCELLED"
)

// Order is the persisted order header. Totals are derived from the items,
// never set independently: subtotal is the sum of item subtotals,
// discountTotal the sum of item discount amounts, and
// total = subtotal - discountTotal + taxTotal.
type Order struct {
	ID            string
	CustomerID    *string
	Status        string
	Currency      string
	Subtotal      float64
	DiscountTotal float64
	TaxTotal      float64
	Total         float64
	CreatedAt     time.Time
}

// Item is one persisted order line. LineTotal = Subtotal - DiscountAmount;
// taxes are applied elsewhere and not double-counted here.
type Item struct {
	ID             string
	OrderID        string
	CartItemID     string
	ListingID      string
	VariantID      *string
	StoreID        string
	Name           string
	UnitPrice      float64
	Quantity       int
	Subtotal       float64
	DiscountAmount float64
	TaxAmount      float64
	LineTotal      float64
}

// AppliedDiscount snapshots the discount's value and type at the moment of
// use, so later edits to the definition never rewrite past orders.
type AppliedDiscount struct {
	ID          string
	OrderID     string
	DiscountID  string
	Code        string
	ValueType   promo.ValueType
	Value       float64
	TotalAmount float64
	Currency    string
}

// ItemDiscount binds one allocation to one persisted order item, referencing
// the applied discount that won for that item.
type ItemDiscount struct {
	ID              string
	OrderItemID     string
	OrderDiscountID string
	DiscountID      string
	Amount          float64
}

// Bundle is everything the assembler produces for one placed order, ready
// for the storage layer to write atomically.
type Bundle struct {
	Order         Order
	Items         []Item
	Discount      *AppliedDiscount
	ItemDiscounts []ItemDiscount
}

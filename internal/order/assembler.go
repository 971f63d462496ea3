package order

import (
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-pasar/internal/cart"
	"github.com/noah-isme/backend-pasar/internal/money"
	"github.com/noah-isme/backend-pasar/internal/promo"
)

// Assembler turns cart items into a persistable order bundle. It is pure
// computation with no I/O; NewID and Now exist so tests can pin identifiers
// and timestamps, and default to uuid.NewString and time.Now.
type Assembler struct {
	NewID func() string
	Now   func() time.Time
}

// CreateInput carries everything the assembler needs for one order. Discount
// is a single, already-chosen rule: when several discounts might qualify the
// caller selects one first via promo.EvaluateBestDiscountsPerItem. Keeping
// choose-best and apply-chosen separate keeps the no-stacking decision
// auditable independently of order creation.
type CreateInput struct {
	Items      []cart.Item
	Discount   *promo.Discount
	CustomerID *string
	Currency   string
}

// CreateOrderFromCart builds the order, its items, and the discount records
// for one checkout. An ineligible or zero-yield discount is silently not
// applied and the order proceeds undiscounted; this is deliberate, not an
// error path.
func (a Assembler) CreateOrderFromCart(in CreateInput) Bundle {
	now := a.now()
	orderID := a.newID()

	items := make([]Item, 0, len(in.Items))
	for _, ci := range in.Items {
		subtotal := ci.Subtotal()
		items = append(items, Item{
			ID:         a.newID(),
			OrderID:    orderID,
			CartItemID: ci.ID,
			ListingID:  ci.ListingID,
			VariantID:  ci.VariantID,
			StoreID:    ci.StoreID,
			Name:       ci.Name,
			UnitPrice:  ci.UnitPrice,
			Quantity:   ci.Quantity,
			Subtotal:   subtotal,
			LineTotal:  subtotal,
		})
	}

	var applied *AppliedDiscount
	var itemDiscounts []ItemDiscount
	if in.Discount != nil {
		if result := promo.EvaluateAmountOffProducts(in.Items, *in.Discount, in.CustomerID, now); result != nil {
			applied = &AppliedDiscount{
				ID:          a.newID(),
				OrderID:     orderID,
				DiscountID:  in.Discount.ID,
				Code:        in.Discount.Code,
				ValueType:   in.Discount.ValueType,
				Value:       in.Discount.Value,
				TotalAmount: result.TotalAmount,
				Currency:    in.Currency,
			}
			itemDiscounts = make([]ItemDiscount, 0, len(result.Allocations))
			for _, alloc := range result.Allocations {
				for i := range items {
					if items[i].CartItemID != alloc.CartItemID {
						continue
					}
					// Replace, never add: a line carries one allocation.
					items[i].DiscountAmount = alloc.Amount
					items[i].LineTotal = items[i].Subtotal - alloc.Amount
					itemDiscounts = append(itemDiscounts, ItemDiscount{
						ID:              a.newID(),
						OrderItemID:     items[i].ID,
						OrderDiscountID: applied.ID,
						DiscountID:      alloc.DiscountID,
						Amount:          alloc.Amount,
					})
					break
				}
			}
		}
	}

	var rawSubtotal, rawDiscount, rawTax float64
	for _, it := range items {
		rawSubtotal += it.Subtotal
		rawDiscount += it.DiscountAmount
		rawTax += it.TaxAmount
	}
	// Round the components once, then derive the total from the rounded
	// components so the reconciliation identity holds to the cent.
	subtotal := money.Round(rawSubtotal)
	discountTotal := money.Round(rawDiscount)
	taxTotal := money.Round(rawTax)

	return Bundle{
		Order: Order{
			ID:            orderID,
			CustomerID:    in.CustomerID,
			Status:        StatusPending,
			Currency:      in.Currency,
			Subtotal:      subtotal,
			DiscountTotal: discountTotal,
			TaxTotal:      taxTotal,
			Total:         money.Round(subtotal - discountTotal + taxTotal),
			CreatedAt:     now,
		},
		Items:         items,
		Discount:      applied,
		ItemDiscounts: itemDiscounts,
	}
}

func (a Assembler) newID() string {
	if a.NewID != nil {
		return a.NewID()
	}
	return uuid.NewString()
}

func (a Assembler) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

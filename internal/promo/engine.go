package promo

import (
	"math"
	"time"

	"github.com/noah-isme/backend-pasar/internal/cart"
	"github.com/noah-isme/backend-pasar/internal/money"
)

// Allocation assigns part of a discount's benefit to one cart line. A result
// carries at most one allocation per cart item.
type Allocation struct {
	CartItemID string
	DiscountID string
	Amount     float64
}

// Result is the outcome of evaluating discounts against a cart. DiscountID
// names the primary discount: the one with the greatest accumulated savings
// across all lines. It is representative only; each allocation carries the
// id of the discount that won its own line.
type Result struct {
	DiscountID  string
	TotalAmount float64
	Allocations []Allocation
}

// ItemAmount computes the saving the discount yields for a single cart line,
// assuming applicability has already been established.
func ItemAmount(d Discount, it cart.Item) float64 {
	subtotal := it.Subtotal()
	switch d.ValueType {
	case ValuePercentage:
		return money.Round(subtotal * d.Value / 100)
	case ValueFixed:
		// Fixed discounts are per unit, capped so a line can never go
		// negative.
		return money.Round(math.Min(d.Value*float64(it.Quantity), subtotal))
	default:
		return 0
	}
}

// EvaluateAmountOffProducts computes the discount a single rule yields over
// the cart, with one allocation per applicable line. It returns nil when the
// discount is inactive, closed to the customer, below its minimums, or yields
// nothing positive.
func EvaluateAmountOffProducts(items []cart.Item, d Discount, customerID *string, now time.Time) *Result {
	if !d.UsableFor(items, customerID, now) {
		return nil
	}
	allocations := make([]Allocation, 0, len(items))
	var total float64
	for _, it := range items {
		if !d.AppliesTo(it) {
			continue
		}
		amount := ItemAmount(d, it)
		if amount <= 0 {
			continue
		}
		allocations = append(allocations, Allocation{CartItemID: it.ID, DiscountID: d.ID, Amount: amount})
		total += amount
	}
	if len(allocations) == 0 {
		return nil
	}
	return &Result{DiscountID: d.ID, TotalAmount: money.Round(total), Allocations: allocations}
}

// EvaluateBestDiscountsPerItem selects, independently for each cart line, the
// single eligible discount yielding the largest saving for that line.
// Discounts never stack: a line receives at most one allocation. Ties keep
// the discount encountered first in the candidate order.
func EvaluateBestDiscountsPerItem(items []cart.Item, discounts []Discount, customerID *string, now time.Time) *Result {
	eligible := make([]Discount, 0, len(discounts))
	for _, d := range discounts {
		if d.UsableFor(items, customerID, now) {
			eligible = append(eligible, d)
		}
	}
	if len(eligible) == 0 || len(items) == 0 {
		return nil
	}

	allocations := make([]Allocation, 0, len(items))
	wonTotals := make(map[string]float64, len(eligible))
	wonOrder := make([]string, 0, len(eligible))
	var total float64
	for _, it := range items {
		var best float64
		bestID := ""
		for _, d := range eligible {
			if !d.AppliesTo(it) {
				continue
			}
			if amount := ItemAmount(d, it); amount > best {
				best = amount
				bestID = d.ID
			}
		}
		if bestID == "" || best <= 0 {
			continue
		}
		allocations = append(allocations, Allocation{CartItemID: it.ID, DiscountID: bestID, Amount: best})
		if _, seen := wonTotals[bestID]; !seen {
			wonOrder = append(wonOrder, bestID)
		}
		wonTotals[bestID] += best
		total += best
	}
	if len(allocations) == 0 {
		return nil
	}

	primary := ""
	var primaryTotal float64
	for _, id := range wonOrder {
		if wonTotals[id] > primaryTotal {
			primary = id
			primaryTotal = wonTotals[id]
		}
	}
	return &Result{DiscountID: primary, TotalAmount: money.Round(total), Allocations: allocations}
}

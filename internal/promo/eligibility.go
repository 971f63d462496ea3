package promo

import (
	"time"

	"github.com/noah-isme/backend-pasar/internal/cart"
)

// ActiveAt reports whether the discount is usable at the given instant.
// Discounts with no start or end are open-ended on that side.
func (d Discount) ActiveAt(now time.Time) bool {
	if !d.Active {
		return false
	}
	if d.StartsAt != nil && now.Before(*d.StartsAt) {
		return false
	}
	if d.EndsAt != nil && now.After(*d.EndsAt) {
		return false
	}
	return true
}

// EligibleCustomer reports whether the given customer may use the discount.
// A nil customerID means a guest checkout, which never matches a specific
// customer list.
func (d Discount) EligibleCustomer(customerID *string) bool {
	if d.Eligibility != EligibilitySpecific {
		return true
	}
	if customerID == nil || *customerID == "" {
		return false
	}
	for _, id := range d.CustomerIDs {
		if id == *customerID {
			return true
		}
	}
	return false
}

// AppliesTo reports whether the discount can touch the given cart line.
// Seller-owned discounts never cross their store's ownership boundary,
// regardless of how their targets are configured.
func (d Discount) AppliesTo(it cart.Item) bool {
	if d.OwnerType == OwnerSeller && it.StoreID != d.OwnerStoreID {
		return false
	}
	for _, target := range d.Targets {
		if target.Matches(it.ListingID) {
			return true
		}
	}
	return false
}

// MeetsMinimums checks the discount's minimum purchase thresholds against
// the subset of items it could apply to. A discount with minimums is judged
// on its own addressable lines, not the whole cart; an empty subset fails
// closed.
func (d Discount) MeetsMinimums(items []cart.Item) bool {
	if d.MinPurchaseAmount == nil && d.MinPurchaseQuantity == nil {
		return true
	}
	addressable := d.addressableItems(items)
	if len(addressable) == 0 {
		return false
	}
	if d.MinPurchaseAmount != nil && cart.Subtotal(addressable) < *d.MinPurchaseAmount {
		return false
	}
	if d.MinPurchaseQuantity != nil && cart.TotalQuantity(addressable) < *d.MinPurchaseQuantity {
		return false
	}
	return true
}

// UsableFor reports whether the discount can contribute anything at all to
// the checkout: active, open to the customer, and minimums satisfied.
// Item-level applicability is still decided per line via AppliesTo.
func (d Discount) UsableFor(items []cart.Item, customerID *string, now time.Time) bool {
	return d.ActiveAt(now) && d.EligibleCustomer(customerID) && d.MeetsMinimums(items)
}

func (d Discount) addressableItems(items []cart.Item) []cart.Item {
	subset := make([]cart.Item, 0, len(items))
	for _, it := range items {
		if d.AppliesTo(it) {
			subset = append(subset, it)
		}
	}
	return subset
}

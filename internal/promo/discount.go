package promo

import "time"

// ValueType determines how a discount's numeric value is interpreted.
type ValueType string

const (
	// ValuePercentage takes value percent off each applicable line subtotal.
	ValuePercentage ValueType = "percentage"
	// ValueFixed takes a fixed currency amount off per unit, capped at the
	// line subtotal.
	ValueFixed ValueType = "fixed"
)

// OwnerType identifies who created a discount and therefore which cart lines
// it may touch.
type OwnerType string

const (
	// OwnerAdmin discounts apply across every store on the marketplace.
	OwnerAdmin OwnerType = "admin"
	// OwnerSeller discounts are confined to the owning store's own lines.
	OwnerSeller OwnerType = "seller"
)

// EligibilityMode controls which customers may use a discount.
type EligibilityMode string

const (
	// EligibilityAll admits every customer, guests included.
	EligibilityAll EligibilityMode = "all"
	// EligibilitySpecific admits only the listed customer ids. Guests never
	// match a specific list.
	EligibilitySpecific EligibilityMode = "specific"
)

// Target names the products a discount can apply to: either every product on
// the marketplace or an explicit set of listings.
type Target struct {
	AllProducts bool
	ListingIDs  []string
}

// Matches reports whether the target covers the given listing.
func (t Target) Matches(listingID string) bool {
	if t.AllProducts {
		return true
	}
	for _, id := range t.ListingIDs {
		if id == listingID {
			return true
		}
	}
	return false
}

// Discount is a promotional rule, read-only to the evaluation engine.
// Definitions are created and edited elsewhere; the engine only decides
// whether and how much a given rule yields against a cart.
type Discount struct {
	ID        string
	Code      string
	Active    bool
	StartsAt  *time.Time
	EndsAt    *time.Time
	ValueType ValueType
	Value     float64
	OwnerType OwnerType
	// OwnerStoreID is set for seller-owned discounts and bounds them to cart
	// lines belonging to that store.
	OwnerStoreID string

	MinPurchaseAmount   *float64
	MinPurchaseQuantity *int

	Eligibility EligibilityMode
	CustomerIDs []string

	Targets []Target

	// UsageLimit and UsageCount are snapshot bookkeeping owned by the
	// storage layer; the engine never consumes usage itself.
	UsageLimit *int32
	UsageCount int32
}

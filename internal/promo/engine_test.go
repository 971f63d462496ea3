package promo

import (
	"testing"
	"time"

	"github.com/noah-isme/backend-pasar/internal/cart"
)

var testNow = time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

func allProducts() []Target {
	return []Target{{AllProducts: true}}
}

func activeDiscount(id string, vt ValueType, value float64) Discount {
	return Discount{
		ID:          id,
		Code:        id,
		Active:      true,
		ValueType:   vt,
		Value:       value,
		OwnerType:   OwnerAdmin,
		Eligibility: EligibilityAll,
		Targets:     allProducts(),
	}
}

func line(id, storeID string, price float64, qty int) cart.Item {
	return cart.Item{ID: id, ListingID: "listing-" + id, StoreID: storeID, UnitPrice: price, Quantity: qty, Name: id, Currency: "USD"}
}

func TestPercentageDiscountSingleLine(t *testing.T) {
	items := []cart.Item{line("a", "S1", 10, 2)}
	d := activeDiscount("d1", ValuePercentage, 10)

	result := EvaluateAmountOffProducts(items, d, nil, testNow)
	if result == nil {
		t.Fatal("expected a result, got nil")
	}
	if result.TotalAmount != 2.00 {
		t.Fatalf("expected total 2.00, got %v", result.TotalAmount)
	}
	if len(result.Allocations) != 1 {
		t.Fatalf("expected one allocation, got %d", len(result.Allocations))
	}
	if result.Allocations[0].Amount != 2.00 {
		t.Fatalf("expected allocation 2.00, got %v", result.Allocations[0].Amount)
	}
}

func TestFixedDiscountPerUnitAndCap(t *testing.T) {
	items := []cart.Item{line("a", "S1", 5, 3)}

	under := activeDiscount("d1", ValueFixed, 2)
	result := EvaluateAmountOffProducts(items, under, nil, testNow)
	if result == nil || result.TotalAmount != 6.00 {
		t.Fatalf("expected 6.00 (2 per unit x 3), got %+v", result)
	}

	over := activeDiscount("d2", ValueFixed, 10)
	result = EvaluateAmountOffProducts(items, over, nil, testNow)
	if result == nil || result.TotalAmount != 15.00 {
		t.Fatalf("expected clamp at line subtotal 15.00, got %+v", result)
	}
}

func TestSellerDiscountNeverCrossesStores(t *testing.T) {
	items := []cart.Item{line("a", "S2", 20, 1)}
	d := activeDiscount("d1", ValuePercentage, 50)
	d.OwnerType = OwnerSeller
	d.OwnerStoreID = "S1"

	if result := EvaluateAmountOffProducts(items, d, nil, testNow); result != nil {
		t.Fatalf("seller discount crossed ownership boundary: %+v", result)
	}
	if result := EvaluateBestDiscountsPerItem(items, []Discount{d}, nil, testNow); result != nil {
		t.Fatalf("selector applied a foreign seller discount: %+v", result)
	}
}

func TestBestDiscountWinsPerItem(t *testing.T) {
	items := []cart.Item{line("a", "S1", 50, 1)}
	weak := activeDiscount("x", ValueFixed, 3)
	strong := activeDiscount("y", ValuePercentage, 10)

	result := EvaluateBestDiscountsPerItem(items, []Discount{weak, strong}, nil, testNow)
	if result == nil {
		t.Fatal("expected a result, got nil")
	}
	if len(result.Allocations) != 1 {
		t.Fatalf("expected one allocation, got %d", len(result.Allocations))
	}
	alloc := result.Allocations[0]
	if alloc.DiscountID != "y" || alloc.Amount != 5.00 {
		t.Fatalf("expected y to win with 5.00, got %s with %v", alloc.DiscountID, alloc.Amount)
	}
	if result.DiscountID != "y" {
		t.Fatalf("expected primary discount y, got %s", result.DiscountID)
	}
}

func TestNoStackingAcrossManyDiscounts(t *testing.T) {
	items := []cart.Item{
		line("a", "S1", 10, 1),
		line("b", "S1", 20, 2),
		line("c", "S2", 30, 1),
	}
	discounts := []Discount{
		activeDiscount("d1", ValuePercentage, 5),
		activeDiscount("d2", ValuePercentage, 10),
		activeDiscount("d3", ValueFixed, 1),
	}

	result := EvaluateBestDiscountsPerItem(items, discounts, nil, testNow)
	if result == nil {
		t.Fatal("expected a result, got nil")
	}
	seen := map[string]bool{}
	for _, alloc := range result.Allocations {
		if seen[alloc.CartItemID] {
			t.Fatalf("item %s received more than one allocation", alloc.CartItemID)
		}
		seen[alloc.CartItemID] = true
	}
	// d2 at 10% beats 5% and 1-per-unit on every line here.
	for _, alloc := range result.Allocations {
		if alloc.DiscountID != "d2" {
			t.Fatalf("expected d2 to win item %s, got %s", alloc.CartItemID, alloc.DiscountID)
		}
	}
}

func TestPerItemOptimalityNotOrderTotal(t *testing.T) {
	// d1 is better for the cheap line, d2 for the expensive one; each line
	// keeps its own winner rather than one discount sweeping the order.
	items := []cart.Item{
		line("cheap", "S1", 4, 1),
		line("dear", "S1", 100, 1),
	}
	perUnit := activeDiscount("d1", ValueFixed, 3)
	percent := activeDiscount("d2", ValuePercentage, 10)

	result := EvaluateBestDiscountsPerItem(items, []Discount{perUnit, percent}, nil, testNow)
	if result == nil {
		t.Fatal("expected a result, got nil")
	}
	winners := map[string]Allocation{}
	for _, alloc := range result.Allocations {
		winners[alloc.CartItemID] = alloc
	}
	if w := winners["cheap"]; w.DiscountID != "d1" || w.Amount != 3.00 {
		t.Fatalf("cheap line: expected d1 at 3.00, got %s at %v", w.DiscountID, w.Amount)
	}
	if w := winners["dear"]; w.DiscountID != "d2" || w.Amount != 10.00 {
		t.Fatalf("dear line: expected d2 at 10.00, got %s at %v", w.DiscountID, w.Amount)
	}
	if result.DiscountID != "d2" {
		t.Fatalf("expected primary d2 (largest accumulated total), got %s", result.DiscountID)
	}
	if result.TotalAmount != 13.00 {
		t.Fatalf("expected total 13.00, got %v", result.TotalAmount)
	}
}

func TestTieKeepsFirstCandidate(t *testing.T) {
	items := []cart.Item{line("a", "S1", 10, 1)}
	first := activeDiscount("first", ValuePercentage, 10)
	second := activeDiscount("second", ValueFixed, 1)

	result := EvaluateBestDiscountsPerItem(items, []Discount{first, second}, nil, testNow)
	if result == nil {
		t.Fatal("expected a result, got nil")
	}
	if result.Allocations[0].DiscountID != "first" {
		t.Fatalf("tie should keep the first candidate, got %s", result.Allocations[0].DiscountID)
	}
}

func TestMinimumPurchaseAmountFailsClosed(t *testing.T) {
	min := 50.0
	d := activeDiscount("d1", ValuePercentage, 10)
	d.MinPurchaseAmount = &min

	items := []cart.Item{line("a", "S1", 40, 1)}
	if result := EvaluateAmountOffProducts(items, d, nil, testNow); result != nil {
		t.Fatalf("minimum spend unmet but discount applied: %+v", result)
	}
	if result := EvaluateBestDiscountsPerItem(items, []Discount{d}, nil, testNow); result != nil {
		t.Fatalf("selector ignored minimum spend: %+v", result)
	}
}

func TestMinimumJudgedOnAddressableSubsetOnly(t *testing.T) {
	// The whole cart is worth 100, but the discount can only address the S1
	// line worth 40, so a minimum of 50 is unmet.
	min := 50.0
	d := activeDiscount("d1", ValuePercentage, 10)
	d.OwnerType = OwnerSeller
	d.OwnerStoreID = "S1"
	d.MinPurchaseAmount = &min

	items := []cart.Item{
		line("a", "S1", 40, 1),
		line("b", "S2", 60, 1),
	}
	if result := EvaluateAmountOffProducts(items, d, nil, testNow); result != nil {
		t.Fatalf("minimum satisfied by lines outside the ownership boundary: %+v", result)
	}
}

func TestMinimumQuantity(t *testing.T) {
	minQty := 3
	d := activeDiscount("d1", ValuePercentage, 10)
	d.MinPurchaseQuantity = &minQty

	if result := EvaluateAmountOffProducts([]cart.Item{line("a", "S1", 5, 2)}, d, nil, testNow); result != nil {
		t.Fatalf("quantity minimum unmet but discount applied: %+v", result)
	}
	if result := EvaluateAmountOffProducts([]cart.Item{line("a", "S1", 5, 3)}, d, nil, testNow); result == nil {
		t.Fatal("quantity minimum met but discount refused")
	}
}

func TestListingTargeting(t *testing.T) {
	d := activeDiscount("d1", ValuePercentage, 10)
	d.Targets = []Target{{ListingIDs: []string{"listing-a"}}}

	items := []cart.Item{
		line("a", "S1", 10, 1),
		line("b", "S1", 10, 1),
	}
	result := EvaluateAmountOffProducts(items, d, nil, testNow)
	if result == nil {
		t.Fatal("expected a result, got nil")
	}
	if len(result.Allocations) != 1 || result.Allocations[0].CartItemID != "a" {
		t.Fatalf("expected only the targeted line to be discounted, got %+v", result.Allocations)
	}
}

func TestInactiveAndWindowedDiscounts(t *testing.T) {
	items := []cart.Item{line("a", "S1", 10, 1)}

	inactive := activeDiscount("d1", ValuePercentage, 10)
	inactive.Active = false
	if EvaluateAmountOffProducts(items, inactive, nil, testNow) != nil {
		t.Fatal("inactive discount applied")
	}

	future := testNow.Add(time.Hour)
	notYet := activeDiscount("d2", ValuePercentage, 10)
	notYet.StartsAt = &future
	if EvaluateAmountOffProducts(items, notYet, nil, testNow) != nil {
		t.Fatal("discount applied before its start")
	}

	past := testNow.Add(-time.Hour)
	expired := activeDiscount("d3", ValuePercentage, 10)
	expired.EndsAt = &past
	if EvaluateAmountOffProducts(items, expired, nil, testNow) != nil {
		t.Fatal("discount applied after its end")
	}
}

func TestSpecificCustomerEligibility(t *testing.T) {
	items := []cart.Item{line("a", "S1", 10, 1)}
	d := activeDiscount("d1", ValuePercentage, 10)
	d.Eligibility = EligibilitySpecific
	d.CustomerIDs = []string{"cust-1"}

	if EvaluateAmountOffProducts(items, d, nil, testNow) != nil {
		t.Fatal("guest matched a specific customer list")
	}
	other := "cust-2"
	if EvaluateAmountOffProducts(items, d, &other, testNow) != nil {
		t.Fatal("unlisted customer matched a specific list")
	}
	listed := "cust-1"
	if EvaluateAmountOffProducts(items, d, &listed, testNow) == nil {
		t.Fatal("listed customer rejected")
	}
}

func TestNoResultWhenNothingYields(t *testing.T) {
	if EvaluateBestDiscountsPerItem(nil, []Discount{activeDiscount("d1", ValuePercentage, 10)}, nil, testNow) != nil {
		t.Fatal("empty cart produced a result")
	}
	if EvaluateBestDiscountsPerItem([]cart.Item{line("a", "S1", 10, 1)}, nil, nil, testNow) != nil {
		t.Fatal("no candidates produced a result")
	}
	zero := activeDiscount("d1", ValuePercentage, 0)
	if EvaluateAmountOffProducts([]cart.Item{line("a", "S1", 10, 1)}, zero, nil, testNow) != nil {
		t.Fatal("zero-yield discount produced a result")
	}
}

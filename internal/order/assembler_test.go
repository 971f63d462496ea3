package order

import (
	"fmt"
	"testing"
	"time"

	"github.com/noah-isme/backend-pasar/internal/cart"
	"github.com/noah-isme/backend-pasar/internal/money"
	"github.com/noah-isme/backend-pasar/internal/promo"
)

var testNow = time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

func testAssembler() Assembler {
	n := 0
	return Assembler{
		NewID: func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		},
		Now: func() time.Time { return testNow },
	}
}

func adminPercentage(id string, value float64) *promo.Discount {
	return &promo.Discount{
		ID:          id,
		Code:        id,
		Active:      true,
		ValueType:   promo.ValuePercentage,
		Value:       value,
		OwnerType:   promo.OwnerAdmin,
		Eligibility: promo.EligibilityAll,
		Targets:     []promo.Target{{AllProducts: true}},
	}
}

func TestCreateOrderWithPercentageDiscount(t *testing.T) {
	items := []cart.Item{{ID: "ci-1", ListingID: "l-1", StoreID: "S1", UnitPrice: 10, Quantity: 2, Name: "mug", Currency: "USD"}}

	bundle := testAssembler().CreateOrderFromCart(CreateInput{
		Items:    items,
		Discount: adminPercentage("d1", 10),
		Currency: "USD",
	})

	if bundle.Order.Subtotal != 20.00 {
		t.Fatalf("expected subtotal 20.00, got %v", bundle.Order.Subtotal)
	}
	if bundle.Order.DiscountTotal != 2.00 {
		t.Fatalf("expected discount total 2.00, got %v", bundle.Order.DiscountTotal)
	}
	if bundle.Order.Total != 18.00 {
		t.Fatalf("expected total 18.00, got %v", bundle.Order.Total)
	}
	if len(bundle.Items) != 1 {
		t.Fatalf("expected one order item, got %d", len(bundle.Items))
	}
	item := bundle.Items[0]
	if item.DiscountAmount != 2.00 || item.LineTotal != 18.00 {
		t.Fatalf("expected line 18.00 after 2.00 off, got %v after %v", item.LineTotal, item.DiscountAmount)
	}
	if bundle.Discount == nil {
		t.Fatal("expected an applied discount snapshot")
	}
	if bundle.Discount.TotalAmount != 2.00 || bundle.Discount.ValueType != promo.ValuePercentage {
		t.Fatalf("snapshot mismatch: %+v", bundle.Discount)
	}
	if len(bundle.ItemDiscounts) != 1 {
		t.Fatalf("expected one item discount, got %d", len(bundle.ItemDiscounts))
	}
	if bundle.ItemDiscounts[0].OrderItemID != item.ID || bundle.ItemDiscounts[0].OrderDiscountID != bundle.Discount.ID {
		t.Fatalf("item discount not bound to item and snapshot: %+v", bundle.ItemDiscounts[0])
	}
}

func TestCreateOrderWithoutDiscount(t *testing.T) {
	items := []cart.Item{
		{ID: "ci-1", ListingID: "l-1", StoreID: "S1", UnitPrice: 7.5, Quantity: 2, Name: "a", Currency: "USD"},
		{ID: "ci-2", ListingID: "l-2", StoreID: "S2", UnitPrice: 3.25, Quantity: 4, Name: "b", Currency: "USD"},
	}

	bundle := testAssembler().CreateOrderFromCart(CreateInput{Items: items, Currency: "USD"})

	if bundle.Discount != nil || len(bundle.ItemDiscounts) != 0 {
		t.Fatalf("no discount supplied but records produced: %+v", bundle.Discount)
	}
	if bundle.Order.Subtotal != 28.00 {
		t.Fatalf("expected subtotal 28.00, got %v", bundle.Order.Subtotal)
	}
	if bundle.Order.Total != 28.00 {
		t.Fatalf("expected total 28.00, got %v", bundle.Order.Total)
	}
	for _, item := range bundle.Items {
		if item.DiscountAmount != 0 || item.LineTotal != item.Subtotal {
			t.Fatalf("undiscounted item mutated: %+v", item)
		}
	}
}

func TestIneligibleDiscountSilentlySkipped(t *testing.T) {
	items := []cart.Item{{ID: "ci-1", ListingID: "l-1", StoreID: "S2", UnitPrice: 10, Quantity: 1, Name: "a", Currency: "USD"}}
	d := adminPercentage("d1", 10)
	d.OwnerType = promo.OwnerSeller
	d.OwnerStoreID = "S1"

	bundle := testAssembler().CreateOrderFromCart(CreateInput{Items: items, Discount: d, Currency: "USD"})

	if bundle.Discount != nil {
		t.Fatalf("ineligible discount produced a snapshot: %+v", bundle.Discount)
	}
	if bundle.Order.DiscountTotal != 0 || bundle.Order.Total != 10.00 {
		t.Fatalf("order should proceed undiscounted, got %+v", bundle.Order)
	}
}

func TestTotalsReconcile(t *testing.T) {
	items := []cart.Item{
		{ID: "ci-1", ListingID: "l-1", StoreID: "S1", UnitPrice: 19.99, Quantity: 3, Name: "a", Currency: "USD"},
		{ID: "ci-2", ListingID: "l-2", StoreID: "S1", UnitPrice: 0.35, Quantity: 7, Name: "b", Currency: "USD"},
	}

	bundle := testAssembler().CreateOrderFromCart(CreateInput{
		Items:    items,
		Discount: adminPercentage("d1", 15),
		Currency: "USD",
	})

	var itemSubtotals, itemDiscounts float64
	for _, item := range bundle.Items {
		itemSubtotals += item.Subtotal
		itemDiscounts += item.DiscountAmount
		if item.LineTotal != item.Subtotal-item.DiscountAmount {
			t.Fatalf("line total broken for %s: %+v", item.ID, item)
		}
	}
	o := bundle.Order
	if o.Subtotal != money.Round(itemSubtotals) {
		t.Fatalf("order subtotal %v is not the sum of item subtotals %v", o.Subtotal, itemSubtotals)
	}
	if o.DiscountTotal != money.Round(itemDiscounts) {
		t.Fatalf("order discount %v is not the sum of item discounts %v", o.DiscountTotal, itemDiscounts)
	}
	if o.Total != money.Round(o.Subtotal-o.DiscountTotal+o.TaxTotal) {
		t.Fatalf("total %v does not reconcile with %v - %v + %v", o.Total, o.Subtotal, o.DiscountTotal, o.TaxTotal)
	}
}

func TestDeterministicIdentifiers(t *testing.T) {
	items := []cart.Item{{ID: "ci-1", ListingID: "l-1", StoreID: "S1", UnitPrice: 10, Quantity: 1, Name: "a", Currency: "USD"}}

	bundle := testAssembler().CreateOrderFromCart(CreateInput{Items: items, Currency: "USD"})

	if bundle.Order.ID != "id-1" {
		t.Fatalf("expected injected id generator to produce id-1, got %s", bundle.Order.ID)
	}
	if bundle.Items[0].ID != "id-2" || bundle.Items[0].OrderID != "id-1" {
		t.Fatalf("item ids not generated in order: %+v", bundle.Items[0])
	}
	if !bundle.Order.CreatedAt.Equal(testNow) {
		t.Fatalf("expected injected clock, got %v", bundle.Order.CreatedAt)
	}
}

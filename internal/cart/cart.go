package cart

// Cart is the stored cart header; its lines are loaded separately. A nil
// CustomerID marks a guest cart.
type Cart struct {
	ID         string
	CustomerID *string
	Currency   string
}

// Item is a single cart line awaiting checkout. Items are transient: they are
// assembled per checkout attempt from the stored cart rows and never
// persisted in this shape.
type Item struct {
	ID        string
	ListingID string
	VariantID *string
	StoreID   string
	UnitPrice float64
	Quantity  int
	Name      string
	Currency  string
}

// Subtotal returns the undiscounted line amount.
func (it Item) Subtotal() float64 {
	return it.UnitPrice * float64(it.Quantity)
}

// Subtotal sums the undiscounted line amounts across all items.
func Subtotal(items []Item) float64 {
	var total float64
	for _, it := range items {
		total += it.Subtotal()
	}
	return total
}

// TotalQuantity sums the quantities across all items.
func TotalQuantity(items []Item) int {
	total := 0
	for _, it := range items {
		total += it.Quantity
	}
	return total
}

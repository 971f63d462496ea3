package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-pasar/internal/money"
)

// ErrInvalidInput is returned when the provided payload is invalid.
var ErrInvalidInput = errors.New("cart: invalid input")

// Querier captures the persistence operations the cart service requires.
type Querier interface {
	GetCart(ctx context.Context, cartID string) (Cart, error)
	ListCartItems(ctx context.Context, cartID string) ([]Item, error)
	CreateCart(ctx context.Context, c Cart) error
	UpsertCartItem(ctx context.Context, cartID string, it Item) error
	UpdateCartItemQuantity(ctx context.Context, cartID, itemID string, quantity int) error
	DeleteCartItem(ctx context.Context, cartID, itemID string) error
}

// Service encapsulates cart operations. Prices are captured on the line at
// add time; checkout re-reads them as-is.
type Service struct {
	Q               Querier
	DefaultCurrency string
	NewID           func() string
}

// View is a cart with its lines and the running subtotal.
type View struct {
	Cart     Cart
	Items    []Item
	Subtotal float64
}

// ItemInput describes a line to add.
type ItemInput struct {
	ListingID string
	VariantID *string
	StoreID   string
	Name      string
	UnitPrice float64
	Quantity  int
}

// Create opens a cart, owned by the customer when one is given.
func (s *Service) Create(ctx context.Context, customerID *string, currency string) (Cart, error) {
	if s == nil || s.Q == nil {
		return Cart{}, errors.New("cart service not configured")
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = s.defaultCurrency()
	}
	c := Cart{ID: s.newID(), CustomerID: customerID, Currency: currency}
	if err := s.Q.CreateCart(ctx, c); err != nil {
		return Cart{}, err
	}
	return c, nil
}

// Get loads the cart with its lines and subtotal.
func (s *Service) Get(ctx context.Context, cartID string) (View, error) {
	if s == nil || s.Q == nil {
		return View{}, errors.New("cart service not configured")
	}
	c, err := s.Q.GetCart(ctx, cartID)
	if err != nil {
		return View{}, err
	}
	items, err := s.Q.ListCartItems(ctx, cartID)
	if err != nil {
		return View{}, err
	}
	return View{Cart: c, Items: items, Subtotal: money.Round(Subtotal(items))}, nil
}

// AddItem appends a line, merging quantity into an existing line for the
// same listing and variant.
func (s *Service) AddItem(ctx context.Context, cartID string, in ItemInput) error {
	if s == nil || s.Q == nil {
		return errors.New("cart service not configured")
	}
	if in.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive: %w", ErrInvalidInput)
	}
	if in.UnitPrice < 0 {
		return fmt.Errorf("unit price cannot be negative: %w", ErrInvalidInput)
	}
	if strings.TrimSpace(in.ListingID) == "" || strings.TrimSpace(in.StoreID) == "" {
		return fmt.Errorf("listing and store ids are required: %w", ErrInvalidInput)
	}
	if _, err := s.Q.GetCart(ctx, cartID); err != nil {
		return err
	}
	it := Item{
		ID:        s.newID(),
		ListingID: in.ListingID,
		VariantID: in.VariantID,
		StoreID:   in.StoreID,
		Name:      in.Name,
		UnitPrice: in.UnitPrice,
		Quantity:  in.Quantity,
	}
	return s.Q.UpsertCartItem(ctx, cartID, it)
}

// UpdateItem sets a line's quantity; zero removes the line.
func (s *Service) UpdateItem(ctx context.Context, cartID, itemID string, quantity int) error {
	if s == nil || s.Q == nil {
		return errors.New("cart service not configured")
	}
	if quantity < 0 {
		return fmt.Errorf("quantity cannot be negative: %w", ErrInvalidInput)
	}
	if quantity == 0 {
		return s.Q.DeleteCartItem(ctx, cartID, itemID)
	}
	return s.Q.UpdateCartItemQuantity(ctx, cartID, itemID, quantity)
}

// RemoveItem drops a line from the cart.
func (s *Service) RemoveItem(ctx context.Context, cartID, itemID string) error {
	if s == nil || s.Q == nil {
		return errors.New("cart service not configured")
	}
	return s.Q.DeleteCartItem(ctx, cartID, itemID)
}

func (s *Service) newID() string {
	if s != nil && s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

func (s *Service) defaultCurrency() string {
	if s != nil && strings.TrimSpace(s.DefaultCurrency) != "" {
		return s.DefaultCurrency
	}
	return "USD"
}

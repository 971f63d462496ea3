package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/noah-isme/backend-pasar/internal/cart"
	"github.com/noah-isme/backend-pasar/internal/common"
	"github.com/noah-isme/backend-pasar/internal/events"
	"github.com/noah-isme/backend-pasar/internal/obs"
	"github.com/noah-isme/backend-pasar/internal/order"
	"github.com/noah-isme/backend-pasar/internal/promo"
	"github.com/noah-isme/backend-pasar/internal/store"
)

// Repository captures the persistence operations checkout requires.
type Repository interface {
	GetCart(ctx context.Context, cartID string) (cart.Cart, error)
	ListCartItems(ctx context.Context, cartID string) ([]cart.Item, error)
	ListCandidateDiscounts(ctx context.Context, storeIDs []string) ([]promo.Discount, error)
	GetDiscountByCode(ctx context.Context, code string) (promo.Discount, error)
	GetDiscountByID(ctx context.Context, id string) (promo.Discount, error)
	PlaceOrder(ctx context.Context, bundle order.Bundle) error
}

// Input is the checkout request payload. DiscountCode restricts the
// evaluation to one explicit code; when absent every candidate discount for
// the cart's stores competes.
type Input struct {
	CartID       string  `json:"cartId"`
	DiscountCode *string `json:"discountCode"`
}

// Output summarises the placed order.
type Output struct {
	OrderID       string  `json:"orderId"`
	Status        string  `json:"status"`
	Currency      string  `json:"currency"`
	Subtotal      float64 `json:"subtotal"`
	DiscountTotal float64 `json:"discountTotal"`
	Total         float64 `json:"total"`
	DiscountCode  *string `json:"discountCode,omitempty"`
}

// Service orchestrates order placement: load the cart, pick the best
// discount, assemble the order, persist it atomically, then emit the
// order.created event.
type Service struct {
	Repo      Repository
	Assembler order.Assembler
	Events    *events.Bus
	Now       func() time.Time
}

// Create places an order for the given customer's cart. Discount
// ineligibility is never an error here: the order simply proceeds
// undiscounted.
func (s *Service) Create(ctx context.Context, customerID *string, in Input) (Output, error) {
	if s == nil || s.Repo == nil {
		return Output{}, errors.New("checkout service not configured")
	}
	start := time.Now()
	if customerID != nil && *customerID == "" {
		customerID = nil
	}
	if strings.TrimSpace(in.CartID) == "" {
		return Output{}, common.NewAppError("BAD_REQUEST", "cartId is required", http.StatusBadRequest, nil)
	}

	cartRow, err := s.Repo.GetCart(ctx, in.CartID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Output{}, common.NewAppError("NOT_FOUND", "cart not found", http.StatusNotFound, err)
		}
		return Output{}, err
	}
	// only owner-locked carts require a matching customer; guest carts check
	// out as guests
	if cartRow.CustomerID != nil && (customerID == nil || *cartRow.CustomerID != *customerID) {
		return Output{}, common.NewAppError("FORBIDDEN", "cart does not belong to customer", http.StatusForbidden, nil)
	}
	items, err := s.Repo.ListCartItems(ctx, in.CartID)
	if err != nil {
		return Output{}, err
	}
	if len(items) == 0 {
		return Output{}, common.NewAppError("BAD_REQUEST", "cart is empty", http.StatusBadRequest, nil)
	}

	chosen, err := s.chooseDiscount(ctx, items, in.DiscountCode, customerID)
	if err != nil {
		return Output{}, err
	}

	bundle := s.Assembler.CreateOrderFromCart(order.CreateInput{
		Items:      items,
		Discount:   chosen,
		CustomerID: customerID,
		Currency:   cartRow.Currency,
	})

	if err := s.Repo.PlaceOrder(ctx, bundle); err != nil {
		if errors.Is(err, store.ErrUsageLimitReached) {
			// The chosen discount ran out between evaluation and commit.
			// Same policy as any other ineligibility: place undiscounted.
			bundle = s.Assembler.CreateOrderFromCart(order.CreateInput{
				Items:      items,
				CustomerID: customerID,
				Currency:   cartRow.Currency,
			})
			err = s.Repo.PlaceOrder(ctx, bundle)
		}
		if err != nil {
			if obs.CheckoutTotal != nil {
				obs.CheckoutTotal.WithLabelValues("error").Inc()
			}
			return Output{}, fmt.Errorf("place order: %w", err)
		}
	}

	if obs.CheckoutTotal != nil {
		obs.CheckoutTotal.WithLabelValues("ok").Inc()
	}
	if obs.CheckoutDuration != nil {
		obs.CheckoutDuration.Observe(obs.DurationMillis(time.Since(start)))
	}
	if bundle.Discount != nil {
		if chosen != nil && obs.DiscountAppliedTotal != nil {
			obs.DiscountAppliedTotal.WithLabelValues(string(chosen.OwnerType), string(chosen.ValueType)).Inc()
		}
		if obs.DiscountSavingsTotal != nil {
			obs.DiscountSavingsTotal.Add(bundle.Order.DiscountTotal)
		}
	}

	if s.Events != nil {
		payload := map[string]any{
			"orderId":       bundle.Order.ID,
			"total":         bundle.Order.Total,
			"discountTotal": bundle.Order.DiscountTotal,
		}
		if customerID != nil {
			payload["customerId"] = *customerID
		}
		_, _ = s.Events.Emit(ctx, events.TopicOrderCreated, bundle.Order.ID, payload)
	}

	out := Output{
		OrderID:       bundle.Order.ID,
		Status:        bundle.Order.Status,
		Currency:      bundle.Order.Currency,
		Subtotal:      bundle.Order.Subtotal,
		DiscountTotal: bundle.Order.DiscountTotal,
		Total:         bundle.Order.Total,
	}
	if bundle.Discount != nil {
		code := bundle.Discount.Code
		out.DiscountCode = &code
	}
	return out, nil
}

// chooseDiscount runs the best-per-item selection over the candidate set and
// returns the primary winner, or nil when nothing yields. The assembler
// receives exactly one discount; choosing stays separate from applying so
// the no-stacking decision is auditable on its own.
func (s *Service) chooseDiscount(ctx context.Context, items []cart.Item, code *string, customerID *string) (*promo.Discount, error) {
	var candidates []promo.Discount
	if code != nil && strings.TrimSpace(*code) != "" {
		d, err := s.Repo.GetDiscountByCode(ctx, strings.TrimSpace(*code))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, common.NewAppError("NOT_FOUND", "discount code not found", http.StatusNotFound, err)
			}
			return nil, err
		}
		candidates = []promo.Discount{d}
	} else {
		var err error
		candidates, err = s.Repo.ListCandidateDiscounts(ctx, storeIDs(items))
		if err != nil {
			return nil, err
		}
	}
	result := promo.EvaluateBestDiscountsPerItem(items, candidates, customerID, s.now())
	if result == nil {
		return nil, nil
	}
	for i := range candidates {
		if candidates[i].ID == result.DiscountID {
			return &candidates[i], nil
		}
	}
	return nil, nil
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func storeIDs(items []cart.Item) []string {
	seen := make(map[string]bool, len(items))
	ids := make([]string, 0, len(items))
	for _, it := range items {
		if !seen[it.StoreID] {
			seen[it.StoreID] = true
			ids = append(ids, it.StoreID)
		}
	}
	return ids
}

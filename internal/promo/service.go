package promo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/noah-isme/backend-pasar/internal/cart"
)

var (
	// ErrNoDiscount is returned by Preview when nothing yields a saving.
	ErrNoDiscount = errors.New("promo: no applicable discount")
	// ErrCodeTaken indicates a discount code collides with an existing one.
	ErrCodeTaken = errors.New("promo: discount code already exists")
)

// Querier captures the persistence reads the promo service requires.
type Querier interface {
	ListCartItems(ctx context.Context, cartID string) ([]cart.Item, error)
	ListCandidateDiscounts(ctx context.Context, storeIDs []string) ([]Discount, error)
	GetDiscountByCode(ctx context.Context, code string) (Discount, error)
}

// Service evaluates discounts against stored carts without mutating state.
type Service struct {
	Q   Querier
	Now func() time.Time
}

// PreviewInput selects a cart and optionally restricts the evaluation to one
// explicit discount code.
type PreviewInput struct {
	CartID     string
	Code       *string
	CustomerID *string
}

// Preview runs the best-discount-per-item selection for the cart and
// returns the would-be result. Nothing is persisted and no usage is
// consumed.
func (s *Service) Preview(ctx context.Context, in PreviewInput) (*Result, error) {
	if s == nil || s.Q == nil {
		return nil, errors.New("promo service not configured")
	}
	if strings.TrimSpace(in.CartID) == "" {
		return nil, errors.New("cartId is required")
	}
	items, err := s.Q.ListCartItems(ctx, in.CartID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNoDiscount
	}

	var candidates []Discount
	if in.Code != nil && strings.TrimSpace(*in.Code) != "" {
		d, err := s.Q.GetDiscountByCode(ctx, strings.TrimSpace(*in.Code))
		if err != nil {
			return nil, err
		}
		candidates = []Discount{d}
	} else {
		stores := make([]string, 0, len(items))
		seen := make(map[string]bool, len(items))
		for _, it := range items {
			if !seen[it.StoreID] {
				seen[it.StoreID] = true
				stores = append(stores, it.StoreID)
			}
		}
		candidates, err = s.Q.ListCandidateDiscounts(ctx, stores)
		if err != nil {
			return nil, err
		}
	}

	result := EvaluateBestDiscountsPerItem(items, candidates, in.CustomerID, s.now())
	if result == nil {
		return nil, ErrNoDiscount
	}
	return result, nil
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

package promo

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/noah-isme/backend-pasar/internal/common"
	"github.com/noah-isme/backend-pasar/internal/events"
	"github.com/noah-isme/backend-pasar/internal/obs"
	"github.com/noah-isme/backend-pasar/internal/tenant"
)

// ManagementStore captures the persistence writes discount management needs.
type ManagementStore interface {
	CreateDiscount(ctx context.Context, d Discount) error
	UpdateDiscount(ctx context.Context, d Discount) error
	GetDiscountByID(ctx context.Context, id string) (Discount, error)
	ListDiscountsByOwner(ctx context.Context, storeID string) ([]Discount, error)
}

// Handler exposes discount management and preview endpoints. Admin routes
// create marketplace-wide discounts; seller routes are scoped by the
// storefront resolved into the request context.
type Handler struct {
	Store    ManagementStore
	Svc      *Service
	Validate *validator.Validate
	Events   *events.Bus
	NewID    func() string
}

type discountPayload struct {
	Code                string     `json:"code" validate:"required,min=3,max=64"`
	Active              *bool      `json:"active"`
	StartsAt            *time.Time `json:"startsAt"`
	EndsAt              *time.Time `json:"endsAt"`
	ValueType           string     `json:"valueType" validate:"required,oneof=percentage fixed"`
	Value               float64    `json:"value" validate:"gte=0"`
	MinPurchaseAmount   *float64   `json:"minPurchaseAmount" validate:"omitempty,gte=0"`
	MinPurchaseQuantity *int       `json:"minPurchaseQuantity" validate:"omitempty,gte=1"`
	Eligibility         string     `json:"eligibility" validate:"omitempty,oneof=all specific"`
	CustomerIDs         []string   `json:"customerIds"`
	AllProducts         *bool      `json:"allProducts"`
	ListingIDs          []string   `json:"listingIds"`
	UsageLimit          *int32     `json:"usageLimit" validate:"omitempty,gte=1"`
}

type previewPayload struct {
	CartID string  `json:"cartId" validate:"required"`
	Code   *string `json:"code"`
}

// AdminCreate inserts a marketplace-wide discount.
func (h *Handler) AdminCreate(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, OwnerAdmin, "")
}

// SellerCreate inserts a discount owned by the storefront in context.
func (h *Handler) SellerCreate(w http.ResponseWriter, r *http.Request) {
	storeID, ok := tenant.FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "storefront not resolved", nil)
		return
	}
	h.create(w, r, OwnerSeller, storeID)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request, owner OwnerType, storeID string) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "discount store not configured", nil)
		return
	}
	payload, ok := h.decodePayload(w, r)
	if !ok {
		return
	}
	d, err := h.buildDiscount(payload, owner, storeID)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	if err := h.Store.CreateDiscount(r.Context(), d); err != nil {
		if errors.Is(err, ErrCodeTaken) {
			common.JSONError(w, http.StatusConflict, "CONFLICT", "discount code already exists", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to create discount", nil)
		return
	}
	if h.Events != nil {
		_, _ = h.Events.Emit(r.Context(), events.TopicDiscountCreated, d.ID, map[string]any{"code": d.Code, "ownerType": string(owner)})
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": toView(d)})
}

// AdminUpdate rewrites any discount definition.
func (h *Handler) AdminUpdate(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, func(Discount) bool { return true })
}

// SellerUpdate rewrites a discount only when the storefront in context owns
// it.
func (h *Handler) SellerUpdate(w http.ResponseWriter, r *http.Request) {
	storeID, ok := tenant.FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "storefront not resolved", nil)
		return
	}
	h.update(w, r, func(existing Discount) bool {
		return existing.OwnerType == OwnerSeller && existing.OwnerStoreID == storeID
	})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request, allowed func(Discount) bool) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "discount store not configured", nil)
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "discountID"))
	if id == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "discount id is required", nil)
		return
	}
	existing, err := h.Store.GetDiscountByID(r.Context(), id)
	if err != nil {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "discount not found", nil)
		return
	}
	if !allowed(existing) {
		common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "discount belongs to another store", nil)
		return
	}
	payload, ok := h.decodePayload(w, r)
	if !ok {
		return
	}
	d, err := h.buildDiscount(payload, existing.OwnerType, existing.OwnerStoreID)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	d.ID = existing.ID
	d.Code = existing.Code
	if err := h.Store.UpdateDiscount(r.Context(), d); err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to update discount", nil)
		return
	}
	if h.Events != nil {
		_, _ = h.Events.Emit(r.Context(), events.TopicDiscountUpdated, d.ID, map[string]any{"code": d.Code})
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": toView(d)})
}

// SellerList returns the storefront's own discounts.
func (h *Handler) SellerList(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "discount store not configured", nil)
		return
	}
	storeID, ok := tenant.FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "storefront not resolved", nil)
		return
	}
	discounts, err := h.Store.ListDiscountsByOwner(r.Context(), storeID)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list discounts", nil)
		return
	}
	views := make([]discountView, 0, len(discounts))
	for _, d := range discounts {
		views = append(views, toView(d))
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": views})
}

// Preview evaluates the best discounts for a cart without consuming usage.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "promo service not configured", nil)
		return
	}
	var payload previewPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.validate(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	var customerID *string
	if id, ok := common.CustomerID(r.Context()); ok && id != "" {
		customerID = &id
	}
	result, err := h.Svc.Preview(r.Context(), PreviewInput{CartID: payload.CartID, Code: payload.Code, CustomerID: customerID})
	if err != nil {
		if errors.Is(err, ErrNoDiscount) {
			previewOutcome("none")
			common.JSON(w, http.StatusOK, map[string]any{"data": nil})
			return
		}
		previewOutcome("error")
		common.JSONError(w, http.StatusBadRequest, "NOT_ELIGIBLE", err.Error(), nil)
		return
	}
	previewOutcome("ok")
	common.JSON(w, http.StatusOK, map[string]any{"data": result})
}

func (h *Handler) decodePayload(w http.ResponseWriter, r *http.Request) (discountPayload, bool) {
	var payload discountPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return discountPayload{}, false
	}
	if err := h.validate(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return discountPayload{}, false
	}
	return payload, true
}

func (h *Handler) validate(payload any) error {
	if h.Validate == nil {
		return nil
	}
	return h.Validate.Struct(payload)
}

func (h *Handler) buildDiscount(payload discountPayload, owner OwnerType, storeID string) (Discount, error) {
	vt := ValueType(payload.ValueType)
	if vt == ValuePercentage && payload.Value > 100 {
		return Discount{}, errors.New("percentage value must be at most 100")
	}
	if payload.StartsAt != nil && payload.EndsAt != nil && payload.EndsAt.Before(*payload.StartsAt) {
		return Discount{}, errors.New("endsAt precedes startsAt")
	}
	eligibility := EligibilityAll
	if payload.Eligibility != "" {
		eligibility = EligibilityMode(payload.Eligibility)
	}
	if eligibility == EligibilitySpecific && len(payload.CustomerIDs) == 0 {
		return Discount{}, errors.New("specific eligibility requires customerIds")
	}
	allProducts := payload.AllProducts == nil || *payload.AllProducts
	if !allProducts && len(payload.ListingIDs) == 0 {
		return Discount{}, errors.New("targeted discounts require listingIds")
	}
	targets := []Target{{AllProducts: true}}
	if !allProducts {
		targets = []Target{{ListingIDs: payload.ListingIDs}}
	}
	active := payload.Active == nil || *payload.Active

	return Discount{
		ID:                  h.newID(),
		Code:                strings.ToUpper(strings.TrimSpace(payload.Code)),
		Active:              active,
		StartsAt:            payload.StartsAt,
		EndsAt:              payload.EndsAt,
		ValueType:           vt,
		Value:               payload.Value,
		OwnerType:           owner,
		OwnerStoreID:        storeID,
		MinPurchaseAmount:   payload.MinPurchaseAmount,
		MinPurchaseQuantity: payload.MinPurchaseQuantity,
		Eligibility:         eligibility,
		CustomerIDs:         payload.CustomerIDs,
		Targets:             targets,
		UsageLimit:          payload.UsageLimit,
	}, nil
}

func previewOutcome(result string) {
	if obs.DiscountPreviewTotal != nil {
		obs.DiscountPreviewTotal.WithLabelValues(result).Inc()
	}
}

func (h *Handler) newID() string {
	if h.NewID != nil {
		return h.NewID()
	}
	return uuid.NewString()
}

type discountView struct {
	ID                  string     `json:"id"`
	Code                string     `json:"code"`
	Active              bool       `json:"active"`
	StartsAt            *time.Time `json:"startsAt,omitempty"`
	EndsAt              *time.Time `json:"endsAt,omitempty"`
	ValueType           ValueType  `json:"valueType"`
	Value               float64    `json:"value"`
	OwnerType           OwnerType  `json:"ownerType"`
	OwnerStoreID        string     `json:"ownerStoreId,omitempty"`
	MinPurchaseAmount   *float64   `json:"minPurchaseAmount,omitempty"`
	MinPurchaseQuantity *int       `json:"minPurchaseQuantity,omitempty"`
	Eligibility         EligibilityMode `json:"eligibility"`
	AllProducts         bool       `json:"allProducts"`
	ListingIDs          []string   `json:"listingIds,omitempty"`
	UsageLimit          *int32     `json:"usageLimit,omitempty"`
	UsageCount          int32      `json:"usageCount"`
}

func toView(d Discount) discountView {
	view := discountView{
		ID:                  d.ID,
		Code:                d.Code,
		Active:              d.Active,
		StartsAt:            d.StartsAt,
		EndsAt:              d.EndsAt,
		ValueType:           d.ValueType,
		Value:               d.Value,
		OwnerType:           d.OwnerType,
		OwnerStoreID:        d.OwnerStoreID,
		MinPurchaseAmount:   d.MinPurchaseAmount,
		MinPurchaseQuantity: d.MinPurchaseQuantity,
		Eligibility:         d.Eligibility,
		UsageLimit:          d.UsageLimit,
		UsageCount:          d.UsageCount,
	}
	for _, t := range d.Targets {
		if t.AllProducts {
			view.AllProducts = true
		} else {
			view.ListingIDs = append(view.ListingIDs, t.ListingIDs...)
		}
	}
	return view
}

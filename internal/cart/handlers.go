package cart

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-pasar/internal/common"
)

// Handler exposes the cart HTTP endpoints. Guest carts have no owner and are
// open to any caller holding the cart id; owned carts are restricted to the
// customer asserted by the gateway.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

type createCartPayload struct {
	Currency string `json:"currency" validate:"omitempty,len=3"`
}

type addItemPayload struct {
	ListingID string  `json:"listingId" validate:"required"`
	VariantID *string `json:"variantId"`
	StoreID   string  `json:"storeId" validate:"required"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unitPrice" validate:"gte=0"`
	Quantity  int     `json:"quantity" validate:"required,gte=1"`
}

type updateItemPayload struct {
	Quantity int `json:"quantity" validate:"gte=0"`
}

// Create opens a cart. Authenticated callers own the cart; anonymous callers
// get a guest cart.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	var payload createCartPayload
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
			return
		}
	}
	if err := h.validate(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	var customerID *string
	if id, ok := common.CustomerID(r.Context()); ok && id != "" {
		customerID = &id
	}
	c, err := h.Svc.Create(r.Context(), customerID, payload.Currency)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to create cart", nil)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": toCartView(c, nil, 0)})
}

// Get returns the cart with its lines and subtotal.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	cartID, ok := h.authorize(w, r)
	if !ok {
		return
	}
	view, err := h.Svc.Get(r.Context(), cartID)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": toCartView(view.Cart, view.Items, view.Subtotal)})
}

// AddItem appends a line to the cart, merging into an existing line for the
// same listing and variant.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	cartID, ok := h.authorize(w, r)
	if !ok {
		return
	}
	var payload addItemPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.validate(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	err := h.Svc.AddItem(r.Context(), cartID, ItemInput{
		ListingID: payload.ListingID,
		VariantID: payload.VariantID,
		StoreID:   payload.StoreID,
		Name:      payload.Name,
		UnitPrice: payload.UnitPrice,
		Quantity:  payload.Quantity,
	})
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.Get(w, r)
}

// UpdateItem sets a line's quantity; zero removes the line.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	cartID, ok := h.authorize(w, r)
	if !ok {
		return
	}
	itemID := strings.TrimSpace(chi.URLParam(r, "itemID"))
	if itemID == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "item id is required", nil)
		return
	}
	var payload updateItemPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.validate(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	if err := h.Svc.UpdateItem(r.Context(), cartID, itemID, payload.Quantity); err != nil {
		h.writeErr(w, err)
		return
	}
	h.Get(w, r)
}

// RemoveItem drops a line from the cart.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	cartID, ok := h.authorize(w, r)
	if !ok {
		return
	}
	itemID := strings.TrimSpace(chi.URLParam(r, "itemID"))
	if itemID == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "item id is required", nil)
		return
	}
	if err := h.Svc.RemoveItem(r.Context(), cartID, itemID); err != nil {
		h.writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// authorize extracts the cart id and verifies the caller may touch the cart.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return "", false
	}
	cartID := strings.TrimSpace(chi.URLParam(r, "cartID"))
	if cartID == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "cart id is required", nil)
		return "", false
	}
	c, err := h.Svc.Q.GetCart(r.Context(), cartID)
	if err != nil {
		h.writeErr(w, err)
		return "", false
	}
	if c.CustomerID != nil {
		id, ok := common.CustomerID(r.Context())
		if !ok || id != *c.CustomerID {
			common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "cart belongs to another customer", nil)
			return "", false
		}
	}
	return cartID, true
}

func (h *Handler) writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, common.ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "cart or item not found", nil)
	case errors.Is(err, ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart operation failed", nil)
	}
}

func (h *Handler) validate(payload any) error {
	if h.Validate == nil {
		return nil
	}
	return h.Validate.Struct(payload)
}

type cartView struct {
	ID         string         `json:"id"`
	CustomerID *string        `json:"customerId,omitempty"`
	Currency   string         `json:"currency"`
	Items      []cartItemView `json:"items"`
	Subtotal   float64        `json:"subtotal"`
}

type cartItemView struct {
	ID        string  `json:"id"`
	ListingID string  `json:"listingId"`
	VariantID *string `json:"variantId,omitempty"`
	StoreID   string  `json:"storeId"`
	Name      string  `json:"name,omitempty"`
	UnitPrice float64 `json:"unitPrice"`
	Quantity  int     `json:"quantity"`
	Subtotal  float64 `json:"subtotal"`
}

func toCartView(c Cart, items []Item, subtotal float64) cartView {
	views := make([]cartItemView, 0, len(items))
	for _, it := range items {
		views = append(views, cartItemView{
			ID:        it.ID,
			ListingID: it.ListingID,
			VariantID: it.VariantID,
			StoreID:   it.StoreID,
			Name:      it.Name,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
			Subtotal:  it.Subtotal(),
		})
	}
	return cartView{ID: c.ID, CustomerID: c.CustomerID, Currency: c.Currency, Items: views, Subtotal: subtotal}
}

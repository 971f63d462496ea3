package order

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-pasar/internal/common"
)

// Reader captures the persistence reads the order endpoints need.
type Reader interface {
	GetOrder(ctx context.Context, orderID, customerID string) (Order, error)
	ListOrderItems(ctx context.Context, orderID string) ([]Item, error)
	GetOrderDiscount(ctx context.Context, orderID string) (*AppliedDiscount, error)
	ListOrdersByCustomer(ctx context.Context, customerID string, limit, offset int) ([]Order, error)
	CountOrdersByCustomer(ctx context.Context, customerID string) (int64, error)
	UpdateOrderStatus(ctx context.Context, orderID, from, to string) error
}

// Handler serves the customer-facing order endpoints.
type Handler struct {
	Repo Reader
}

// List returns a page of the caller's orders, newest first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Repo == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order repository not configured", nil)
		return
	}
	customerID, ok := common.CustomerID(r.Context())
	if !ok || customerID == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	page, perPage := common.ParsePagination(r, 20)
	if perPage > 100 {
		perPage = 100
	}
	offset := (page - 1) * perPage

	total, err := h.Repo.CountOrdersByCustomer(r.Context(), customerID)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to count orders", nil)
		return
	}
	orders, err := h.Repo.ListOrdersByCustomer(r.Context(), customerID, perPage, offset)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list orders", nil)
		return
	}
	views := make([]orderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, toOrderView(o))
	}
	w.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
	common.JSON(w, http.StatusOK, map[string]any{
		"data": views,
		"pagination": common.Pagination{
			Page:       page,
			PerPage:    perPage,
			TotalItems: int(total),
		},
	})
}

// Get returns one of the caller's orders with its lines and the discount
// snapshot recorded when it was placed.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Repo == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order repository not configured", nil)
		return
	}
	customerID, ok := common.CustomerID(r.Context())
	if !ok || customerID == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	orderID := chi.URLParam(r, "orderID")
	o, err := h.Repo.GetOrder(r.Context(), orderID, customerID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load order", nil)
		return
	}
	items, err := h.Repo.ListOrderItems(r.Context(), o.ID)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load order items", nil)
		return
	}
	applied, err := h.Repo.GetOrderDiscount(r.Context(), o.ID)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load order discount", nil)
		return
	}

	view := toOrderView(o)
	itemViews := make([]itemView, 0, len(items))
	for _, it := range items {
		itemViews = append(itemViews, itemView{
			ID:             it.ID,
			ListingID:      it.ListingID,
			VariantID:      it.VariantID,
			StoreID:        it.StoreID,
			Name:           it.Name,
			UnitPrice:      it.UnitPrice,
			Quantity:       it.Quantity,
			Subtotal:       it.Subtotal,
			DiscountAmount: it.DiscountAmount,
			LineTotal:      it.LineTotal,
		})
	}
	response := map[string]any{
		"id":            view.ID,
		"status":        view.Status,
		"currency":      view.Currency,
		"subtotal":      view.Subtotal,
		"discountTotal": view.DiscountTotal,
		"taxTotal":      view.TaxTotal,
		"total":         view.Total,
		"createdAt":     view.CreatedAt,
		"items":         itemViews,
	}
	if applied != nil {
		response["discount"] = map[string]any{
			"discountId":  applied.DiscountID,
			"code":        applied.Code,
			"valueType":   applied.ValueType,
			"value":       applied.Value,
			"totalAmount": applied.TotalAmount,
		}
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": response})
}

// Cancel moves a pending order to cancelled. Orders past payment cannot be
// cancelled here.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	if h.Repo == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order repository not configured", nil)
		return
	}
	customerID, ok := common.CustomerID(r.Context())
	if !ok || customerID == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	orderID := chi.URLParam(r, "orderID")
	o, err := h.Repo.GetOrder(r.Context(), orderID, customerID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order lookup failed", nil)
		return
	}
	if o.Status != StatusPending {
		common.JSONError(w, http.StatusBadRequest, "INVALID_STATE", "only pending orders can be cancelled", nil)
		return
	}
	if err := h.Repo.UpdateOrderStatus(r.Context(), o.ID, StatusPending, StatusCancelled); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			common.JSONError(w, http.StatusConflict, "INVALID_STATE", "order state changed", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to cancel order", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"status": StatusCancelled}})
}

type orderView struct {
	ID            string    `json:"id"`
	Status        string    `json:"status"`
	Currency      string    `json:"currency"`
	Subtotal      float64   `json:"subtotal"`
	DiscountTotal float64   `json:"discountTotal"`
	TaxTotal      float64   `json:"taxTotal"`
	Total         float64   `json:"total"`
	CreatedAt     time.Time `json:"createdAt"`
}

type itemView struct {
	ID             string  `json:"id"`
	ListingID      string  `json:"listingId"`
	VariantID      *string `json:"variantId,omitempty"`
	StoreID        string  `json:"storeId"`
	Name           string  `json:"name"`
	UnitPrice      float64 `json:"unitPrice"`
	Quantity       int     `json:"quantity"`
	Subtotal       float64 `json:"subtotal"`
	DiscountAmount float64 `json:"discountAmount"`
	LineTotal      float64 `json:"lineTotal"`
}

func toOrderView(o Order) orderView {
	return orderView{
		ID:            o.ID,
		Status:        o.Status,
		Currency:      o.Currency,
		Subtotal:      o.Subtotal,
		DiscountTotal: o.DiscountTotal,
		TaxTotal:      o.TaxTotal,
		Total:         o.Total,
		CreatedAt:     o.CreatedAt,
	}
}

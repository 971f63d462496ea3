package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/noah-isme/backend-pasar/internal/common"
)

// CartLocker serialises checkout attempts against the same cart.
type CartLocker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Handler exposes the checkout endpoint.
type Handler struct {
	Svc  *Service
	Lock CartLocker
}

// Checkout places an order from the customer's cart.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	// guests check out without a customer identity
	var customer *string
	if id, ok := common.CustomerID(r.Context()); ok && id != "" {
		customer = &id
	}
	var payload Input
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	var out Output
	run := func(ctx context.Context) error {
		var err error
		out, err = h.Svc.Create(ctx, customer, payload)
		return err
	}
	var err error
	if h.Lock != nil && payload.CartID != "" {
		err = h.Lock.WithLock(r.Context(), "checkout:cart:"+payload.CartID, 30*time.Second, run)
	} else {
		err = run(r.Context())
	}
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": out})
}

func writeError(w http.ResponseWriter, err error) {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusBadRequest
		}
		code := appErr.Code
		if code == "" {
			code = "BAD_REQUEST"
		}
		common.JSONError(w, status, code, appErr.Message, appErr.Details)
		return
	}
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to place order", nil)
}

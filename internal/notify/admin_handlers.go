package notify

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/backend-pasar/internal/common"
)

// AdminHandler manages webhook endpoints and delivery replays.
type AdminHandler struct {
	Store      Store
	Dispatcher *Dispatcher
	Validate   *validator.Validate
}

type endpointPayload struct {
	URL    string   `json:"url" validate:"required,url"`
	Secret string   `json:"secret" validate:"required,min=16"`
	Topics []string `json:"topics"`
	Active *bool    `json:"active"`
}

type endpointView struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Topics    []string  `json:"topics"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreateEndpoint registers a webhook endpoint.
func (h *AdminHandler) CreateEndpoint(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "webhook store not configured", nil)
		return
	}
	payload, ok := h.decode(w, r)
	if !ok {
		return
	}
	if err := validateURL(payload.URL); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	ep, err := h.Store.CreateEndpoint(r.Context(), Endpoint{
		URL:    payload.URL,
		Secret: payload.Secret,
		Topics: normalizeTopics(payload.Topics),
		Active: payload.Active == nil || *payload.Active,
	})
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to create endpoint", nil)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": toEndpointView(ep)})
}

// UpdateEndpoint rewrites a webhook endpoint definition.
func (h *AdminHandler) UpdateEndpoint(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "webhook store not configured", nil)
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "endpointID"))
	if id == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "endpoint id is required", nil)
		return
	}
	payload, ok := h.decode(w, r)
	if !ok {
		return
	}
	if err := validateURL(payload.URL); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	ep, err := h.Store.UpdateEndpoint(r.Context(), Endpoint{
		ID:     id,
		URL:    payload.URL,
		Secret: payload.Secret,
		Topics: normalizeTopics(payload.Topics),
		Active: payload.Active == nil || *payload.Active,
	})
	if err != nil {
		if err == pgx.ErrNoRows {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "endpoint not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to update endpoint", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": toEndpointView(ep)})
}

// ListEndpoints returns registered endpoints.
func (h *AdminHandler) ListEndpoints(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "webhook store not configured", nil)
		return
	}
	page, perPage := common.ParsePagination(r, 50)
	endpoints, err := h.Store.ListEndpoints(r.Context(), perPage, (page-1)*perPage)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list endpoints", nil)
		return
	}
	views := make([]endpointView, 0, len(endpoints))
	for _, ep := range endpoints {
		views = append(views, toEndpointView(ep))
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": views})
}

// DeleteEndpoint removes an endpoint and its pending deliveries.
func (h *AdminHandler) DeleteEndpoint(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "webhook store not configured", nil)
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "endpointID"))
	if id == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "endpoint id is required", nil)
		return
	}
	if err := h.Store.DeleteEndpoint(r.Context(), id); err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to delete endpoint", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListDeliveries returns recent deliveries, optionally for one endpoint.
func (h *AdminHandler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "webhook store not configured", nil)
		return
	}
	page, perPage := common.ParsePagination(r, 50)
	endpointID := strings.TrimSpace(r.URL.Query().Get("endpointId"))
	deliveries, err := h.Store.ListDeliveries(r.Context(), endpointID, perPage, (page-1)*perPage)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list deliveries", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": deliveries})
}

// ReplayDelivery resets a delivery and queues it for another attempt series.
func (h *AdminHandler) ReplayDelivery(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil || h.Dispatcher == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "webhook dependencies unavailable", nil)
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "deliveryID"))
	if id == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "delivery id is required", nil)
		return
	}
	del, err := h.Store.ResetDeliveryForReplay(r.Context(), id)
	if err != nil {
		if err == pgx.ErrNoRows {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "delivery not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to reset delivery", nil)
		return
	}
	if err := h.Dispatcher.EnqueueDelivery(r.Context(), del.ID, 0, int(del.MaxAttempt)); err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to queue replay", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": del})
}

func (h *AdminHandler) decode(w http.ResponseWriter, r *http.Request) (endpointPayload, bool) {
	var payload endpointPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return endpointPayload{}, false
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(payload); err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
			return endpointPayload{}, false
		}
	}
	return payload, true
}

func normalizeTopics(topics []string) []string {
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		t = strings.TrimSpace(t)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func toEndpointView(ep Endpoint) endpointView {
	return endpointView{
		ID:        ep.ID,
		URL:       ep.URL,
		Topics:    ep.Topics,
		Active:    ep.Active,
		CreatedAt: ep.CreatedAt,
	}
}

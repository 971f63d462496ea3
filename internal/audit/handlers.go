package audit

import (
	"net/http"

	"github.com/noah-isme/backend-pasar/internal/common"
)

// Handler exposes audit log queries to administrators.
type Handler struct {
	Store Store
}

// List returns a paginated list of audit entries, optionally filtered by entity.
func (h Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "AUDIT_NOT_CONFIGURED", "audit store not configured", nil)
		return
	}
	page, perPage := common.ParsePagination(r, 50)
	entries, err := h.Store.ListAuditLogs(r.Context(), r.URL.Query().Get("entity"), perPage, (page-1)*perPage)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "AUDIT_QUERY_FAILED", "unable to fetch audit logs", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": entries, "page": page, "perPage": perPage})
}

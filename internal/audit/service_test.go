package audit_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pasar/internal/audit"
	"github.com/noah-isme/backend-pasar/internal/common"
)

type fakeStore struct {
	entries []audit.Entry
}

func (f *fakeStore) InsertAuditLog(_ context.Context, entry audit.Entry) (int64, error) {
	f.entries = append(f.entries, entry)
	return int64(len(f.entries)), nil
}

func (f *fakeStore) ListAuditLogs(_ context.Context, entity string, _, _ int) ([]audit.Entry, error) {
	if entity == "" {
		return f.entries, nil
	}
	var out []audit.Entry
	for _, e := range f.entries {
		if e.Entity == entity {
			out = append(out, e)
		}
	}
	return out, nil
}

func TestRecordDisabledIsNoop(t *testing.T) {
	store := &fakeStore{}
	svc := audit.Service{Store: store, Enabled: false}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/discounts", nil)
	require.NoError(t, svc.Record(context.Background(), audit.Actor{ID: "admin-1"}, "", "", "", req, http.StatusCreated))
	require.Empty(t, store.entries)
}

func TestRecordDerivesActionAndEntity(t *testing.T) {
	store := &fakeStore{}
	svc := audit.Service{Store: store, Enabled: true}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/discounts", nil)
	req.Header.Set("X-Request-ID", "req-9")

	require.NoError(t, svc.Record(context.Background(), audit.Actor{ID: "admin-1", Roles: []string{"admin"}}, "", "", "d-1", req, http.StatusCreated))
	require.Len(t, store.entries, 1)
	entry := store.entries[0]
	require.Equal(t, "POST /api/v1/admin/discounts", entry.Action)
	require.Equal(t, "admin.discounts", entry.Entity)
	require.Equal(t, "d-1", entry.EntityID)
	require.Equal(t, "admin-1", entry.ActorID)
	require.Equal(t, "admin", entry.ActorRoles)
	require.Equal(t, int32(http.StatusCreated), entry.StatusCode)
	require.Equal(t, "req-9", entry.RequestID)
}

func TestMiddlewareSkipsReads(t *testing.T) {
	store := &fakeStore{}
	svc := &audit.Service{Store: store, Enabled: true}
	recorder := audit.HTTPRecorder{Service: svc}

	handler := recorder.Middleware(audit.RouteConfig{Entity: "admin.discounts"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/discounts", nil))
	require.Empty(t, store.entries)
}

func TestMiddlewareRecordsMutation(t *testing.T) {
	store := &fakeStore{}
	svc := &audit.Service{Store: store, Enabled: true}
	recorder := audit.HTTPRecorder{Service: svc}

	handler := recorder.Middleware(audit.RouteConfig{Action: "discount.create", Entity: "admin.discounts"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/discounts", nil)
	req = req.WithContext(common.WithCustomerID(req.Context(), "admin-7"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Len(t, store.entries, 1)
	require.Equal(t, "discount.create", store.entries[0].Action)
	require.Equal(t, "admin-7", store.entries[0].ActorID)
	require.Equal(t, int32(http.StatusCreated), store.entries[0].StatusCode)
}

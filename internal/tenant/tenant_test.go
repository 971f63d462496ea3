package tenant

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticFinder map[string]string

func (f staticFinder) ResolveStorefront(_ context.Context, idOrSlug string) (string, error) {
	if id, ok := f[idOrSlug]; ok {
		return id, nil
	}
	return "", context.Canceled
}

func TestResolveHeaderWins(t *testing.T) {
	r := NewResolver("", "pasar.test", "")
	req := httptest.NewRequest(http.MethodGet, "http://acme.pasar.test/checkout", nil)
	req.Header.Set("X-Store-ID", "store-1")
	assert.Equal(t, "store-1", r.Resolve(req))
}

func TestResolveSubdomain(t *testing.T) {
	r := NewResolver("", "pasar.test", "")
	req := httptest.NewRequest(http.MethodGet, "http://acme.pasar.test:8080/", nil)
	assert.Equal(t, "acme", r.Resolve(req))
}

func TestResolveRootDomainYieldsNothing(t *testing.T) {
	r := NewResolver("", "pasar.test", "")
	req := httptest.NewRequest(http.MethodGet, "http://pasar.test/", nil)
	assert.Equal(t, "", r.Resolve(req))

	req = httptest.NewRequest(http.MethodGet, "http://other.example/", nil)
	assert.Equal(t, "", r.Resolve(req))
}

func TestMiddlewareCanonicalizesThroughFinder(t *testing.T) {
	r := NewResolver("", "pasar.test", "")
	r.Finder = staticFinder{"acme": "store-1"}

	var got string
	next := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		got, _ = FromContext(req.Context())
	})
	req := httptest.NewRequest(http.MethodGet, "http://acme.pasar.test/", nil)
	r.Middleware(next).ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "store-1", got)
}

func TestMiddlewareUnknownStorefrontPassesNothing(t *testing.T) {
	r := NewResolver("", "pasar.test", "")
	r.Finder = staticFinder{}

	var ok bool
	next := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_, ok = FromContext(req.Context())
	})
	req := httptest.NewRequest(http.MethodGet, "http://ghost.pasar.test/", nil)
	r.Middleware(next).ServeHTTP(httptest.NewRecorder(), req)
	assert.False(t, ok)
}

func TestRequireRejectsUnresolved(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	Require(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithStore(req.Context(), "store-1"))
	Require(next).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestFromContextTrimsAndRejectsEmpty(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	id, ok := FromContext(WithStore(context.Background(), "  store-9  "))
	require.True(t, ok)
	assert.Equal(t, "store-9", id)
}

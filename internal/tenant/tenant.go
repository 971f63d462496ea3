package tenant

import (
	"context"
	"net"
	"net/http"
	"strings"
)

type contextKey string

const storeContextKey contextKey = "tenant.store"

// Finder maps a storefront id or slug to its canonical id. A nil Finder in
// the resolver skips the lookup and trusts the raw value.
type Finder interface {
	ResolveStorefront(ctx context.Context, idOrSlug string) (string, error)
}

// Resolver picks the storefront for a request from the X-Store-ID header or
// the request subdomain.
type Resolver struct {
	HeaderName   string
	RootDomain   string
	DefaultStore string
	Finder       Finder
}

// NewResolver returns a resolver; an empty headerName defaults to
// "X-Store-ID".
func NewResolver(headerName, rootDomain, defaultStore string) *Resolver {
	if headerName == "" {
		headerName = "X-Store-ID"
	}
	return &Resolver{
		HeaderName:   headerName,
		RootDomain:   strings.ToLower(strings.TrimSpace(rootDomain)),
		DefaultStore: strings.TrimSpace(defaultStore),
	}
}

// Middleware resolves the storefront and injects its id into the request
// context. Requests that resolve nothing pass through without a storefront.
func (r *Resolver) Middleware(next http.Handler) http.Handler {
	if r == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		storeID := r.Resolve(req)
		if storeID == "" {
			storeID = r.DefaultStore
		}
		if storeID != "" && r.Finder != nil {
			resolved, err := r.Finder.ResolveStorefront(req.Context(), storeID)
			if err != nil {
				storeID = ""
			} else {
				storeID = resolved
			}
		}
		if storeID != "" {
			req = req.WithContext(WithStore(req.Context(), storeID))
		}
		next.ServeHTTP(w, req)
	})
}

// Require rejects requests that did not resolve a storefront.
func Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if _, ok := FromContext(req.Context()); !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST","message":"storefront not resolved"}}`))
			return
		}
		next.ServeHTTP(w, req)
	})
}

// Resolve returns the raw storefront identifier from the header or the
// subdomain, without consulting the Finder.
func (r *Resolver) Resolve(req *http.Request) string {
	if r == nil || req == nil {
		return ""
	}
	if storeID := strings.TrimSpace(req.Header.Get(r.HeaderName)); storeID != "" {
		return storeID
	}
	host := hostWithoutPort(req.Host)
	if host == "" {
		return ""
	}
	return strings.TrimSpace(r.subdomainFromHost(host))
}

func (r *Resolver) subdomainFromHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return ""
	}
	if r.RootDomain != "" {
		if host == r.RootDomain {
			return ""
		}
		suffix := "." + r.RootDomain
		if !strings.HasSuffix(host, suffix) {
			return ""
		}
		host = strings.TrimSuffix(host, suffix)
	}
	parts := strings.Split(host, ".")
	if len(parts) == 0 {
		return ""
	}
	return parts[0]
}

func hostWithoutPort(hostport string) string {
	hostport = strings.TrimSpace(hostport)
	if hostport == "" {
		return ""
	}
	if strings.HasPrefix(hostport, "[") {
		if idx := strings.Index(hostport, "]"); idx != -1 {
			if host := hostport[1:idx]; host != "" {
				return host
			}
		}
	}
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		return h
	}
	if idx := strings.Index(hostport, ":"); idx != -1 && strings.Count(hostport, ":") == 1 {
		return hostport[:idx]
	}
	return hostport
}

// WithStore stores the storefront id inside the context.
func WithStore(ctx context.Context, storeID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, storeContextKey, storeID)
}

// FromContext extracts the storefront id from the context if available.
func FromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	storeID, ok := ctx.Value(storeContextKey).(string)
	if !ok {
		return "", false
	}
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return "", false
	}
	return storeID, true
}

package common

import (
	"context"
	"net/http"
	"strings"
)

type ctxKey string

const (
	customerIDKey ctxKey = "auth/customer-id"
	rolesKey      ctxKey = "auth/roles"
)

// WithCustomerID stores the authenticated customer identifier on the context.
func WithCustomerID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, customerIDKey, id)
}

// CustomerID extracts the authenticated customer identifier if present.
// Absence means a guest request.
func CustomerID(ctx context.Context) (string, bool) {
	v := ctx.Value(customerIDKey)
	if v == nil {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}

// CustomerFromGateway lifts the customer id asserted by the upstream auth
// gateway into the request context. Authentication itself happens outside
// this service; the header is trusted because only the gateway can reach us.
func CustomerFromGateway(headerName string) func(http.Handler) http.Handler {
	if headerName == "" {
		headerName = "X-Customer-ID"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id := strings.TrimSpace(r.Header.Get(headerName)); id != "" {
				r = r.WithContext(WithCustomerID(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithRoles stores the gateway-asserted roles on the context.
func WithRoles(ctx context.Context, roles []string) context.Context {
	return context.WithValue(ctx, rolesKey, roles)
}

// Roles extracts the gateway-asserted roles, or nil for guests.
func Roles(ctx context.Context) []string {
	if v, ok := ctx.Value(rolesKey).([]string); ok {
		return v
	}
	return nil
}

// RolesFromGateway lifts the comma-separated role list the gateway sets into
// the request context.
func RolesFromGateway(headerName string) func(http.Handler) http.Handler {
	if headerName == "" {
		headerName = "X-Customer-Roles"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(headerName)
			if raw != "" {
				var roles []string
				for _, part := range strings.Split(raw, ",") {
					if role := strings.TrimSpace(part); role != "" {
						roles = append(roles, role)
					}
				}
				if len(roles) > 0 {
					r = r.WithContext(WithRoles(r.Context(), roles))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole rejects requests whose gateway-asserted roles do not include
// the given role.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, have := range Roles(r.Context()) {
				if have == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			JSONError(w, http.StatusForbidden, "FORBIDDEN", "insufficient permissions", nil)
		})
	}
}

// RequireCustomer rejects guests on endpoints that need an identified
// customer.
func RequireCustomer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := CustomerID(r.Context()); !ok || id == "" {
			JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

package controller

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/repository"
)

const TenantHeader = "X-Tenant-ID"

type tenantKey struct{}

// TenantMiddleware resolves the tenant named by the X-Tenant-ID header. Missing or unknown
// tenants get 401.
func TenantMiddleware(tenants repository.TenantRepositoryInterface, log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(TenantHeader))
			if id == "" {
				writeMessage(w, http.StatusUnauthorized, "missing "+TenantHeader+" header")
				return
			}
			tenant, err := tenants.GetByID(r.Context(), id)
			if err != nil {
				if appErrors.IsNotFound(err) {
					writeMessage(w, http.StatusUnauthorized, "unknown tenant")
					return
				}
				writeError(w, log, err)
				return
			}
			ctx := context.WithValue(r.Context(), tenantKey{}, tenant.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func tenantID(r *http.Request) string {
	id, _ := r.Context().Value(tenantKey{}).(string)
	return id
}

package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/backoffice-backend/api/responses"
	pkgerrors "github.com/angelmondragon/backoffice-backend/pkg/errors"
	"github.com/angelmondragon/backoffice-backend/pkg/logger"
)

const tenantHeader = "X-Tenant-ID"

// TenantContext scopes the request to the tenant named by X-Tenant-ID.
func TenantContext(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(tenantHeader))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "tenant context missing"))
				return
			}
			tenantID, err := uuid.Parse(raw)
			if err != nil || tenantID == uuid.Nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid tenant id").WithDetails(map[string]any{"header": tenantHeader}))
				return
			}

			ctx := WithTenantID(r.Context(), tenantID)
			if logg != nil {
				ctx = logg.WithTenantID(ctx, tenantID.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

package reconcile

import (
	"net/http"

	"github.com/angelmondragon/backoffice-backend/api/responses"
	"github.com/angelmondragon/backoffice-backend/api/validators"
	internalreconcile "github.com/angelmondragon/backoffice-backend/internal/reconcile"
	pkgerrors "github.com/angelmondragon/backoffice-backend/pkg/errors"
	"github.com/angelmondragon/backoffice-backend/pkg/logger"
)

const maxQueryLen = 256

// SearchCatalog returns scored candidates for free text, exact sku hits first.
func SearchCatalog(svc internalreconcile.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconcile service unavailable"))
			return
		}
		tenantID, err := tenantFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		query, err := validators.RequireQueryString(r, "q", maxQueryLen)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 10, 1, 20)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		matches, err := svc.SearchCatalog(r.Context(), tenantID, query, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"query": query, "matches": matches})
	}
}

// SuggestGLAccount returns the cost account an item should post to, or a null
// account when the tenant's chart has no match.
func SuggestGLAccount(svc internalreconcile.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconcile service unavailable"))
			return
		}
		tenantID, err := tenantFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := validators.ParseURLUUID(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		account, err := svc.SuggestGLAccount(r.Context(), tenantID, itemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"item_id": itemID, "account": accountView(account)})
	}
}

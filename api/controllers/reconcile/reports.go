package reconcile

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/backoffice-backend/api/responses"
	"github.com/angelmondragon/backoffice-backend/api/validators"
	"github.com/angelmondragon/backoffice-backend/internal/glaccounts"
	"github.com/angelmondragon/backoffice-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/backoffice-backend/pkg/errors"
	"github.com/angelmondragon/backoffice-backend/pkg/logger"
)

type ComplianceReporter interface {
	ComplianceReport(ctx context.Context, tenantID uuid.UUID) ([]glaccounts.ComplianceGap, error)
}

type ConflictLister interface {
	ListConflicts(ctx context.Context, tenantID uuid.UUID, limit int) ([]models.AliasConflict, error)
}

// GLCompliance lists active items that carry no cost account.
func GLCompliance(svc ComplianceReporter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "gl service unavailable"))
			return
		}
		tenantID, err := tenantFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		gaps, err := svc.ComplianceReport(r.Context(), tenantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "gl compliance report"))
			return
		}
		resolvable := 0
		for _, g := range gaps {
			if g.Resolvable {
				resolvable++
			}
		}
		responses.WriteSuccess(w, map[string]any{
			"unassigned": len(gaps),
			"resolvable": resolvable,
			"items":      gaps,
		})
	}
}

// AliasConflicts lists rejected alias writes, newest first.
func AliasConflicts(store ConflictLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "alias store unavailable"))
			return
		}
		tenantID, err := tenantFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := store.ListConflicts(r.Context(), tenantID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list alias conflicts"))
			return
		}
		responses.WriteSuccess(w, conflictViews(rows))
	}
}

package reconcile

import (
	"net/http"

	"github.com/angelmondragon/backoffice-backend/api/responses"
	"github.com/angelmondragon/backoffice-backend/api/validators"
	internalreconcile "github.com/angelmondragon/backoffice-backend/internal/reconcile"
	pkgerrors "github.com/angelmondragon/backoffice-backend/pkg/errors"
	"github.com/angelmondragon/backoffice-backend/pkg/logger"
)

const defaultBulkLimit = 500

// BulkResolveRequest is optional. Without lines the vendor's stored unmapped
// lines are swept, up to limit.
type BulkResolveRequest struct {
	Lines         []ResolveLineRequest `json:"lines" validate:"max=1000,dive"`
	Limit         int                  `json:"limit" validate:"omitempty,min=1,max=5000"`
	CreateMissing *bool                `json:"create_missing"`
}

// BulkResolve reconciles a vendor's lines in batches and returns the summary.
func BulkResolve(svc internalreconcile.Service, logg *logger.Logger) http.HandlerFunc {
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
		vendorID, err := validators.ParseURLUUID(r, "vendorId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body BulkResolveRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &body); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		opts := internalreconcile.BulkOptions{CreateMissing: body.CreateMissing}

		var summary *internalreconcile.Summary
		if len(body.Lines) > 0 {
			inputs := make([]internalreconcile.LineInput, 0, len(body.Lines))
			for _, l := range body.Lines {
				in := l.input()
				in.VendorID = vendorID
				inputs = append(inputs, in)
			}
			summary, err = svc.BulkResolve(r.Context(), tenantID, inputs, opts)
		} else {
			limit := body.Limit
			if limit == 0 {
				limit = defaultBulkLimit
			}
			summary, err = svc.BulkResolveVendor(r.Context(), tenantID, vendorID, limit, opts)
		}
		if err != nil && summary == nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err != nil {
			// some batches landed; report them with the failures
			if logg != nil {
				logCtx := logg.WithFields(r.Context(), map[string]any{
					"tenant_id":      tenantID.String(),
					"vendor_id":      vendorID.String(),
					"failed_batches": summary.FailedBatches,
				})
				logg.Error(logCtx, "bulk resolve partially failed", err)
			}
			responses.WriteSuccessStatus(w, http.StatusMultiStatus, bulkResolveView(summary, err))
			return
		}
		responses.WriteSuccess(w, bulkResolveView(summary, nil))
	}
}

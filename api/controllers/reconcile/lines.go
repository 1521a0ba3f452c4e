// Package reconcile exposes invoice line resolution, catalog search and the
// bookkeeping sheets over HTTP.
package reconcile

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/backoffice-backend/api/middleware"
	"github.com/angelmondragon/backoffice-backend/api/responses"
	"github.com/angelmondragon/backoffice-backend/api/validators"
	internalreconcile "github.com/angelmondragon/backoffice-backend/internal/reconcile"
	pkgerrors "github.com/angelmondragon/backoffice-backend/pkg/errors"
	"github.com/angelmondragon/backoffice-backend/pkg/logger"
)

// ResolveLineRequest is an OCR-extracted line. LineID resolves a stored line instead.
type ResolveLineRequest struct {
	LineID         string          `json:"line_id" validate:"omitempty,uuid"`
	VendorID       string          `json:"vendor_id" validate:"omitempty,uuid"`
	Description    string          `json:"description" validate:"max=512"`
	VendorItemCode string          `json:"vendor_item_code" validate:"max=64"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitCost       decimal.Decimal `json:"unit_cost" validate:"gte=0"`
	LineTotal      decimal.Decimal `json:"line_total"`
}

func (r ResolveLineRequest) input() internalreconcile.LineInput {
	in := internalreconcile.LineInput{
		Description:    r.Description,
		VendorItemCode: r.VendorItemCode,
		Quantity:       r.Quantity,
		UnitCost:       r.UnitCost,
		LineTotal:      r.LineTotal,
	}
	if id, err := uuid.Parse(r.VendorID); err == nil {
		in.VendorID = id
	}
	if id, err := uuid.Parse(r.LineID); err == nil {
		in.LineID = &id
	}
	return in
}

// ConfirmRequest names the catalog item a line should map to.
type ConfirmRequest struct {
	ItemID string `json:"item_id" validate:"required,uuid"`
}

// ResolveLine resolves a single line payload without persisting it, unless
// line_id points at a stored line.
func ResolveLine(svc internalreconcile.Service, logg *logger.Logger) http.HandlerFunc {
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

		var body ResolveLineRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		res, err := svc.ResolveLine(r.Context(), tenantID, body.input())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, res)
	}
}

// ResolveStoredLine resolves a persisted line and stores the outcome.
func ResolveStoredLine(svc internalreconcile.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconcile service unavailable"))
			return
		}
		tenantID, lineID, err := tenantAndLine(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		res, err := svc.ResolveStoredLine(r.Context(), tenantID, lineID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, res)
	}
}

// ConfirmMapping maps a line to the chosen item and learns from the decision.
func ConfirmMapping(svc internalreconcile.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconcile service unavailable"))
			return
		}
		tenantID, lineID, err := tenantAndLine(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body ConfirmRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := uuid.Parse(body.ItemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid item id"))
			return
		}

		res, err := svc.ConfirmMapping(r.Context(), tenantID, lineID, itemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, confirmView(res))
	}
}

// UnmapLine returns a mapped line to unmapped. Learned aliases are kept.
func UnmapLine(svc internalreconcile.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconcile service unavailable"))
			return
		}
		tenantID, lineID, err := tenantAndLine(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		line, err := svc.UnmapLine(r.Context(), tenantID, lineID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, lineView(line))
	}
}

func tenantFrom(r *http.Request) (uuid.UUID, error) {
	tenantID, ok := middleware.TenantIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "tenant context missing")
	}
	return tenantID, nil
}

func tenantAndLine(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	tenantID, err := tenantFrom(r)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	lineID, err := validators.ParseURLUUID(r, "lineId")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return tenantID, lineID, nil
}

package reconcile

import (
	"errors"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/backoffice-backend/api/responses"
	"github.com/angelmondragon/backoffice-backend/api/validators"
	"github.com/angelmondragon/backoffice-backend/internal/packs"
	"github.com/angelmondragon/backoffice-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/backoffice-backend/pkg/errors"
	"github.com/angelmondragon/backoffice-backend/pkg/logger"
)

type ParsePackRequest struct {
	Text    string `json:"text" validate:"required,max=256"`
	BaseUOM string `json:"base_uom" validate:"max=16"`
}

type ParsePackResponse struct {
	PackType         enums.PackType   `json:"pack_type"`
	UnitsPerPack     decimal.Decimal  `json:"units_per_pack"`
	UnitSize         decimal.Decimal  `json:"unit_size"`
	UOM              enums.UOM        `json:"uom"`
	ConversionFactor decimal.Decimal  `json:"conversion_factor"`
	Source           string           `json:"source"`
	BaseUOM          enums.UOM        `json:"base_uom,omitempty"`
	BaseFactor       *decimal.Decimal `json:"base_factor,omitempty"`
	Valid            bool             `json:"valid"`
	InvalidReason    string           `json:"invalid_reason,omitempty"`
}

// ParsePack previews how a pack description converts, optionally against a
// base unit.
func ParsePack(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body ParsePackRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		parsed, err := packs.ParsePack(body.Text)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unrecognized pack description").
				WithDetails(map[string]any{"text": body.Text}))
			return
		}
		out := ParsePackResponse{
			PackType:         parsed.PackType,
			UnitsPerPack:     parsed.UnitsPerPack,
			UnitSize:         parsed.UnitSize,
			UOM:              parsed.UOM,
			ConversionFactor: parsed.ConversionFactor,
			Source:           parsed.Source,
			Valid:            true,
		}

		if body.BaseUOM != "" {
			base, err := enums.ParseUOM(strings.ToLower(strings.TrimSpace(body.BaseUOM)))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid base_uom"))
				return
			}
			res, err := packs.Resolve(parsed, base)
			if err != nil && !errors.Is(err, packs.ErrCrossFamily) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "resolve pack"))
				return
			}
			out.BaseUOM = res.BaseUOM
			out.Valid = res.Valid
			out.InvalidReason = res.InvalidReason
			if res.Valid {
				factor := res.BaseFactor
				out.BaseFactor = &factor
			}
		}
		responses.WriteSuccess(w, out)
	}
}

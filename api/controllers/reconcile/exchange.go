package reconcile

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/backoffice-backend/api/responses"
	"github.com/angelmondragon/backoffice-backend/internal/exchange"
	pkgerrors "github.com/angelmondragon/backoffice-backend/pkg/errors"
	"github.com/angelmondragon/backoffice-backend/pkg/logger"
)

// maxImportBytes caps catalog sheet uploads.
const maxImportBytes = 10 << 20

// ExchangeService builds and loads item sheets.
type ExchangeService interface {
	UnmappedRows(ctx context.Context, tenantID uuid.UUID) ([]exchange.Row, error)
	ImportCatalog(ctx context.Context, tenantID uuid.UUID, rows []exchange.Row) (*exchange.ImportResult, error)
}

// ExportUnmappedItems downloads the tenant's unresolved lines as an item sheet.
func ExportUnmappedItems(svc ExchangeService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "exchange service unavailable"))
			return
		}
		tenantID, err := tenantFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		format, err := exchange.ParseFormat(r.URL.Query().Get("format"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnsupported, err, "format must be csv, tsv or xlsx"))
			return
		}

		rows, err := svc.UnmappedRows(r.Context(), tenantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list unmapped items"))
			return
		}
		var buf bytes.Buffer
		if err := exchange.Write(&buf, format, rows); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode unmapped items"))
			return
		}

		name := fmt.Sprintf("unmapped-items-%s.%s", time.Now().UTC().Format("20060102"), format.Extension())
		responses.WriteFile(w, format.ContentType(), name, buf.Bytes())
	}
}

// ImportCatalog loads an item sheet from the raw request body. Malformed rows
// are reported with their sheet line and skipped.
func ImportCatalog(svc ExchangeService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "exchange service unavailable"))
			return
		}
		tenantID, err := tenantFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		format, err := exchange.ParseFormat(r.URL.Query().Get("format"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnsupported, err, "format must be csv, tsv or xlsx"))
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBytes))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read upload"))
			return
		}
		rows, rowErrs, err := exchange.Read(bytes.NewReader(body), format)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid item sheet"))
			return
		}

		res, err := svc.ImportCatalog(r.Context(), tenantID, rows)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "import catalog"))
			return
		}
		res.Errors = append(rowErrs, res.Errors...)
		sort.SliceStable(res.Errors, func(i, j int) bool { return res.Errors[i].Line < res.Errors[j].Line })
		responses.WriteSuccess(w, res)
	}
}

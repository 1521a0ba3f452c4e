package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	internalreconcile "github.com/angelmondragon/backoffice-backend/internal/reconcile"
	"github.com/angelmondragon/backoffice-backend/pkg/db/models"
	"github.com/angelmondragon/backoffice-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/backoffice-backend/pkg/errors"
)

// LineView is the API shape of a persisted invoice line.
type LineView struct {
	ID                    uuid.UUID         `json:"id"`
	VendorID              uuid.UUID         `json:"vendor_id"`
	InvoiceID             *uuid.UUID        `json:"invoice_id,omitempty"`
	Description           string            `json:"description"`
	VendorItemCode        *string           `json:"vendor_item_code,omitempty"`
	NormalizedDescription string            `json:"normalized_description"`
	Quantity              decimal.Decimal   `json:"quantity"`
	UnitCost              decimal.Decimal   `json:"unit_cost"`
	LineTotal             decimal.Decimal   `json:"line_total"`
	ItemID                *uuid.UUID        `json:"item_id,omitempty"`
	Status                enums.LineStatus  `json:"status"`
	MatchConfidence       *float64          `json:"match_confidence,omitempty"`
	Provenance            *enums.Provenance `json:"provenance,omitempty"`
	LowQuality            bool              `json:"low_quality"`
	NeedsReview           bool              `json:"needs_review"`
	ReviewReason          *string           `json:"review_reason,omitempty"`
	LastResolvedAt        *time.Time        `json:"last_resolved_at,omitempty"`
}

func lineView(l *models.InvoiceLine) *LineView {
	if l == nil {
		return nil
	}
	return &LineView{
		ID:                    l.ID,
		VendorID:              l.VendorID,
		InvoiceID:             l.InvoiceID,
		Description:           l.Description,
		VendorItemCode:        l.VendorItemCode,
		NormalizedDescription: l.NormalizedDescription,
		Quantity:              l.Quantity,
		UnitCost:              l.UnitCost,
		LineTotal:             l.LineTotal,
		ItemID:                l.ItemID,
		Status:                l.Status,
		MatchConfidence:       l.MatchConfidence,
		Provenance:            l.Provenance,
		LowQuality:            l.LowQuality,
		NeedsReview:           l.NeedsReview,
		ReviewReason:          l.ReviewReason,
		LastResolvedAt:        l.LastResolvedAt,
	}
}

type AliasView struct {
	ID                    uuid.UUID        `json:"id"`
	VendorID              uuid.UUID        `json:"vendor_id"`
	AliasKey              string           `json:"alias_key"`
	VendorItemCode        *string          `json:"vendor_item_code,omitempty"`
	NormalizedDescription string           `json:"normalized_description"`
	ItemID                uuid.UUID        `json:"item_id"`
	LastUnitCost          *decimal.Decimal `json:"last_unit_cost,omitempty"`
	Confirmed             bool             `json:"confirmed"`
	Provenance            enums.Provenance `json:"provenance"`
}

func aliasView(a *models.VendorAlias) *AliasView {
	if a == nil {
		return nil
	}
	return &AliasView{
		ID:                    a.ID,
		VendorID:              a.VendorID,
		AliasKey:              a.AliasKey,
		VendorItemCode:        a.VendorItemCode,
		NormalizedDescription: a.NormalizedDescription,
		ItemID:                a.ItemID,
		LastUnitCost:          a.LastUnitCost,
		Confirmed:             a.Confirmed,
		Provenance:            a.Provenance,
	}
}

type PackView struct {
	ID               uuid.UUID       `json:"id"`
	ItemID           uuid.UUID       `json:"item_id"`
	VendorID         *uuid.UUID      `json:"vendor_id,omitempty"`
	PackType         enums.PackType  `json:"pack_type"`
	UnitsPerPack     decimal.Decimal `json:"units_per_pack"`
	UnitSize         decimal.Decimal `json:"unit_size"`
	UnitSizeUOM      enums.UOM       `json:"unit_size_uom"`
	ConversionFactor decimal.Decimal `json:"conversion_factor"`
	IsValid          bool            `json:"is_valid"`
	InvalidReason    *string         `json:"invalid_reason,omitempty"`
	SourceText       string          `json:"source_text"`
}

func packView(p *models.PackConfiguration) *PackView {
	if p == nil {
		return nil
	}
	return &PackView{
		ID:               p.ID,
		ItemID:           p.ItemID,
		VendorID:         p.VendorID,
		PackType:         p.PackType,
		UnitsPerPack:     p.UnitsPerPack,
		UnitSize:         p.UnitSize,
		UnitSizeUOM:      p.UnitSizeUOM,
		ConversionFactor: p.ConversionFactor,
		IsValid:          p.IsValid,
		InvalidReason:    p.InvalidReason,
		SourceText:       p.SourceText,
	}
}

type AccountView struct {
	ID           uuid.UUID       `json:"id"`
	ExternalCode string          `json:"external_code"`
	Name         string          `json:"name"`
	Section      enums.GLSection `json:"section"`
}

func accountView(a *models.GLAccount) *AccountView {
	if a == nil {
		return nil
	}
	return &AccountView{ID: a.ID, ExternalCode: a.ExternalCode, Name: a.Name, Section: a.Section}
}

// ConfirmView is the confirm endpoint payload.
type ConfirmView struct {
	Line              *LineView                   `json:"line"`
	Alias             *AliasView                  `json:"alias,omitempty"`
	PackConfiguration *PackView                   `json:"pack_configuration,omitempty"`
	GLAccount         *AccountView                `json:"gl_account,omitempty"`
	CostPerBaseUnit   decimal.Decimal             `json:"cost_per_base_unit"`
	CostFallback      bool                        `json:"cost_fallback"`
	Warnings          []internalreconcile.Warning `json:"warnings"`
}

func confirmView(res *internalreconcile.ConfirmResult) ConfirmView {
	return ConfirmView{
		Line:              lineView(res.Line),
		Alias:             aliasView(res.Alias),
		PackConfiguration: packView(res.PackConfiguration),
		GLAccount:         accountView(res.GLAccount),
		CostPerBaseUnit:   res.CostPerBaseUnit,
		CostFallback:      res.CostFallback,
		Warnings:          res.Warnings,
	}
}

type ConflictView struct {
	ID              uuid.UUID  `json:"id"`
	VendorID        uuid.UUID  `json:"vendor_id"`
	AliasKey        string     `json:"alias_key"`
	ExistingItemID  uuid.UUID  `json:"existing_item_id"`
	AttemptedItemID uuid.UUID  `json:"attempted_item_id"`
	InvoiceLineID   *uuid.UUID `json:"invoice_line_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func conflictViews(rows []models.AliasConflict) []ConflictView {
	out := make([]ConflictView, 0, len(rows))
	for _, c := range rows {
		out = append(out, ConflictView{
			ID:              c.ID,
			VendorID:        c.VendorID,
			AliasKey:        c.AliasKey,
			ExistingItemID:  c.ExistingItemID,
			AttemptedItemID: c.AttemptedItemID,
			InvoiceLineID:   c.InvoiceLineID,
			CreatedAt:       c.CreatedAt,
		})
	}
	return out
}

// BulkResolveView is a bulk run summary plus the failures of a partial run.
type BulkResolveView struct {
	*internalreconcile.Summary
	Errors []BulkErrorView `json:"errors,omitempty"`
}

// BulkErrorView describes one failure. Batch is set for failed batches.
type BulkErrorView struct {
	Batch   int    `json:"batch,omitempty"`
	Message string `json:"message"`
}

func bulkResolveView(summary *internalreconcile.Summary, err error) BulkResolveView {
	view := BulkResolveView{Summary: summary}
	for _, e := range multierr.Errors(err) {
		var batchErr *internalreconcile.BatchError
		switch {
		case errors.As(e, &batchErr):
			view.Errors = append(view.Errors, BulkErrorView{Batch: batchErr.Batch, Message: "batch failed; its unresolved lines are left for the next run"})
		case errors.Is(e, context.Canceled), errors.Is(e, context.DeadlineExceeded):
			view.Errors = append(view.Errors, BulkErrorView{Message: "run cancelled before every batch finished"})
		default:
			msg := "some lines could not be resolved"
			if typed := pkgerrors.As(e); typed != nil {
				msg = typed.Message()
			}
			view.Errors = append(view.Errors, BulkErrorView{Message: msg})
		}
	}
	return view
}

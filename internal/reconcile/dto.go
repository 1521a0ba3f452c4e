package reconcile

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/backoffice-backend/internal/scoring"
	"github.com/angelmondragon/backoffice-backend/pkg/config"
	"github.com/angelmondragon/backoffice-backend/pkg/db/models"
	"github.com/angelmondragon/backoffice-backend/pkg/enums"
)

// Review reasons stored on lines routed to a human.
const (
	ReasonEmptyDescription = "empty_description"
	ReasonAmbiguous        = "ambiguous_match"
	ReasonLowQuality       = "low_quality_description"
)

// Warning codes returned by ConfirmMapping.
const (
	WarningAliasConflict   = "alias_conflict"
	WarningPackParse       = "pack_parse_failed"
	WarningPackInvalid     = "pack_not_convertible"
	WarningMeasureMismatch = "measure_mismatch"
	WarningGLMissing       = "gl_mapping_missing"
)

// maxSuggestions bounds the candidates returned with a resolution.
const maxSuggestions = 5

// Policy holds the orchestrator's thresholds and bulk tuning.
type Policy struct {
	AutoAcceptThreshold float64
	SuggestThreshold    float64
	AutoConfirm         bool
	CreateMissing       bool
	BatchSize           int
	BatchDelay          time.Duration
	Concurrency         int
}

// DefaultPolicy mirrors the configuration defaults.
func DefaultPolicy() Policy {
	return Policy{
		AutoAcceptThreshold: 0.95,
		SuggestThreshold:    0.80,
		AutoConfirm:         true,
		BatchSize:           25,
		Concurrency:         4,
	}
}

// PolicyFromConfig maps the reconcile config section.
func PolicyFromConfig(cfg config.ReconcileConfig) Policy {
	return Policy{
		AutoAcceptThreshold: cfg.AutoAcceptThreshold,
		SuggestThreshold:    cfg.SuggestThreshold,
		AutoConfirm:         cfg.AutoConfirm,
		CreateMissing:       cfg.CreateMissing,
		BatchSize:           cfg.BatchSize,
		BatchDelay:          cfg.BatchDelay,
		Concurrency:         cfg.Concurrency,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.AutoAcceptThreshold <= 0 {
		p.AutoAcceptThreshold = d.AutoAcceptThreshold
	}
	if p.SuggestThreshold <= 0 {
		p.SuggestThreshold = d.SuggestThreshold
	}
	if p.BatchSize <= 0 {
		p.BatchSize = d.BatchSize
	}
	if p.Concurrency <= 0 {
		p.Concurrency = d.Concurrency
	}
	return p
}

// LineInput is one OCR-extracted line. LineID links it to a persisted row.
type LineInput struct {
	LineID         *uuid.UUID
	VendorID       uuid.UUID
	Description    string
	VendorItemCode string
	Quantity       decimal.Decimal
	UnitCost       decimal.Decimal
	LineTotal      decimal.Decimal
}

// InputFromLine builds the resolution input for a persisted line.
func InputFromLine(line models.InvoiceLine) LineInput {
	in := LineInput{
		VendorID:    line.VendorID,
		Description: line.Description,
		Quantity:    line.Quantity,
		UnitCost:    line.UnitCost,
		LineTotal:   line.LineTotal,
	}
	id := line.ID
	in.LineID = &id
	if line.VendorItemCode != nil {
		in.VendorItemCode = *line.VendorItemCode
	}
	return in
}

// Result is the outcome of resolving one line.
type Result struct {
	LineID                *uuid.UUID       `json:"line_id,omitempty"`
	Status                enums.LineStatus `json:"status"`
	ItemID                *uuid.UUID       `json:"item_id,omitempty"`
	Confidence            *float64         `json:"confidence,omitempty"`
	Provenance            enums.Provenance `json:"provenance,omitempty"`
	NormalizedDescription string           `json:"normalized_description"`
	Candidates            []scoring.Match  `json:"candidates,omitempty"`
	Ambiguous             bool             `json:"ambiguous,omitempty"`
	LowQuality            bool             `json:"low_quality,omitempty"`
	NeedsReview           bool             `json:"needs_review,omitempty"`
	ReviewReason          string           `json:"review_reason,omitempty"`
}

// Warning is a non-fatal data-quality finding.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ConfirmResult describes everything a confirmation touched.
type ConfirmResult struct {
	Line              *models.InvoiceLine       `json:"line"`
	Alias             *models.VendorAlias       `json:"alias,omitempty"`
	PackConfiguration *models.PackConfiguration `json:"pack_configuration,omitempty"`
	GLAccount         *models.GLAccount         `json:"gl_account,omitempty"`
	CostPerBaseUnit   decimal.Decimal           `json:"cost_per_base_unit"`
	CostFallback      bool                      `json:"cost_fallback"`
	Warnings          []Warning                 `json:"warnings"`
}

// BulkOptions overrides the policy for a single bulk run.
type BulkOptions struct {
	CreateMissing *bool
	BatchDelay    *time.Duration
}

// Summary counts bulk outcomes per line.
type Summary struct {
	Total         int  `json:"total"`
	AutoMapped    int  `json:"auto_mapped"`
	AliasHits     int  `json:"alias_hits"`
	Suggested     int  `json:"suggested"`
	Unmatched     int  `json:"unmatched"`
	Created       int  `json:"created"`
	NeedsReview   int  `json:"needs_review"`
	Failed        int  `json:"failed"`
	Batches       int  `json:"batches"`
	FailedBatches int  `json:"failed_batches"`
	Cancelled     bool `json:"cancelled"`
}

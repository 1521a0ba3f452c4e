package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/backoffice-backend/pkg/enums"
)

// InvoiceLine is an OCR-extracted line awaiting or carrying a catalog mapping.
type InvoiceLine struct {
	ID                    uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	TenantID              uuid.UUID         `gorm:"column:tenant_id;type:uuid;not null;index"`
	InvoiceID             *uuid.UUID        `gorm:"column:invoice_id;type:uuid"`
	VendorID              uuid.UUID         `gorm:"column:vendor_id;type:uuid;not null;index"`
	Description           string            `gorm:"column:description;not null"`
	VendorItemCode        *string           `gorm:"column:vendor_item_code"`
	NormalizedDescription string            `gorm:"column:normalized_description;not null"`
	Quantity              decimal.Decimal   `gorm:"column:quantity;type:numeric(12,4);not null"`
	UnitCost              decimal.Decimal   `gorm:"column:unit_cost;type:numeric(12,4);not null"`
	LineTotal             decimal.Decimal   `gorm:"column:line_total;type:numeric(14,4);not null"`
	ItemID                *uuid.UUID        `gorm:"column:item_id;type:uuid"`
	Status                enums.LineStatus  `gorm:"column:status;not null;index"`
	MatchConfidence       *float64          `gorm:"column:match_confidence"`
	Provenance            *enums.Provenance `gorm:"column:provenance"`
	LowQuality            bool              `gorm:"column:low_quality;not null"`
	NeedsReview           bool              `gorm:"column:needs_review;not null"`
	ReviewReason          *string           `gorm:"column:review_reason"`
	LastResolvedAt        *time.Time        `gorm:"column:last_resolved_at"`
	CreatedAt             time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (InvoiceLine) TableName() string { return "invoice_lines" }

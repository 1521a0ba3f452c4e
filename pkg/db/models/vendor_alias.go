package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/backoffice-backend/pkg/enums"
)

// VendorAlias is a learned vendor code/description to item mapping.
type VendorAlias struct {
	ID                    uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	TenantID              uuid.UUID        `gorm:"column:tenant_id;type:uuid;not null;uniqueIndex:uq_vendor_aliases_key,priority:1"`
	VendorID              uuid.UUID        `gorm:"column:vendor_id;type:uuid;not null;uniqueIndex:uq_vendor_aliases_key,priority:2"`
	AliasKey              string           `gorm:"column:alias_key;not null;uniqueIndex:uq_vendor_aliases_key,priority:3"`
	VendorItemCode        *string          `gorm:"column:vendor_item_code"`
	NormalizedDescription string           `gorm:"column:normalized_description;not null"`
	ItemID                uuid.UUID        `gorm:"column:item_id;type:uuid;not null"`
	LastUnitCost          *decimal.Decimal `gorm:"column:last_unit_cost;type:numeric(12,4)"`
	Confirmed             bool             `gorm:"column:confirmed;not null"`
	Provenance            enums.Provenance `gorm:"column:provenance;not null"`
	CreatedAt             time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (VendorAlias) TableName() string { return "vendor_aliases" }

// AliasConflict records a rejected alias write for operator review.
type AliasConflict struct {
	ID              uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	TenantID        uuid.UUID  `gorm:"column:tenant_id;type:uuid;not null;index"`
	VendorID        uuid.UUID  `gorm:"column:vendor_id;type:uuid;not null"`
	AliasKey        string     `gorm:"column:alias_key;not null"`
	ExistingItemID  uuid.UUID  `gorm:"column:existing_item_id;type:uuid;not null"`
	AttemptedItemID uuid.UUID  `gorm:"column:attempted_item_id;type:uuid;not null"`
	InvoiceLineID   *uuid.UUID `gorm:"column:invoice_line_id;type:uuid"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (AliasConflict) TableName() string { return "alias_conflicts" }

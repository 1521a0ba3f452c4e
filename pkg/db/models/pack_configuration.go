package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/backoffice-backend/pkg/enums"
)

// PackConfiguration converts a vendor purchase unit into the item's base unit.
type PackConfiguration struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	TenantID         uuid.UUID       `gorm:"column:tenant_id;type:uuid;not null"`
	ItemID           uuid.UUID       `gorm:"column:item_id;type:uuid;not null;index"`
	VendorID         *uuid.UUID      `gorm:"column:vendor_id;type:uuid"`
	PackType         enums.PackType  `gorm:"column:pack_type;not null"`
	UnitsPerPack     decimal.Decimal `gorm:"column:units_per_pack;type:numeric(12,4);not null"`
	UnitSize         decimal.Decimal `gorm:"column:unit_size;type:numeric(14,4);not null"`
	UnitSizeUOM      enums.UOM       `gorm:"column:unit_size_uom;not null"`
	ConversionFactor decimal.Decimal `gorm:"column:conversion_factor;type:numeric(18,6);not null"`
	IsValid          bool            `gorm:"column:is_valid;not null"`
	InvalidReason    *string         `gorm:"column:invalid_reason"`
	SourceText       string          `gorm:"column:source_text;not null"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (PackConfiguration) TableName() string { return "pack_configurations" }

package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/backoffice-backend/pkg/enums"
)

// CatalogItem is the canonical inventory record invoice lines resolve to.
type CatalogItem struct {
	ID                   uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	TenantID             uuid.UUID         `gorm:"column:tenant_id;type:uuid;not null;index;uniqueIndex:uq_catalog_items_sku,priority:1"`
	Name                 string            `gorm:"column:name;not null"`
	SKU                  *string           `gorm:"column:sku;uniqueIndex:uq_catalog_items_sku,priority:2"`
	Category             string            `gorm:"column:category;not null"`
	Subcategory          *string           `gorm:"column:subcategory"`
	MeasureType          enums.MeasureType `gorm:"column:measure_type;not null"`
	BaseUOM              enums.UOM         `gorm:"column:base_uom;not null"`
	IsActive             bool              `gorm:"column:is_active;not null"`
	CostAccountID        *uuid.UUID        `gorm:"column:cost_account_id;type:uuid"`
	CostAccount          *GLAccount        `gorm:"foreignKey:CostAccountID"`
	InventoryAccountCode *string           `gorm:"column:inventory_account_code"`
	InventoryLevel       *string           `gorm:"column:inventory_level"`
	CostUpdateMethod     *string           `gorm:"column:cost_update_method"`
	KeyItem              bool              `gorm:"column:key_item;not null"`
	CreatedAt            time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (CatalogItem) TableName() string { return "catalog_items" }

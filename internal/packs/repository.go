package packs

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/backoffice-backend/pkg/db/models"
)

// Repository persists pack configurations.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// ToModel builds the persistent record for a resolution.
func ToModel(tenantID, itemID uuid.UUID, vendorID *uuid.UUID, res Resolution) *models.PackConfiguration {
	cfg := &models.PackConfiguration{
		TenantID:         tenantID,
		ItemID:           itemID,
		VendorID:         vendorID,
		PackType:         res.PackType,
		UnitsPerPack:     res.UnitsPerPack,
		UnitSize:         res.UnitSize,
		UnitSizeUOM:      res.UOM,
		ConversionFactor: res.BaseFactor,
		IsValid:          res.Valid,
		SourceText:       res.Source,
	}
	if res.InvalidReason != "" {
		reason := res.InvalidReason
		cfg.InvalidReason = &reason
	}
	return cfg
}

// Create stores cfg unless an equivalent configuration already exists for the
// item and vendor scope, in which case the existing row is returned.
func (r *Repository) Create(ctx context.Context, cfg *models.PackConfiguration) (*models.PackConfiguration, bool, error) {
	existing, err := r.ListByItem(ctx, cfg.TenantID, cfg.ItemID)
	if err != nil {
		return nil, false, err
	}
	for i := range existing {
		if samePack(&existing[i], cfg) {
			return &existing[i], false, nil
		}
	}
	if err := r.db.WithContext(ctx).Create(cfg).Error; err != nil {
		return nil, false, fmt.Errorf("create pack configuration: %w", err)
	}
	return cfg, true, nil
}

// ListByItem returns the item's pack configurations, newest first.
func (r *Repository) ListByItem(ctx context.Context, tenantID, itemID uuid.UUID) ([]models.PackConfiguration, error) {
	var rows []models.PackConfiguration
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND item_id = ?", tenantID, itemID).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list pack configurations: %w", err)
	}
	return rows, nil
}

// Preferred picks the valid configuration scoped to vendorID, else the newest
// valid unscoped one.
func Preferred(configs []models.PackConfiguration, vendorID uuid.UUID) *models.PackConfiguration {
	var fallback *models.PackConfiguration
	for i := range configs {
		c := &configs[i]
		if !c.IsValid {
			continue
		}
		if c.VendorID != nil && *c.VendorID == vendorID {
			return c
		}
		if c.VendorID == nil && fallback == nil {
			fallback = c
		}
	}
	return fallback
}

func samePack(a, b *models.PackConfiguration) bool {
	if (a.VendorID == nil) != (b.VendorID == nil) {
		return false
	}
	if a.VendorID != nil && *a.VendorID != *b.VendorID {
		return false
	}
	return a.PackType == b.PackType &&
		a.UnitSizeUOM == b.UnitSizeUOM &&
		a.UnitsPerPack.Equal(b.UnitsPerPack) &&
		a.UnitSize.Equal(b.UnitSize)
}

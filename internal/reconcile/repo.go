package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/backoffice-backend/pkg/db/models"
	"github.com/angelmondragon/backoffice-backend/pkg/enums"
)

// ErrLineNotFound is returned when a line does not exist for the tenant.
var ErrLineNotFound = errors.New("reconcile: invoice line not found")

// LineRepository persists invoice line resolution state.
type LineRepository interface {
	WithTx(tx *gorm.DB) LineRepository
	FindByID(ctx context.Context, tenantID, lineID uuid.UUID) (*models.InvoiceLine, error)
	ApplyResolution(ctx context.Context, tenantID, lineID uuid.UUID, res Result) (bool, error)
	MarkMapped(ctx context.Context, line *models.InvoiceLine, itemID uuid.UUID, provenance enums.Provenance) (bool, error)
	Unmap(ctx context.Context, tenantID, lineID uuid.UUID) (bool, error)
	ListUnmappedByVendor(ctx context.Context, tenantID, vendorID uuid.UUID, limit int) ([]models.InvoiceLine, error)
	ListPending(ctx context.Context, resolvedBefore time.Time, limit int) ([]models.InvoiceLine, error)
	ListUnmapped(ctx context.Context, tenantID uuid.UUID) ([]models.InvoiceLine, error)
}

type lineRepository struct {
	db *gorm.DB
}

// NewLineRepository builds a gorm-backed line repository.
func NewLineRepository(db *gorm.DB) LineRepository {
	return &lineRepository{db: db}
}

func (r *lineRepository) WithTx(tx *gorm.DB) LineRepository {
	return &lineRepository{db: tx}
}

func (r *lineRepository) FindByID(ctx context.Context, tenantID, lineID uuid.UUID) (*models.InvoiceLine, error) {
	var line models.InvoiceLine
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, lineID).
		Take(&line).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrLineNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load invoice line: %w", err)
	}
	return &line, nil
}

// ApplyResolution writes an automatic resolution. Mapped lines are never
// touched, so a concurrent confirmation always wins.
func (r *lineRepository) ApplyResolution(ctx context.Context, tenantID, lineID uuid.UUID, res Result) (bool, error) {
	now := time.Now().UTC()
	updates := map[string]any{
		"status":                 res.Status,
		"normalized_description": res.NormalizedDescription,
		"low_quality":            res.LowQuality,
		"needs_review":           res.NeedsReview,
		"review_reason":          nullableString(res.ReviewReason),
		"match_confidence":       res.Confidence,
		"last_resolved_at":       now,
		"updated_at":             now,
	}
	if res.Status == enums.LineStatusMapped {
		updates["item_id"] = res.ItemID
	} else {
		updates["item_id"] = nil
	}
	if res.Provenance != "" {
		updates["provenance"] = res.Provenance
	} else {
		updates["provenance"] = nil
	}

	tx := r.db.WithContext(ctx).
		Model(&models.InvoiceLine{}).
		Where("tenant_id = ? AND id = ? AND status <> ?", tenantID, lineID, enums.LineStatusMapped).
		Updates(updates)
	if tx.Error != nil {
		return false, fmt.Errorf("apply resolution: %w", tx.Error)
	}
	return tx.RowsAffected == 1, nil
}

// MarkMapped confirms a mapping. A line already mapped to a different item is
// left unchanged.
func (r *lineRepository) MarkMapped(ctx context.Context, line *models.InvoiceLine, itemID uuid.UUID, provenance enums.Provenance) (bool, error) {
	now := time.Now().UTC()
	tx := r.db.WithContext(ctx).
		Model(&models.InvoiceLine{}).
		Where("tenant_id = ? AND id = ? AND (status <> ? OR item_id = ?)", line.TenantID, line.ID, enums.LineStatusMapped, itemID).
		Updates(map[string]any{
			"status":        enums.LineStatusMapped,
			"item_id":       itemID,
			"provenance":    provenance,
			"needs_review":  false,
			"review_reason": nil,
			"updated_at":    now,
		})
	if tx.Error != nil {
		return false, fmt.Errorf("mark line mapped: %w", tx.Error)
	}
	if tx.RowsAffected != 1 {
		return false, nil
	}
	line.Status = enums.LineStatusMapped
	line.ItemID = &itemID
	line.Provenance = &provenance
	line.NeedsReview = false
	line.ReviewReason = nil
	line.UpdatedAt = now
	return true, nil
}

// Unmap clears the item of a mapped line.
func (r *lineRepository) Unmap(ctx context.Context, tenantID, lineID uuid.UUID) (bool, error) {
	tx := r.db.WithContext(ctx).
		Model(&models.InvoiceLine{}).
		Where("tenant_id = ? AND id = ? AND status = ?", tenantID, lineID, enums.LineStatusMapped).
		Updates(map[string]any{
			"status":           enums.LineStatusUnmapped,
			"item_id":          nil,
			"provenance":       nil,
			"match_confidence": nil,
			"updated_at":       time.Now().UTC(),
		})
	if tx.Error != nil {
		return false, fmt.Errorf("unmap line: %w", tx.Error)
	}
	return tx.RowsAffected == 1, nil
}

func (r *lineRepository) ListUnmappedByVendor(ctx context.Context, tenantID, vendorID uuid.UUID, limit int) ([]models.InvoiceLine, error) {
	var rows []models.InvoiceLine
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND vendor_id = ? AND status = ?", tenantID, vendorID, enums.LineStatusUnmapped).
		Order("created_at, id").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list unmapped vendor lines: %w", err)
	}
	return rows, nil
}

// ListPending returns unmapped lines across tenants that are not waiting on a
// human and were not attempted since resolvedBefore.
func (r *lineRepository) ListPending(ctx context.Context, resolvedBefore time.Time, limit int) ([]models.InvoiceLine, error) {
	var rows []models.InvoiceLine
	if err := r.db.WithContext(ctx).
		Where("status = ? AND needs_review = ?", enums.LineStatusUnmapped, false).
		Where("last_resolved_at IS NULL OR last_resolved_at < ?", resolvedBefore).
		Order("tenant_id, vendor_id, created_at").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list pending lines: %w", err)
	}
	return rows, nil
}

// ListUnmapped returns every unmapped or suggested line of a tenant.
func (r *lineRepository) ListUnmapped(ctx context.Context, tenantID uuid.UUID) ([]models.InvoiceLine, error) {
	var rows []models.InvoiceLine
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status <> ?", tenantID, enums.LineStatusMapped).
		Order("vendor_id, normalized_description, created_at").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list unmapped lines: %w", err)
	}
	return rows, nil
}

func nullableString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

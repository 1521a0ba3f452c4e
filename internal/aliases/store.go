// Package aliases persists learned vendor code/description to catalog item
// mappings used to skip fuzzy matching on repeat purchases.
package aliases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/backoffice-backend/pkg/db/models"
	"github.com/angelmondragon/backoffice-backend/pkg/enums"
	"github.com/angelmondragon/backoffice-backend/pkg/logger"
)

// ErrAliasConflict is returned when a write would remap an alias key to a
// different item.
var ErrAliasConflict = errors.New("aliases: key already maps to a different item")

// ConflictError carries both sides of a rejected alias write.
type ConflictError struct {
	VendorID        uuid.UUID
	AliasKey        string
	ExistingItemID  uuid.UUID
	AttemptedItemID uuid.UUID
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s for vendor %s is mapped to %s, refused %s",
		ErrAliasConflict, e.AliasKey, e.VendorID, e.ExistingItemID, e.AttemptedItemID)
}

func (e *ConflictError) Unwrap() error { return ErrAliasConflict }

// Key identifies an alias. Code wins over Description when both are set.
type Key struct {
	TenantID    uuid.UUID
	VendorID    uuid.UUID
	Code        string
	Description string
}

func codeKey(code string) string { return "code:" + strings.ToUpper(strings.TrimSpace(code)) }
func descKey(desc string) string { return "desc:" + strings.TrimSpace(desc) }

// AliasKey is the persisted uniqueness key for the alias.
func (k Key) AliasKey() string {
	if strings.TrimSpace(k.Code) != "" {
		return codeKey(k.Code)
	}
	return descKey(k.Description)
}

// lookupKeys lists keys in lookup order: code first, then description.
func (k Key) lookupKeys() []string {
	keys := make([]string, 0, 2)
	if strings.TrimSpace(k.Code) != "" {
		keys = append(keys, codeKey(k.Code))
	}
	if strings.TrimSpace(k.Description) != "" {
		keys = append(keys, descKey(k.Description))
	}
	return keys
}

// UpsertInput is a confirmed mapping to learn.
type UpsertInput struct {
	Key
	ItemID        uuid.UUID
	UnitCost      *decimal.Decimal
	Provenance    enums.Provenance
	InvoiceLineID *uuid.UUID
}

// Cache is an optional read-through cache of alias lookups.
type Cache interface {
	GetItem(ctx context.Context, tenantID, vendorID uuid.UUID, aliasKey string) (uuid.UUID, bool, error)
	SetItem(ctx context.Context, tenantID, vendorID uuid.UUID, aliasKey string, itemID uuid.UUID) error
}

// Recorder receives alias store events for metrics.
type Recorder interface {
	ObserveAliasLookup(hit bool)
	IncAliasConflict()
}

// Store is the alias repository.
type Store struct {
	db       *gorm.DB
	cache    Cache
	logg     *logger.Logger
	recorder Recorder
}

// Option configures a Store.
type Option func(*Store)

// WithCache enables the read-through cache.
func WithCache(c Cache) Option { return func(s *Store) { s.cache = c } }

// WithLogger sets the logger used for cache failures and conflicts.
func WithLogger(l *logger.Logger) Option { return func(s *Store) { s.logg = l } }

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option { return func(s *Store) { s.recorder = r } }

// NewStore builds an alias store.
func NewStore(db *gorm.DB, opts ...Option) *Store {
	s := &Store{db: db, logg: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithTx returns a store bound to the provided transaction. The cache is
// dropped so uncommitted mappings are never cached.
func (s *Store) WithTx(tx *gorm.DB) *Store {
	return &Store{db: tx, logg: s.logg, recorder: s.recorder}
}

// Lookup resolves key to an item: exact vendor code first, then normalized
// description.
func (s *Store) Lookup(ctx context.Context, key Key) (uuid.UUID, bool, error) {
	for _, aliasKey := range key.lookupKeys() {
		itemID, ok, err := s.lookupOne(ctx, key.TenantID, key.VendorID, aliasKey)
		if err != nil {
			return uuid.Nil, false, err
		}
		if ok {
			s.observeLookup(true)
			return itemID, true, nil
		}
	}
	s.observeLookup(false)
	return uuid.Nil, false, nil
}

func (s *Store) lookupOne(ctx context.Context, tenantID, vendorID uuid.UUID, aliasKey string) (uuid.UUID, bool, error) {
	if s.cache != nil {
		itemID, ok, err := s.cache.GetItem(ctx, tenantID, vendorID, aliasKey)
		if err != nil {
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"alias_key": aliasKey, "error": err.Error()}), "alias cache read failed")
		} else if ok {
			return itemID, true, nil
		}
	}

	row, err := s.find(ctx, tenantID, vendorID, aliasKey)
	if err != nil {
		return uuid.Nil, false, err
	}
	if row == nil {
		return uuid.Nil, false, nil
	}
	s.cacheSet(ctx, tenantID, vendorID, aliasKey, row.ItemID)
	return row.ItemID, true, nil
}

// Get returns the alias row stored under key's alias key.
func (s *Store) Get(ctx context.Context, key Key) (*models.VendorAlias, error) {
	return s.find(ctx, key.TenantID, key.VendorID, key.AliasKey())
}

func (s *Store) find(ctx context.Context, tenantID, vendorID uuid.UUID, aliasKey string) (*models.VendorAlias, error) {
	var row models.VendorAlias
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND vendor_id = ? AND alias_key = ?", tenantID, vendorID, aliasKey).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup alias: %w", err)
	}
	return &row, nil
}

// Upsert learns a mapping with a single conflict-checked insert. An existing
// row for the same item is refreshed; an existing row for another item is
// left untouched, logged to alias_conflicts, and reported as *ConflictError.
func (s *Store) Upsert(ctx context.Context, in UpsertInput) (*models.VendorAlias, error) {
	if in.ItemID == uuid.Nil {
		return nil, errors.New("aliases: item id is required")
	}
	aliasKey := in.AliasKey()
	if aliasKey == "desc:" {
		return nil, errors.New("aliases: code or normalized description is required")
	}
	provenance := in.Provenance
	if provenance == "" {
		provenance = enums.ProvenanceManual
	}

	row := models.VendorAlias{
		TenantID:              in.TenantID,
		VendorID:              in.VendorID,
		AliasKey:              aliasKey,
		NormalizedDescription: strings.TrimSpace(in.Description),
		ItemID:                in.ItemID,
		LastUnitCost:          in.UnitCost,
		Confirmed:             true,
		Provenance:            provenance,
	}
	if code := strings.TrimSpace(in.Code); code != "" {
		row.VendorItemCode = &code
	}

	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "vendor_id"}, {Name: "alias_key"}},
			DoNothing: true,
		}).
		Create(&row)
	if res.Error != nil {
		return nil, fmt.Errorf("insert alias: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		s.cacheSet(ctx, in.TenantID, in.VendorID, aliasKey, in.ItemID)
		return &row, nil
	}

	existing, err := s.find(ctx, in.TenantID, in.VendorID, aliasKey)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("aliases: %s vanished after insert conflict", aliasKey)
	}
	if existing.ItemID != in.ItemID {
		return nil, s.reject(ctx, in, existing)
	}

	updates := map[string]any{"confirmed": true, "updated_at": time.Now().UTC()}
	if in.UnitCost != nil {
		updates["last_unit_cost"] = *in.UnitCost
	}
	if err := s.db.WithContext(ctx).
		Model(&models.VendorAlias{}).
		Where("id = ? AND item_id = ?", existing.ID, in.ItemID).
		Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("refresh alias: %w", err)
	}
	existing.Confirmed = true
	if in.UnitCost != nil {
		existing.LastUnitCost = in.UnitCost
	}
	s.cacheSet(ctx, in.TenantID, in.VendorID, aliasKey, in.ItemID)
	return existing, nil
}

func (s *Store) reject(ctx context.Context, in UpsertInput, existing *models.VendorAlias) error {
	conflict := &ConflictError{
		VendorID:        in.VendorID,
		AliasKey:        existing.AliasKey,
		ExistingItemID:  existing.ItemID,
		AttemptedItemID: in.ItemID,
	}
	record := models.AliasConflict{
		TenantID:        in.TenantID,
		VendorID:        in.VendorID,
		AliasKey:        existing.AliasKey,
		ExistingItemID:  existing.ItemID,
		AttemptedItemID: in.ItemID,
		InvoiceLineID:   in.InvoiceLineID,
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"vendor_id":         in.VendorID.String(),
		"alias_key":         existing.AliasKey,
		"existing_item_id":  existing.ItemID.String(),
		"attempted_item_id": in.ItemID.String(),
	})
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		s.logg.Error(logCtx, "failed to record alias conflict", err)
	}
	s.logg.Warn(logCtx, "alias conflict rejected")
	if s.recorder != nil {
		s.recorder.IncAliasConflict()
	}
	return conflict
}

// ListConflicts returns the newest recorded conflicts for operator review.
func (s *Store) ListConflicts(ctx context.Context, tenantID uuid.UUID, limit int) ([]models.AliasConflict, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows []models.AliasConflict
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list alias conflicts: %w", err)
	}
	return rows, nil
}

func (s *Store) cacheSet(ctx context.Context, tenantID, vendorID uuid.UUID, aliasKey string, itemID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetItem(ctx, tenantID, vendorID, aliasKey, itemID); err != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"alias_key": aliasKey, "error": err.Error()}), "alias cache write failed")
	}
}

func (s *Store) observeLookup(hit bool) {
	if s.recorder != nil {
		s.recorder.ObserveAliasLookup(hit)
	}
}

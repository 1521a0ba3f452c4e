// Package catalog reads and maintains the canonical inventory catalog that
// invoice lines are matched against.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/backoffice-backend/internal/scoring"
	pkgdb "github.com/angelmondragon/backoffice-backend/pkg/db"
	"github.com/angelmondragon/backoffice-backend/pkg/db/models"
)

// DefaultMaxCandidates bounds candidate lists when no limit is configured.
const DefaultMaxCandidates = 20

// ErrItemNotFound is returned when an item does not exist for the tenant.
var ErrItemNotFound = errors.New("catalog: item not found")

// ErrDuplicateSKU is returned when another item of the tenant has the sku.
var ErrDuplicateSKU = errors.New("catalog: sku already in use")

// minTokenRunes is the shortest query token used by the token fallback.
const minTokenRunes = 4

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapedLowerName applies likeEscaper in SQL so a stored name can be used as a
// literal LIKE pattern.
const escapedLowerName = `REPLACE(REPLACE(REPLACE(LOWER(name), '\', '\\'), '%', '\%'), '_', '\_')`

// Repository is the gorm-backed catalog store.
type Repository struct {
	db    *gorm.DB
	limit int
}

// NewRepository builds a catalog repository. limit <= 0 uses DefaultMaxCandidates.
func NewRepository(db *gorm.DB, limit int) *Repository {
	if limit <= 0 {
		limit = DefaultMaxCandidates
	}
	return &Repository{db: db, limit: limit}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx, limit: r.limit}
}

// FindCandidates returns up to the configured limit of active items whose name
// or sku contains the query, then items whose name is contained in the query.
// When neither direction matches, significant query tokens are tried alone.
// No match is an empty list, not an error.
func (r *Repository) FindCandidates(ctx context.Context, tenantID uuid.UUID, query string) ([]scoring.Candidate, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return []scoring.Candidate{}, nil
	}
	pattern := "%" + likeEscaper.Replace(query) + "%"

	out := make([]scoring.Candidate, 0, r.limit)
	seen := map[uuid.UUID]struct{}{}
	add := func(items []models.CatalogItem, signal scoring.Signal) {
		for _, item := range items {
			if len(out) >= r.limit {
				return
			}
			if _, ok := seen[item.ID]; ok {
				continue
			}
			seen[item.ID] = struct{}{}
			out = append(out, toCandidate(item, signal))
		}
	}

	var strong []models.CatalogItem
	if err := r.active(ctx, tenantID).
		Where(`LOWER(name) LIKE ? ESCAPE '\'`, pattern).
		Order("name").Limit(r.limit).
		Find(&strong).Error; err != nil {
		return nil, fmt.Errorf("find candidates by name: %w", err)
	}
	add(strong, scoring.SignalNameContainsQuery)

	if len(out) < r.limit {
		var bySKU []models.CatalogItem
		if err := r.active(ctx, tenantID).
			Where(`sku IS NOT NULL AND LOWER(sku) LIKE ? ESCAPE '\'`, pattern).
			Order("name").Limit(r.limit).
			Find(&bySKU).Error; err != nil {
			return nil, fmt.Errorf("find candidates by sku: %w", err)
		}
		add(bySKU, scoring.SignalSKU)
	}

	if len(out) < r.limit {
		var weak []models.CatalogItem
		if err := r.active(ctx, tenantID).
			Where("TRIM(name) <> ''").
			Where(`? LIKE '%' || `+escapedLowerName+` || '%' ESCAPE '\'`, query).
			Order("name").Limit(r.limit).
			Find(&weak).Error; err != nil {
			return nil, fmt.Errorf("find candidates in query: %w", err)
		}
		add(weak, scoring.SignalQueryContainsName)
	}

	if len(out) == 0 {
		for _, tok := range significantTokens(query) {
			var byToken []models.CatalogItem
			if err := r.active(ctx, tenantID).
				Where(`LOWER(name) LIKE ? ESCAPE '\'`, "%"+likeEscaper.Replace(tok)+"%").
				Order("name").Limit(r.limit).
				Find(&byToken).Error; err != nil {
				return nil, fmt.Errorf("find candidates by token: %w", err)
			}
			add(byToken, scoring.SignalToken)
			if len(out) >= r.limit {
				break
			}
		}
	}
	return out, nil
}

func (r *Repository) active(ctx context.Context, tenantID uuid.UUID) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&models.CatalogItem{}).
		Where("tenant_id = ? AND is_active = ?", tenantID, true)
}

// FindByID loads one tenant item.
func (r *Repository) FindByID(ctx context.Context, tenantID, itemID uuid.UUID) (*models.CatalogItem, error) {
	var item models.CatalogItem
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, itemID).
		Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load catalog item: %w", err)
	}
	return &item, nil
}

// ListActive returns every active item of the tenant, for index builds.
func (r *Repository) ListActive(ctx context.Context, tenantID uuid.UUID) ([]models.CatalogItem, error) {
	var items []models.CatalogItem
	if err := r.active(ctx, tenantID).Order("name").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list active catalog items: %w", err)
	}
	return items, nil
}

// ListMissingCostAccount returns active items without a GL assignment.
func (r *Repository) ListMissingCostAccount(ctx context.Context, tenantID uuid.UUID) ([]models.CatalogItem, error) {
	var items []models.CatalogItem
	if err := r.active(ctx, tenantID).
		Where("cost_account_id IS NULL").
		Order("category, name").
		Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list items without cost account: %w", err)
	}
	return items, nil
}

// Create inserts a catalog item.
func (r *Repository) Create(ctx context.Context, item *models.CatalogItem) (*models.CatalogItem, error) {
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		return nil, writeError("create catalog item", item, err)
	}
	return item, nil
}

// catalog_items has no other unique key a write can trip.
func writeError(op string, item *models.CatalogItem, err error) error {
	if pkgdb.IsUniqueViolation(err, "") && item.SKU != nil {
		return fmt.Errorf("%w: %s", ErrDuplicateSKU, *item.SKU)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// FindBySKU loads an item by sku, case-insensitively.
func (r *Repository) FindBySKU(ctx context.Context, tenantID uuid.UUID, sku string) (*models.CatalogItem, error) {
	var item models.CatalogItem
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND LOWER(sku) = ?", tenantID, strings.ToLower(strings.TrimSpace(sku))).
		Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load catalog item by sku: %w", err)
	}
	return &item, nil
}

// SetCostAccount assigns a GL account to an item that has none yet.
func (r *Repository) SetCostAccount(ctx context.Context, tenantID, itemID, accountID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CatalogItem{}).
		Where("tenant_id = ? AND id = ? AND cost_account_id IS NULL", tenantID, itemID).
		Update("cost_account_id", accountID)
	if res.Error != nil {
		return false, fmt.Errorf("assign cost account: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func toCandidate(item models.CatalogItem, signal scoring.Signal) scoring.Candidate {
	c := scoring.Candidate{
		ItemID:   item.ID,
		Name:     item.Name,
		Category: item.Category,
		Signal:   signal,
	}
	if item.SKU != nil {
		c.SKU = *item.SKU
	}
	if item.Subcategory != nil {
		c.Subcategory = *item.Subcategory
	}
	return c
}

func significantTokens(query string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, tok := range strings.Fields(query) {
		if utf8.RuneCountInString(tok) < minTokenRunes {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// FindByName loads an item by exact name, ignoring case and surrounding space.
func (r *Repository) FindByName(ctx context.Context, tenantID uuid.UUID, name string) (*models.CatalogItem, error) {
	var item models.CatalogItem
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND LOWER(name) = ?", tenantID, strings.ToLower(strings.TrimSpace(name))).
		Order("created_at").
		Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load catalog item by name: %w", err)
	}
	return &item, nil
}

// Save writes every column of an existing item.
func (r *Repository) Save(ctx context.Context, item *models.CatalogItem) error {
	if err := r.db.WithContext(ctx).Save(item).Error; err != nil {
		return writeError("save catalog item", item, err)
	}
	return nil
}

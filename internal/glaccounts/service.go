// Package glaccounts suggests general-ledger cost accounts for catalog items.
package glaccounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/backoffice-backend/pkg/db/models"
)

// ErrGLMappingMissing means no tenant account exists for the item's category.
var ErrGLMappingMissing = errors.New("glaccounts: no matching account for category")

// Service resolves suggested codes against a tenant's chart of accounts.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// WithTx returns a service bound to the provided transaction.
func (s *Service) WithTx(tx *gorm.DB) *Service {
	return &Service{db: tx}
}

// SuggestAccount returns the tenant account for the subcategory code, falling
// back to the category default code. Accounts are never invented.
func (s *Service) SuggestAccount(ctx context.Context, category, subcategory string, tenantID uuid.UUID) (*models.GLAccount, error) {
	specific, fallback, ok := Codes(category, subcategory)
	if !ok {
		return nil, ErrGLMappingMissing
	}
	for _, code := range []string{specific, fallback} {
		if code == "" {
			continue
		}
		account, err := s.FindByCode(ctx, tenantID, code)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return account, nil
	}
	return nil, ErrGLMappingMissing
}

// SuggestForItem suggests an account for a catalog item.
func (s *Service) SuggestForItem(ctx context.Context, item *models.CatalogItem) (*models.GLAccount, error) {
	sub := ""
	if item.Subcategory != nil {
		sub = *item.Subcategory
	}
	return s.SuggestAccount(ctx, item.Category, sub, item.TenantID)
}

// FindByCode loads a tenant account by external code.
func (s *Service) FindByCode(ctx context.Context, tenantID uuid.UUID, code string) (*models.GLAccount, error) {
	var account models.GLAccount
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND external_code = ?", tenantID, code).
		Take(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load gl account %s: %w", code, err)
	}
	return &account, nil
}

// ComplianceGap is an active item without a GL assignment.
type ComplianceGap struct {
	ItemID        uuid.UUID `json:"item_id"`
	Name          string    `json:"name"`
	Category      string    `json:"category"`
	Subcategory   string    `json:"subcategory,omitempty"`
	SuggestedCode string    `json:"suggested_code,omitempty"`
	Resolvable    bool      `json:"resolvable"`
}

// ComplianceReport lists active items without a cost account. Resolvable is
// true when the tenant's chart holds a suggested account.
func (s *Service) ComplianceReport(ctx context.Context, tenantID uuid.UUID) ([]ComplianceGap, error) {
	var items []models.CatalogItem
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND is_active = ? AND cost_account_id IS NULL", tenantID, true).
		Order("category, name").
		Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list compliance gaps: %w", err)
	}

	out := make([]ComplianceGap, 0, len(items))
	for i := range items {
		item := &items[i]
		gap := ComplianceGap{ItemID: item.ID, Name: item.Name, Category: item.Category}
		if item.Subcategory != nil {
			gap.Subcategory = *item.Subcategory
		}
		account, err := s.SuggestForItem(ctx, item)
		switch {
		case err == nil:
			gap.SuggestedCode = account.ExternalCode
			gap.Resolvable = true
		case errors.Is(err, ErrGLMappingMissing):
			if specific, fallback, ok := Codes(gap.Category, gap.Subcategory); ok {
				gap.SuggestedCode = firstNonEmpty(specific, fallback)
			}
		default:
			return nil, err
		}
		out = append(out, gap)
	}
	return out, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

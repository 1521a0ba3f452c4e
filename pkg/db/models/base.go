package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func (c *CatalogItem) BeforeCreate(*gorm.DB) error       { ensureID(&c.ID); return nil }
func (p *PackConfiguration) BeforeCreate(*gorm.DB) error { ensureID(&p.ID); return nil }
func (a *VendorAlias) BeforeCreate(*gorm.DB) error       { ensureID(&a.ID); return nil }
func (a *AliasConflict) BeforeCreate(*gorm.DB) error     { ensureID(&a.ID); return nil }
func (l *InvoiceLine) BeforeCreate(*gorm.DB) error       { ensureID(&l.ID); return nil }
func (g *GLAccount) BeforeCreate(*gorm.DB) error         { ensureID(&g.ID); return nil }

// All lists every model, in dependency order, for sqlite-backed tests.
func All() []any {
	return []any{
		&GLAccount{},
		&CatalogItem{},
		&PackConfiguration{},
		&VendorAlias{},
		&AliasConflict{},
		&InvoiceLine{},
	}
}

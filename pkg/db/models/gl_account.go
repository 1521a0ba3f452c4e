package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/backoffice-backend/pkg/enums"
)

// GLAccount is a tenant chart-of-accounts row.
type GLAccount struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	TenantID     uuid.UUID       `gorm:"column:tenant_id;type:uuid;not null;uniqueIndex:uq_gl_accounts_code,priority:1"`
	ExternalCode string          `gorm:"column:external_code;not null;uniqueIndex:uq_gl_accounts_code,priority:2"`
	Name         string          `gorm:"column:name;not null"`
	Section      enums.GLSection `gorm:"column:section;not null"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (GLAccount) TableName() string { return "gl_accounts" }

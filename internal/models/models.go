package models

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Roles a user account can hold. The chat pipeline derives its
// authorization scope from these; anything else is denied by default.
const (
	RoleAdmin   = "admin"
	RoleCEO     = "ceo"
	RoleAnalyst = "analyst"
)

// AllRoles is the set of roles accepted at registration.
var AllRoles = map[string]struct{}{
	RoleAdmin:   {},
	RoleCEO:     {},
	RoleAnalyst: {},
}

// User is an account in the system. CompanyID binds non-admin users to
// the tenant whose data they may query.
type User struct {
	gorm.Model

	Username string `gorm:"unique;not null;size:64"`
	Password string `gorm:"size:255" json:"-"` // bcrypt hash, never serialized
	Role     string `gorm:"type:varchar(16);not null;default:'analyst'"`

	CompanyID *uint `gorm:"index"`
	Settings  datatypes.JSON
}

// Company is a tenant. A company may have a parent, forming the
// two-level hierarchy CEO scopes traverse.
type Company struct {
	gorm.Model

	Name            string `gorm:"unique;not null;size:120"`
	ParentCompanyID *uint  `gorm:"index"`
}

// BalanceSheetEntry is one extracted financial metric for a company and
// year. Uploads upsert on the (company, year, metric) key.
type BalanceSheetEntry struct {
	gorm.Model

	CompanyID uint    `gorm:"not null;uniqueIndex:uq_company_year_metric"`
	Year      int     `gorm:"not null;uniqueIndex:uq_company_year_metric"`
	Metric    string  `gorm:"not null;size:120;uniqueIndex:uq_company_year_metric"`
	Value     float64 `gorm:"not null"`
	Currency  string  `gorm:"not null;size:16"`

	Company Company `gorm:"foreignKey:CompanyID"`
}

func (User) TableName() string {
	return "users"
}

func (Company) TableName() string {
	return "companies"
}

func (BalanceSheetEntry) TableName() string {
	return "balance_sheet_entries"
}

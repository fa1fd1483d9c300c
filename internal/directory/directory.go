package directory

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"finsight/internal/chat/interfaces"
	"finsight/internal/chat/schema"
	"finsight/internal/models"
)

// Store answers user and company lookups from MySQL. It is the only
// bridge between the relational models and the chat pipeline's view of
// the organization.
type Store struct {
	db *gorm.DB
}

var _ interfaces.Directory = (*Store)(nil)

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// GetUser loads a user and projects it to the pipeline's identity.
func (s *Store) GetUser(ctx context.Context, id uint) (*schema.Identity, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, schema.ErrIdentityNotFound
		}
		return nil, fmt.Errorf("loading user %d: %w", id, err)
	}
	return &schema.Identity{
		ID:        user.ID,
		Username:  user.Username,
		Role:      user.Role,
		CompanyID: user.CompanyID,
	}, nil
}

// GetCompany loads one company.
func (s *Store) GetCompany(ctx context.Context, id uint) (*schema.Company, error) {
	var company models.Company
	if err := s.db.WithContext(ctx).First(&company, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, schema.ErrCompanyNotFound
		}
		return nil, fmt.Errorf("loading company %d: %w", id, err)
	}
	return &schema.Company{
		ID:       company.ID,
		Name:     company.Name,
		ParentID: company.ParentCompanyID,
	}, nil
}

// ListCompanyIDs returns every company ID. Admin scope is built from it.
func (s *Store) ListCompanyIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	if err := s.db.WithContext(ctx).Model(&models.Company{}).Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("listing companies: %w", err)
	}
	return ids, nil
}

// ChildCompanyIDs returns the direct children of a company. Only one
// level deep; a CEO's scope does not cascade through grandchildren.
func (s *Store) ChildCompanyIDs(ctx context.Context, parentID uint) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).
		Model(&models.Company{}).
		Where("parent_company_id = ?", parentID).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("listing children of company %d: %w", parentID, err)
	}
	return ids, nil
}

// ListCompanies returns all companies for the directory endpoint.
func (s *Store) ListCompanies(ctx context.Context) ([]*schema.Company, error) {
	var companies []models.Company
	if err := s.db.WithContext(ctx).Order("id").Find(&companies).Error; err != nil {
		return nil, fmt.Errorf("listing companies: %w", err)
	}
	out := make([]*schema.Company, 0, len(companies))
	for _, c := range companies {
		out = append(out, &schema.Company{
			ID:       c.ID,
			Name:     c.Name,
			ParentID: c.ParentCompanyID,
		})
	}
	return out, nil
}

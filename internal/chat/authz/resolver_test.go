package authz

import (
	"context"
	"testing"

	"finsight/internal/chat/schema"
)

// fakeDirectory serves a fixed two-level hierarchy:
// company 1 is the parent of 2 and 3, company 4 is independent.
type fakeDirectory struct{}

func (fakeDirectory) GetUser(ctx context.Context, id uint) (*schema.Identity, error) {
	return nil, schema.ErrIdentityNotFound
}

func (fakeDirectory) GetCompany(ctx context.Context, id uint) (*schema.Company, error) {
	return nil, schema.ErrCompanyNotFound
}

func (fakeDirectory) ListCompanyIDs(ctx context.Context) ([]uint, error) {
	return []uint{1, 2, 3, 4}, nil
}

func (fakeDirectory) ChildCompanyIDs(ctx context.Context, parentID uint) ([]uint, error) {
	if parentID == 1 {
		return []uint{2, 3}, nil
	}
	return nil, nil
}

func uintPtr(v uint) *uint { return &v }

func TestResolverScope(t *testing.T) {
	resolver := NewResolver(fakeDirectory{})

	tests := []struct {
		name     string
		identity *schema.Identity
		want     []uint
	}{
		{
			name:     "admin sees all companies",
			identity: &schema.Identity{ID: 1, Role: schema.RoleAdmin},
			want:     []uint{1, 2, 3, 4},
		},
		{
			name:     "ceo sees own company and direct children",
			identity: &schema.Identity{ID: 2, Role: schema.RoleCEO, CompanyID: uintPtr(1)},
			want:     []uint{1, 2, 3},
		},
		{
			name:     "ceo of leaf company sees only itself",
			identity: &schema.Identity{ID: 3, Role: schema.RoleCEO, CompanyID: uintPtr(4)},
			want:     []uint{4},
		},
		{
			name:     "ceo without company sees nothing",
			identity: &schema.Identity{ID: 4, Role: schema.RoleCEO},
			want:     nil,
		},
		{
			name:     "analyst sees exactly own company",
			identity: &schema.Identity{ID: 5, Role: schema.RoleAnalyst, CompanyID: uintPtr(2)},
			want:     []uint{2},
		},
		{
			name:     "analyst without company sees nothing",
			identity: &schema.Identity{ID: 6, Role: schema.RoleAnalyst},
			want:     nil,
		},
		{
			name:     "unknown role is denied by default",
			identity: &schema.Identity{ID: 7, Role: "auditor", CompanyID: uintPtr(2)},
			want:     nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scope, err := resolver.Scope(context.Background(), tt.identity)
			if err != nil {
				t.Fatalf("Scope() error = %v", err)
			}
			if len(scope) != len(tt.want) {
				t.Fatalf("Scope() has %d companies, want %d", len(scope), len(tt.want))
			}
			for _, id := range tt.want {
				if !scope.Contains(id) {
					t.Errorf("Scope() missing company %d", id)
				}
			}
		})
	}
}

func TestResolverNilIdentity(t *testing.T) {
	resolver := NewResolver(fakeDirectory{})
	if _, err := resolver.Scope(context.Background(), nil); err != schema.ErrIdentityNotFound {
		t.Fatalf("Scope(nil) error = %v, want ErrIdentityNotFound", err)
	}
}

func TestScopeIntersect(t *testing.T) {
	scope := schema.NewScope(1, 2, 3)

	got := scope.Intersect([]uint{3, 8, 1})
	if len(got) != 2 || got[0] != 3 || got[1] != 1 {
		t.Errorf("Intersect() = %v, want [3 1]", got)
	}

	if got := scope.Intersect([]uint{8, 9}); got != nil {
		t.Errorf("Intersect() with disjoint set = %v, want nil", got)
	}
}

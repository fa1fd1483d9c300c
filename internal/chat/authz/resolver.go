package authz

import (
	"context"
	"fmt"

	"finsight/internal/chat/interfaces"
	"finsight/internal/chat/schema"
)

// Resolver computes the set of companies an identity may query from its
// role and the company hierarchy. The scope is recomputed per request and
// is the single security boundary the rest of the pipeline honors: every
// retrieval filter downstream must be derived from it.
type Resolver struct {
	directory interfaces.Directory
}

// NewResolver creates a Resolver backed by the given organization directory.
func NewResolver(directory interfaces.Directory) *Resolver {
	return &Resolver{directory: directory}
}

// Scope returns the authorized company set for the identity.
//
//	admin   -> all known companies
//	ceo     -> own company plus its direct children
//	analyst -> own company, or nothing when unassigned
//	other   -> nothing (deny by default)
func (r *Resolver) Scope(ctx context.Context, identity *schema.Identity) (schema.Scope, error) {
	if identity == nil {
		return nil, schema.ErrIdentityNotFound
	}

	switch identity.Role {
	case schema.RoleAdmin:
		ids, err := r.directory.ListCompanyIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing companies: %w", err)
		}
		return schema.NewScope(ids...), nil

	case schema.RoleCEO:
		if identity.CompanyID == nil {
			return schema.NewScope(), nil
		}
		children, err := r.directory.ChildCompanyIDs(ctx, *identity.CompanyID)
		if err != nil {
			return nil, fmt.Errorf("listing child companies: %w", err)
		}
		scope := schema.NewScope(*identity.CompanyID)
		for _, id := range children {
			scope[id] = struct{}{}
		}
		return scope, nil

	case schema.RoleAnalyst:
		if identity.CompanyID == nil {
			return schema.NewScope(), nil
		}
		return schema.NewScope(*identity.CompanyID), nil

	default:
		return schema.NewScope(), nil
	}
}

// Package auth provides the default authorization policy for caller contexts.
package auth

import (
	"slices"

	"github.com/vvka-141/pgdbapi/pkg/dbapi"
)

// AdminRole grants administrative privilege when present in CallerContext.Roles.
const AdminRole = "admin"

// Policy implements dbapi.Authorizer.
//
// A context is valid when it is present and either administrative or scoped
// to both a user and a project.
type Policy struct {
	// AdminRoles are role names treated as administrative. Defaults to AdminRole.
	AdminRoles []string
}

// NewPolicy returns a Policy recognising the given admin roles, or AdminRole when none are given.
func NewPolicy(adminRoles ...string) *Policy {
	if len(adminRoles) == 0 {
		adminRoles = []string{AdminRole}
	}
	return &Policy{AdminRoles: adminRoles}
}

// IsValid reports whether cc identifies a caller.
func (p *Policy) IsValid(cc *dbapi.CallerContext) bool {
	if cc == nil {
		return false
	}
	if p.IsAdmin(cc) {
		return true
	}
	return cc.UserID != "" && cc.ProjectID != ""
}

// IsAdmin reports whether cc carries administrative privilege.
func (p *Policy) IsAdmin(cc *dbapi.CallerContext) bool {
	if cc == nil {
		return false
	}
	if cc.IsAdmin {
		return true
	}
	return slices.ContainsFunc(p.AdminRoles, cc.HasRole)
}

var _ dbapi.Authorizer = (*Policy)(nil)

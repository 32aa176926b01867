package rbac

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// PermissionResolver answers "may user U perform action P in space S".
// Implementations fail closed: no role, no binding, or an unknown
// permission name all yield (false, nil).
type PermissionResolver interface {
	HasPermission(ctx context.Context, userID, spaceID int64, permission string) (bool, error)
}

// roleSource is the slice of the store the role-based resolver needs.
type roleSource interface {
	RoleOf(ctx context.Context, userID, spaceID int64) (*Role, error)
	HasRolePermission(ctx context.Context, roleID, permissionID int64) (bool, error)
}

// RolePermissionResolver is the canonical resolver: one role per (user,
// space), permissions reached through role_permissions rows.
type RolePermissionResolver struct {
	source  roleSource
	catalog *Catalog
	cache   *lru.LRU[string, bool]
}

// ResolverOption configures a RolePermissionResolver.
type ResolverOption func(*RolePermissionResolver)

// WithBindingCache fronts role-permission lookups with an expirable LRU.
// Bindings change only on explicit role edits, so a short TTL plus
// InvalidateRole on edit keeps the cache correct.
func WithBindingCache(size int, ttl time.Duration) ResolverOption {
	return func(r *RolePermissionResolver) {
		r.cache = lru.NewLRU[string, bool](size, nil, ttl)
	}
}

// NewRolePermissionResolver creates the canonical role-based resolver.
func NewRolePermissionResolver(source roleSource, catalog *Catalog, opts ...ResolverOption) *RolePermissionResolver {
	r := &RolePermissionResolver{
		source:  source,
		catalog: catalog,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// HasPermission resolves the user's role in the space, the permission name
// through the catalog, and the role-permission binding, in that order.
// Each step fails closed.
func (r *RolePermissionResolver) HasPermission(ctx context.Context, userID, spaceID int64, permission string) (bool, error) {
	role, err := r.source.RoleOf(ctx, userID, spaceID)
	if err != nil {
		return false, fmt.Errorf("failed to resolve role: %w", err)
	}
	if role == nil {
		return false, nil
	}

	permissionID, ok := r.catalog.Lookup(permission)
	if !ok {
		return false, nil
	}

	if r.cache != nil {
		key := bindingKey(role.ID, permissionID)
		if allowed, ok := r.cache.Get(key); ok {
			return allowed, nil
		}
	}

	allowed, err := r.source.HasRolePermission(ctx, role.ID, permissionID)
	if err != nil {
		return false, err
	}

	if r.cache != nil {
		r.cache.Add(bindingKey(role.ID, permissionID), allowed)
	}
	return allowed, nil
}

// InvalidateRole drops every cached binding for a role. Must be called
// after the role's permission set is edited.
func (r *RolePermissionResolver) InvalidateRole(roleID int64) {
	if r.cache == nil {
		return
	}
	for _, permissionID := range r.catalog.AllIDs() {
		r.cache.Remove(bindingKey(roleID, permissionID))
	}
}

func bindingKey(roleID, permissionID int64) string {
	return fmt.Sprintf("%d:%d", roleID, permissionID)
}

// grantSource is the slice of the store the grant-based resolver needs.
type grantSource interface {
	HasUserSpaceGrant(ctx context.Context, userID, spaceID, permissionID int64) (bool, error)
}

// GrantPermissionResolver answers permission checks from direct per-user
// grants, bypassing roles entirely. It exists for the schema variant that
// models user_space_permissions instead of role bindings; callers hold a
// PermissionResolver and never see the difference.
type GrantPermissionResolver struct {
	source  grantSource
	catalog *Catalog
}

// NewGrantPermissionResolver creates the per-user-grant resolver.
func NewGrantPermissionResolver(source grantSource, catalog *Catalog) *GrantPermissionResolver {
	return &GrantPermissionResolver{source: source, catalog: catalog}
}

// HasPermission checks for a direct grant. Unknown permission names fail
// closed, same as the role-based resolver.
func (r *GrantPermissionResolver) HasPermission(ctx context.Context, userID, spaceID int64, permission string) (bool, error) {
	permissionID, ok := r.catalog.Lookup(permission)
	if !ok {
		return false, nil
	}
	return r.source.HasUserSpaceGrant(ctx, userID, spaceID, permissionID)
}

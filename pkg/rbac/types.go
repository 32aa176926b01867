package rbac

import (
	"time"
)

// Seeded role names. Every space gets these three on creation; they carry
// is_custom = false and cannot be edited or deleted.
const (
	RoleOwner     = "owner"
	RoleModerator = "moderator"
	RoleMember    = "member"
)

// Permission is one row of the global catalog. Permissions are not scoped
// to a space and are immutable after seeding.
type Permission struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Role is a space-scoped bundle of permissions. The space reference is
// immutable once created.
type Role struct {
	ID        int64     `json:"id"`
	SpaceID   int64     `json:"space_id"`
	Name      string    `json:"name"`
	IsCustom  bool      `json:"is_custom"`
	IsDefault bool      `json:"is_default"`
	IsDeleted bool      `json:"is_deleted"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsSeeded reports whether the role is one of the three roles created with
// the space.
func (r Role) IsSeeded() bool {
	return !r.IsCustom
}

// RolePermission binds one role to one catalog permission. A role's
// effective permission set is plain set membership over these rows.
type RolePermission struct {
	RoleID       int64 `json:"role_id"`
	PermissionID int64 `json:"permission_id"`
}

// UserSpaceRole binds a user to the one role they hold in a space. Unique
// on (user, space).
type UserSpaceRole struct {
	ID      int64 `json:"id"`
	UserID  int64 `json:"user_id"`
	SpaceID int64 `json:"space_id"`
	RoleID  int64 `json:"role_id"`
}

// TopicRole is the visibility overlay: role-holders can see the bound
// topic. Unique on (topic, role).
type TopicRole struct {
	ID      int64 `json:"id"`
	TopicID int64 `json:"topic_id"`
	RoleID  int64 `json:"role_id"`
}

// UserSpaceGrant is a direct per-user permission grant inside a space,
// used by GrantPermissionResolver deployments that bypass roles.
type UserSpaceGrant struct {
	ID           int64 `json:"id"`
	UserID       int64 `json:"user_id"`
	SpaceID      int64 `json:"space_id"`
	PermissionID int64 `json:"permission_id"`
}

// UserTopicGrant is a direct per-user grant on a single topic. The
// visibility resolver consults read grants here when the UserGrants gate is
// enabled.
type UserTopicGrant struct {
	ID           int64  `json:"id"`
	UserID       int64  `json:"user_id"`
	TopicID      int64  `json:"topic_id"`
	Permission   string `json:"permission"`
}

// Topic access levels. A topic with no access level behaves as private:
// visibility comes from TopicRole bindings alone.
const (
	AccessPublic  = "public"
	AccessPrivate = "private"
)

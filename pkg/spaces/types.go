package spaces

import (
	"time"

	"github.com/quillnote/quill/pkg/rbac"
)

// Space is a top-level tenant container for topics and notes.
type Space struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	IsDeleted  bool      `json:"is_deleted"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Participant is a user together with the role they hold in a space.
type Participant struct {
	UserID   int64  `json:"user_id"`
	UserName string `json:"user_name"`
	RoleID   int64  `json:"role_id"`
	RoleName string `json:"role_name"`
}

// ParticipantGroup is one role with everyone who holds it.
type ParticipantGroup struct {
	RoleID   int64         `json:"role_id"`
	RoleName string        `json:"role_name"`
	Users    []Participant `json:"users"`
}

// TopicRef is a topic as it appears in the space detail view.
type TopicRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// SpaceDetail is the full space view: the space row, its roles with
// lower-cased permission names, and the topics the requesting user can
// see.
type SpaceDetail struct {
	Space
	Roles  []RoleDetail `json:"roles"`
	Topics []TopicRef   `json:"topics"`
}

// RoleDetail is a role expanded with its permission names and bound topics.
type RoleDetail struct {
	rbac.Role
	Permissions []string `json:"permissions"`
	TopicIDs    []int64  `json:"topic_ids"`
}

// CreateSpaceRequest creates a space.
type CreateSpaceRequest struct {
	Name string `json:"name"`
}

// UpdateSpaceRequest renames a space.
type UpdateSpaceRequest struct {
	Name string `json:"name"`
}

// AddParticipantRequest joins a user to a space with the default role.
type AddParticipantRequest struct {
	UserID int64 `json:"user_id"`
}

// AssignRoleRequest binds a role to a user in a space.
type AssignRoleRequest struct {
	UserID int64 `json:"user_id"`
	RoleID int64 `json:"role_id"`
}

// CreateRoleRequest creates a custom role.
type CreateRoleRequest struct {
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

// UpdateRoleRequest renames a custom role and/or replaces its permission
// set. A nil Permissions leaves bindings untouched; an empty non-nil slice
// clears them.
type UpdateRoleRequest struct {
	Name        *string  `json:"name,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// UpdateRoleTopicsRequest replaces the full set of topics a role can see.
type UpdateRoleTopicsRequest struct {
	TopicIDs []int64 `json:"topic_ids"`
}

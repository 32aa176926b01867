package spaces

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/quillnote/quill/pkg/audit"
	"github.com/quillnote/quill/pkg/observability"
	"github.com/quillnote/quill/pkg/rbac"
)

const maxNameLength = 100

// Service orchestrates space lifecycle and role administration. All
// authorization decisions go through the permission resolver; the service
// never inspects role names except for the owner/moderator hierarchy
// guard.
type Service struct {
	store      *Store
	rbacStore  *rbac.Store
	catalog    *rbac.Catalog
	resolver   rbac.PermissionResolver
	visibility *rbac.TopicVisibility
	recorder   audit.Recorder
	logger     *observability.Logger
}

// NewService creates the space service.
func NewService(
	store *Store,
	rbacStore *rbac.Store,
	catalog *rbac.Catalog,
	resolver rbac.PermissionResolver,
	visibility *rbac.TopicVisibility,
	recorder audit.Recorder,
	logger *observability.Logger,
) *Service {
	return &Service{
		store:      store,
		rbacStore:  rbacStore,
		catalog:    catalog,
		resolver:   resolver,
		visibility: visibility,
		recorder:   recorder,
		logger:     logger,
	}
}

func (s *Service) requirePermission(ctx context.Context, userID, spaceID int64, permission string) error {
	allowed, err := s.resolver.HasPermission(ctx, userID, spaceID, permission)
	if err != nil {
		return fmt.Errorf("failed to check %s: %w", permission, err)
	}
	if !allowed {
		return fmt.Errorf("%s required: %w", permission, rbac.ErrForbidden)
	}
	return nil
}

func (s *Service) requireParticipant(ctx context.Context, userID, spaceID int64) (*rbac.Role, error) {
	role, err := s.rbacStore.RoleOf(ctx, userID, spaceID)
	if err != nil {
		return nil, err
	}
	if role == nil {
		return nil, fmt.Errorf("user %d is not a participant of space %d: %w", userID, spaceID, rbac.ErrForbidden)
	}
	return role, nil
}

// The trail is best-effort: a failed write is logged, never surfaced.
func (s *Service) recordAudit(ctx context.Context, entry *audit.Entry) {
	if err := s.recorder.Record(ctx, entry); err != nil {
		s.logger.WithError(err).WithField("action", string(entry.Action)).Warn("failed to record audit entry")
	}
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("name is required: %w", rbac.ErrInvalidRequest)
	}
	if len(name) > maxNameLength {
		return "", fmt.Errorf("name exceeds %d characters: %w", maxNameLength, rbac.ErrInvalidRequest)
	}
	return name, nil
}

// CreateSpace creates a space with its seeded roles and binds the
// creator as owner.
func (s *Service) CreateSpace(ctx context.Context, actorID int64, req CreateSpaceRequest) (*Space, error) {
	name, err := validateName(req.Name)
	if err != nil {
		return nil, err
	}

	space, err := s.store.CreateSpace(ctx, name, actorID, s.catalog)
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, &audit.Entry{
		ActorID: actorID,
		SpaceID: &space.ID,
		Action:  audit.ActionSpaceCreate,
		Detail:  map[string]interface{}{"name": space.Name},
	})
	return space, nil
}

// GetSpace returns the full space view to one of its participants: the
// space row, every role expanded with lower-cased permission names, and
// the topics the actor can see.
func (s *Service) GetSpace(ctx context.Context, actorID, spaceID int64) (*SpaceDetail, error) {
	space, err := s.store.GetSpace(ctx, spaceID)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireParticipant(ctx, actorID, spaceID); err != nil {
		return nil, err
	}

	roles, err := s.roleDetails(ctx, spaceID)
	if err != nil {
		return nil, err
	}
	for i := range roles {
		for j, name := range roles[i].Permissions {
			roles[i].Permissions[j] = strings.ToLower(name)
		}
	}

	accessible, err := s.visibility.AccessibleTopics(ctx, actorID, spaceID)
	if err != nil {
		return nil, err
	}
	refs, err := s.store.ListTopicRefs(ctx, spaceID)
	if err != nil {
		return nil, err
	}
	topics := make([]TopicRef, 0, len(refs))
	for _, ref := range refs {
		if _, ok := accessible[ref.ID]; ok {
			topics = append(topics, ref)
		}
	}

	return &SpaceDetail{Space: *space, Roles: roles, Topics: topics}, nil
}

// ListSpaces lists the spaces the actor participates in.
func (s *Service) ListSpaces(ctx context.Context, actorID int64) ([]Space, error) {
	return s.store.ListSpacesForUser(ctx, actorID)
}

// UpdateSpace renames a space. Requires EDIT_SPACES.
func (s *Service) UpdateSpace(ctx context.Context, actorID, spaceID int64, req UpdateSpaceRequest) (*Space, error) {
	name, err := validateName(req.Name)
	if err != nil {
		return nil, err
	}
	if err := s.requirePermission(ctx, actorID, spaceID, rbac.PermEditSpaces); err != nil {
		return nil, err
	}
	if err := s.store.UpdateSpaceName(ctx, spaceID, name); err != nil {
		return nil, err
	}

	s.recordAudit(ctx, &audit.Entry{
		ActorID: actorID,
		SpaceID: &spaceID,
		Action:  audit.ActionSpaceUpdate,
		Detail:  map[string]interface{}{"name": name},
	})
	return s.store.GetSpace(ctx, spaceID)
}

// DeleteSpace soft-deletes a space. Requires DELETE_SPACES.
func (s *Service) DeleteSpace(ctx context.Context, actorID, spaceID int64) error {
	if err := s.requirePermission(ctx, actorID, spaceID, rbac.PermDeleteSpaces); err != nil {
		return err
	}
	if err := s.store.SoftDeleteSpace(ctx, spaceID); err != nil {
		return err
	}

	s.recordAudit(ctx, &audit.Entry{
		ActorID: actorID,
		SpaceID: &spaceID,
		Action:  audit.ActionSpaceDelete,
	})
	return nil
}

// RestoreSpace undoes a soft delete. Requires EDIT_SPACES, checked
// against the bindings that survive the delete.
func (s *Service) RestoreSpace(ctx context.Context, actorID, spaceID int64) error {
	if err := s.requirePermission(ctx, actorID, spaceID, rbac.PermEditSpaces); err != nil {
		return err
	}
	if err := s.store.RestoreSpace(ctx, spaceID); err != nil {
		return err
	}

	s.recordAudit(ctx, &audit.Entry{
		ActorID: actorID,
		SpaceID: &spaceID,
		Action:  audit.ActionSpaceRestore,
	})
	return nil
}

// AddParticipant joins a user to the space with the default member role.
// Requires CHANGE_USER_ROLES. A user who already holds any role in the
// space is a conflict; role changes go through AssignRole.
func (s *Service) AddParticipant(ctx context.Context, actorID, spaceID, userID int64) error {
	if err := s.requirePermission(ctx, actorID, spaceID, rbac.PermChangeUserRoles); err != nil {
		return err
	}

	exists, err := s.store.UserExists(ctx, userID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("user %d: %w", userID, rbac.ErrNotFound)
	}

	existing, err := s.rbacStore.RoleOf(ctx, userID, spaceID)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("user %d is already a participant: %w", userID, rbac.ErrConflict)
	}

	member, err := s.rbacStore.GetRoleByName(ctx, spaceID, rbac.RoleMember)
	if err != nil {
		return err
	}
	if err := s.rbacStore.UpsertUserRole(ctx, userID, spaceID, member.ID); err != nil {
		return err
	}

	s.recordAudit(ctx, &audit.Entry{
		ActorID:  actorID,
		TargetID: &userID,
		SpaceID:  &spaceID,
		Action:   audit.ActionParticipantAdd,
		Detail:   map[string]interface{}{"role_name": rbac.RoleMember},
	})
	return nil
}

// AssignRole binds a role to a user, replacing any existing binding. The
// guard chain runs in a fixed order and the first failure decides the
// error:
//
//  1. the actor needs CHANGE_USER_ROLES in the space,
//  2. the role must exist in the space,
//  3. the owner role is never assignable,
//  4. the moderator role is assignable only by an owner,
//  5. the target user must exist.
func (s *Service) AssignRole(ctx context.Context, actorID, spaceID int64, req AssignRoleRequest) error {
	if err := s.requirePermission(ctx, actorID, spaceID, rbac.PermChangeUserRoles); err != nil {
		return err
	}

	role, err := s.rbacStore.GetRoleInSpace(ctx, req.RoleID, spaceID)
	if err != nil {
		return err
	}

	if role.Name == rbac.RoleOwner {
		return fmt.Errorf("the owner role cannot be assigned: %w", rbac.ErrForbidden)
	}

	if role.Name == rbac.RoleModerator {
		actorRole, err := s.rbacStore.RoleOf(ctx, actorID, spaceID)
		if err != nil {
			return err
		}
		if actorRole == nil || actorRole.Name != rbac.RoleOwner {
			return fmt.Errorf("only the owner can assign the moderator role: %w", rbac.ErrForbidden)
		}
	}

	exists, err := s.store.UserExists(ctx, req.UserID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("user %d: %w", req.UserID, rbac.ErrNotFound)
	}

	if err := s.rbacStore.UpsertUserRole(ctx, req.UserID, spaceID, role.ID); err != nil {
		return err
	}

	s.recordAudit(ctx, &audit.Entry{
		ActorID:  actorID,
		TargetID: &req.UserID,
		SpaceID:  &spaceID,
		Action:   audit.ActionRoleAssign,
		Detail:   map[string]interface{}{"role_id": role.ID, "role_name": role.Name},
	})
	return nil
}

// RemoveRole unbinds a user from the space. The owner binding can never
// be removed this way, and unbinding a moderator takes an owner actor.
func (s *Service) RemoveRole(ctx context.Context, actorID, spaceID, userID int64) error {
	if err := s.requirePermission(ctx, actorID, spaceID, rbac.PermChangeUserRoles); err != nil {
		return err
	}

	targetRole, err := s.rbacStore.RoleOf(ctx, userID, spaceID)
	if err != nil {
		return err
	}
	if targetRole != nil {
		if targetRole.Name == rbac.RoleOwner {
			return fmt.Errorf("the owner cannot be removed: %w", rbac.ErrForbidden)
		}
		if targetRole.Name == rbac.RoleModerator {
			actorRole, err := s.rbacStore.RoleOf(ctx, actorID, spaceID)
			if err != nil {
				return err
			}
			if actorRole == nil || actorRole.Name != rbac.RoleOwner {
				return fmt.Errorf("only the owner can remove a moderator: %w", rbac.ErrForbidden)
			}
		}
	}

	if err := s.rbacStore.DeleteUserRole(ctx, userID, spaceID); err != nil {
		return err
	}

	s.recordAudit(ctx, &audit.Entry{
		ActorID:  actorID,
		TargetID: &userID,
		SpaceID:  &spaceID,
		Action:   audit.ActionRoleRemove,
	})
	return nil
}

// CreateRole creates a custom role. Requires CREATE_ROLES. Permission
// names outside the catalog are invalid; a name collision in the space is
// a conflict.
func (s *Service) CreateRole(ctx context.Context, actorID, spaceID int64, req CreateRoleRequest) (*rbac.Role, error) {
	name, err := validateName(req.Name)
	if err != nil {
		return nil, err
	}
	if err := s.requirePermission(ctx, actorID, spaceID, rbac.PermCreateRoles); err != nil {
		return nil, err
	}

	_, err = s.rbacStore.GetRoleByName(ctx, spaceID, name)
	if err == nil {
		return nil, fmt.Errorf("role %s already exists in space %d: %w", name, spaceID, rbac.ErrConflict)
	}
	if !errors.Is(err, rbac.ErrNotFound) {
		return nil, err
	}

	permissionIDs, err := s.catalog.IDs(req.Permissions)
	if err != nil {
		return nil, fmt.Errorf("unknown permission name: %w", rbac.ErrInvalidRequest)
	}

	role := &rbac.Role{SpaceID: spaceID, Name: name, IsCustom: true}
	if err := s.rbacStore.CreateRoleWithPermissions(ctx, role, permissionIDs); err != nil {
		return nil, err
	}

	s.recordAudit(ctx, &audit.Entry{
		ActorID: actorID,
		SpaceID: &spaceID,
		Action:  audit.ActionRoleCreate,
		Detail:  map[string]interface{}{"role_id": role.ID, "role_name": role.Name, "permissions": req.Permissions},
	})
	return role, nil
}

// UpdateRole renames a custom role and/or replaces its permission set.
// Requires EDIT_ROLES. Seeded roles are immutable.
func (s *Service) UpdateRole(ctx context.Context, actorID, spaceID, roleID int64, req UpdateRoleRequest) (*rbac.Role, error) {
	if err := s.requirePermission(ctx, actorID, spaceID, rbac.PermEditRoles); err != nil {
		return nil, err
	}

	role, err := s.rbacStore.GetRoleInSpace(ctx, roleID, spaceID)
	if err != nil {
		return nil, err
	}
	if role.IsSeeded() {
		return nil, fmt.Errorf("seeded role %s cannot be edited: %w", role.Name, rbac.ErrForbidden)
	}

	if req.Name != nil {
		name, err := validateName(*req.Name)
		if err != nil {
			return nil, err
		}
		if err := s.rbacStore.UpdateRoleName(ctx, roleID, name); err != nil {
			return nil, err
		}
	}

	if req.Permissions != nil {
		permissionIDs, err := s.catalog.IDs(req.Permissions)
		if err != nil {
			return nil, fmt.Errorf("unknown permission name: %w", rbac.ErrInvalidRequest)
		}
		if err := s.rbacStore.ReplaceRolePermissions(ctx, roleID, permissionIDs); err != nil {
			return nil, err
		}
		s.invalidateRole(roleID)
	}

	s.recordAudit(ctx, &audit.Entry{
		ActorID: actorID,
		SpaceID: &spaceID,
		Action:  audit.ActionRoleUpdate,
		Detail:  map[string]interface{}{"role_id": roleID},
	})
	return s.rbacStore.GetRole(ctx, roleID)
}

// UpdateRoleTopics replaces the set of topics visible to a role. Requires
// EDIT_ROLES, and the actor must hold the role being edited. Every topic
// must live in the space.
func (s *Service) UpdateRoleTopics(ctx context.Context, actorID, spaceID, roleID int64, req UpdateRoleTopicsRequest) error {
	if err := s.requirePermission(ctx, actorID, spaceID, rbac.PermEditRoles); err != nil {
		return err
	}

	if _, err := s.rbacStore.GetRoleInSpace(ctx, roleID, spaceID); err != nil {
		return err
	}

	actorRole, err := s.rbacStore.RoleOf(ctx, actorID, spaceID)
	if err != nil {
		return err
	}
	if actorRole == nil || actorRole.ID != roleID {
		return fmt.Errorf("topic visibility can only be edited for a role the actor holds: %w", rbac.ErrForbidden)
	}

	for _, topicID := range req.TopicIDs {
		topicSpaceID, _, err := s.rbacStore.TopicSpace(ctx, topicID)
		if err != nil {
			return err
		}
		if topicSpaceID != spaceID {
			return fmt.Errorf("topic %d is not in space %d: %w", topicID, spaceID, rbac.ErrInvalidRequest)
		}
	}

	if err := s.rbacStore.ReplaceTopicRoles(ctx, roleID, req.TopicIDs); err != nil {
		return err
	}

	s.recordAudit(ctx, &audit.Entry{
		ActorID: actorID,
		SpaceID: &spaceID,
		Action:  audit.ActionRoleTopicsUpdate,
		Detail:  map[string]interface{}{"role_id": roleID, "topic_ids": req.TopicIDs},
	})
	return nil
}

// ListRoles returns the roles of a space, expanded with permission names
// and bound topics. Any participant may list them.
func (s *Service) ListRoles(ctx context.Context, actorID, spaceID int64) ([]RoleDetail, error) {
	if _, err := s.requireParticipant(ctx, actorID, spaceID); err != nil {
		return nil, err
	}
	return s.roleDetails(ctx, spaceID)
}

// roleDetails expands every role of the space with its canonical permission
// names and bound topic ids.
func (s *Service) roleDetails(ctx context.Context, spaceID int64) ([]RoleDetail, error) {
	roles, err := s.rbacStore.ListRoles(ctx, spaceID)
	if err != nil {
		return nil, err
	}

	details := make([]RoleDetail, 0, len(roles))
	for _, role := range roles {
		permissionIDs, err := s.rbacStore.RolePermissionIDs(ctx, role.ID)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(permissionIDs))
		for _, pid := range permissionIDs {
			if name, ok := s.catalog.Name(pid); ok {
				names = append(names, name)
			}
		}

		topicIDs, err := s.rbacStore.TopicIDsForRole(ctx, role.ID)
		if err != nil {
			return nil, err
		}

		details = append(details, RoleDetail{Role: role, Permissions: names, TopicIDs: topicIDs})
	}
	return details, nil
}

// ListParticipants returns the space's users grouped by role. Any
// participant may list them.
func (s *Service) ListParticipants(ctx context.Context, actorID, spaceID int64) ([]ParticipantGroup, error) {
	if _, err := s.requireParticipant(ctx, actorID, spaceID); err != nil {
		return nil, err
	}

	participants, err := s.store.ListParticipants(ctx, spaceID)
	if err != nil {
		return nil, err
	}

	var groups []ParticipantGroup
	index := make(map[int64]int)
	for _, p := range participants {
		i, ok := index[p.RoleID]
		if !ok {
			groups = append(groups, ParticipantGroup{RoleID: p.RoleID, RoleName: p.RoleName})
			i = len(groups) - 1
			index[p.RoleID] = i
		}
		groups[i].Users = append(groups[i].Users, p)
	}
	return groups, nil
}

// GrantSpacePermission adds a direct per-user permission grant. Requires
// CHANGE_USER_ROLES.
func (s *Service) GrantSpacePermission(ctx context.Context, actorID, spaceID, userID int64, permission string) error {
	if err := s.requirePermission(ctx, actorID, spaceID, rbac.PermChangeUserRoles); err != nil {
		return err
	}

	permissionID, ok := s.catalog.Lookup(permission)
	if !ok {
		return fmt.Errorf("unknown permission name: %w", rbac.ErrInvalidRequest)
	}

	exists, err := s.store.UserExists(ctx, userID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("user %d: %w", userID, rbac.ErrNotFound)
	}

	if err := s.rbacStore.GrantUserSpacePermission(ctx, userID, spaceID, permissionID); err != nil {
		return err
	}

	s.recordAudit(ctx, &audit.Entry{
		ActorID:  actorID,
		TargetID: &userID,
		SpaceID:  &spaceID,
		Action:   audit.ActionGrantSpacePermission,
		Detail:   map[string]interface{}{"permission": permission},
	})
	return nil
}

func (s *Service) invalidateRole(roleID int64) {
	if inv, ok := s.resolver.(interface{ InvalidateRole(int64) }); ok {
		inv.InvalidateRole(roleID)
	}
}

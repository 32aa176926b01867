package rbac

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Store handles RBAC data persistence: roles, role-permission bindings,
// user-space-role bindings, topic bindings and direct grants.
type Store struct {
	db *sql.DB
}

// NewStore creates a new RBAC store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const roleColumns = `id, space_id, name, is_custom, is_default, is_deleted, created_at, updated_at`

func scanRole(scanner interface{ Scan(dest ...interface{}) error }) (*Role, error) {
	var role Role
	err := scanner.Scan(
		&role.ID,
		&role.SpaceID,
		&role.Name,
		&role.IsCustom,
		&role.IsDefault,
		&role.IsDeleted,
		&role.CreatedAt,
		&role.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &role, nil
}

// GetRole retrieves a role by ID.
func (s *Store) GetRole(ctx context.Context, roleID int64) (*Role, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE id = $1 AND is_deleted = FALSE`, roleID)

	role, err := scanRole(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("role %d: %w", roleID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

// GetRoleInSpace retrieves a role by ID, verifying it belongs to the space.
func (s *Store) GetRoleInSpace(ctx context.Context, roleID, spaceID int64) (*Role, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE id = $1 AND space_id = $2 AND is_deleted = FALSE`,
		roleID, spaceID)

	role, err := scanRole(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("role %d in space %d: %w", roleID, spaceID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

// GetRoleByName retrieves a role by name within a space.
func (s *Store) GetRoleByName(ctx context.Context, spaceID int64, name string) (*Role, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE space_id = $1 AND name = $2 AND is_deleted = FALSE`,
		spaceID, name)

	role, err := scanRole(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("role %s in space %d: %w", name, spaceID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role by name: %w", err)
	}
	return role, nil
}

// ListRoles lists all live roles in a space.
func (s *Store) ListRoles(ctx context.Context, spaceID int64) ([]Role, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE space_id = $1 AND is_deleted = FALSE ORDER BY id ASC`,
		spaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, *role)
	}
	return roles, rows.Err()
}

// RoleOf returns the role the user holds in the space, or (nil, nil) when
// the user holds none. Absence is a normal terminal result, not an error.
func (s *Store) RoleOf(ctx context.Context, userID, spaceID int64) (*Role, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT r.id, r.space_id, r.name, r.is_custom, r.is_default, r.is_deleted, r.created_at, r.updated_at
		FROM roles r
		JOIN user_space_roles usr ON usr.role_id = r.id
		WHERE usr.user_id = $1 AND usr.space_id = $2
	`, userID, spaceID)

	role, err := scanRole(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve role: %w", err)
	}
	return role, nil
}

// RolesOf returns every role the user holds in the space. The canonical
// schema yields at most one row; schema variants may yield several.
func (s *Store) RolesOf(ctx context.Context, userID, spaceID int64) ([]Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.space_id, r.name, r.is_custom, r.is_default, r.is_deleted, r.created_at, r.updated_at
		FROM roles r
		JOIN user_space_roles usr ON usr.role_id = r.id
		WHERE usr.user_id = $1 AND usr.space_id = $2
		ORDER BY r.id ASC
	`, userID, spaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, *role)
	}
	return roles, rows.Err()
}

// HasRolePermission reports whether a role_permissions row binds the role
// to the permission.
func (s *Store) HasRolePermission(ctx context.Context, roleID, permissionID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM role_permissions WHERE role_id = $1 AND permission_id = $2)`,
		roleID, permissionID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check role permission: %w", err)
	}
	return exists, nil
}

// RolePermissionIDs returns the permission ids bound to a role.
func (s *Store) RolePermissionIDs(ctx context.Context, roleID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT permission_id FROM role_permissions WHERE role_id = $1 ORDER BY permission_id ASC`,
		roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list role permissions: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan permission id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpsertUserRole assigns a role to a user in a space, replacing any
// existing binding. Assignment is idempotent at the data level.
func (s *Store) UpsertUserRole(ctx context.Context, userID, spaceID, roleID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_space_roles (user_id, space_id, role_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, space_id) DO UPDATE SET role_id = excluded.role_id
	`, userID, spaceID, roleID)
	if err != nil {
		return fmt.Errorf("failed to upsert user role: %w", err)
	}
	return nil
}

// DeleteUserRole removes the user's binding in the space. ErrNotFound when
// no binding exists.
func (s *Store) DeleteUserRole(ctx context.Context, userID, spaceID int64) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM user_space_roles WHERE user_id = $1 AND space_id = $2`,
		userID, spaceID)
	if err != nil {
		return fmt.Errorf("failed to delete user role: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("user %d has no role in space %d: %w", userID, spaceID, ErrNotFound)
	}
	return nil
}

// CreateRoleWithPermissions creates a role and its permission bindings as
// one transaction. A partial role with no bindings is never observable.
func (s *Store) CreateRoleWithPermissions(ctx context.Context, role *Role, permissionIDs []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO roles (space_id, name, is_custom, is_default)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`, role.SpaceID, role.Name, role.IsCustom, role.IsDefault).
		Scan(&role.ID, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create role: %w", err)
	}

	for _, pid := range permissionIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)`,
			role.ID, pid,
		); err != nil {
			return fmt.Errorf("failed to bind permission %d: %w", pid, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit role creation: %w", err)
	}
	return nil
}

// UpdateRoleName renames a role.
func (s *Store) UpdateRoleName(ctx context.Context, roleID int64, name string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE roles SET name = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2`,
		name, roleID)
	if err != nil {
		return fmt.Errorf("failed to rename role: %w", err)
	}
	return nil
}

// ReplaceRolePermissions swaps the role's entire permission set in one
// transaction, so a role is never observable with a half-replaced set.
func (s *Store) ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM role_permissions WHERE role_id = $1`, roleID,
	); err != nil {
		return fmt.Errorf("failed to clear role permissions: %w", err)
	}

	for _, pid := range permissionIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)`,
			roleID, pid,
		); err != nil {
			return fmt.Errorf("failed to bind permission %d: %w", pid, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit permission replacement: %w", err)
	}
	return nil
}

// TopicIDsForRoles returns the set of topic ids reachable through
// topic_roles for any of the given roles. Deleted topics are excluded.
func (s *Store) TopicIDsForRoles(ctx context.Context, roleIDs []int64) (map[int64]struct{}, error) {
	topicSet := make(map[int64]struct{})
	if len(roleIDs) == 0 {
		return topicSet, nil
	}

	placeholders := make([]string, len(roleIDs))
	args := make([]interface{}, len(roleIDs))
	for i, id := range roleIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	query := fmt.Sprintf(`
		SELECT DISTINCT tr.topic_id
		FROM topic_roles tr
		JOIN topics t ON t.id = tr.topic_id
		WHERE tr.role_id IN (%s) AND t.is_deleted = FALSE
	`, strings.Join(placeholders, ", "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve topic bindings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan topic id: %w", err)
		}
		topicSet[id] = struct{}{}
	}
	return topicSet, rows.Err()
}

// TopicIDsForRole returns the topic ids bound to a single role, ordered.
func (s *Store) TopicIDsForRole(ctx context.Context, roleID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT topic_id FROM topic_roles WHERE role_id = $1 ORDER BY topic_id ASC`, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list topic bindings: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan topic id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// BindTopicRole grants visibility on a topic to a role. Idempotent.
func (s *Store) BindTopicRole(ctx context.Context, topicID, roleID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO topic_roles (topic_id, role_id)
		VALUES ($1, $2)
		ON CONFLICT (topic_id, role_id) DO NOTHING
	`, topicID, roleID)
	if err != nil {
		return fmt.Errorf("failed to bind topic to role: %w", err)
	}
	return nil
}

// ReplaceTopicRoles swaps the full set of topics a role can see, in one
// transaction.
func (s *Store) ReplaceTopicRoles(ctx context.Context, roleID int64, topicIDs []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM topic_roles WHERE role_id = $1`, roleID,
	); err != nil {
		return fmt.Errorf("failed to clear topic bindings: %w", err)
	}

	for _, tid := range topicIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO topic_roles (topic_id, role_id) VALUES ($1, $2)`,
			tid, roleID,
		); err != nil {
			return fmt.Errorf("failed to bind topic %d: %w", tid, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit topic binding replacement: %w", err)
	}
	return nil
}

// TopicSpace returns the owning space of a live topic along with its
// access level ("" when the topic carries none).
func (s *Store) TopicSpace(ctx context.Context, topicID int64) (int64, string, error) {
	var spaceID int64
	var accessLevel sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT space_id, access_level FROM topics WHERE id = $1 AND is_deleted = FALSE`,
		topicID,
	).Scan(&spaceID, &accessLevel)
	if err == sql.ErrNoRows {
		return 0, "", fmt.Errorf("topic %d: %w", topicID, ErrNotFound)
	}
	if err != nil {
		return 0, "", fmt.Errorf("failed to get topic: %w", err)
	}
	return spaceID, accessLevel.String, nil
}

// PublicTopicIDs returns every live topic in the space whose access level
// marks it visible to all participants.
func (s *Store) PublicTopicIDs(ctx context.Context, spaceID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM topics
		WHERE space_id = $1 AND is_deleted = FALSE AND access_level = $2
	`, spaceID, AccessPublic)
	if err != nil {
		return nil, fmt.Errorf("failed to list public topics: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan topic id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// HasUserSpaceGrant reports a direct per-user permission grant in a space.
func (s *Store) HasUserSpaceGrant(ctx context.Context, userID, spaceID, permissionID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM user_space_permissions WHERE user_id = $1 AND space_id = $2 AND permission_id = $3)`,
		userID, spaceID, permissionID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user grant: %w", err)
	}
	return exists, nil
}

// HasUserTopicReadGrant reports a direct per-user read grant on a topic.
func (s *Store) HasUserTopicReadGrant(ctx context.Context, userID, topicID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM user_topic_permissions WHERE user_id = $1 AND topic_id = $2 AND permission = $3)`,
		userID, topicID, "read",
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check topic grant: %w", err)
	}
	return exists, nil
}

// GrantUserSpacePermission adds a direct per-user grant. Idempotent.
func (s *Store) GrantUserSpacePermission(ctx context.Context, userID, spaceID, permissionID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_space_permissions (user_id, space_id, permission_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, space_id, permission_id) DO NOTHING
	`, userID, spaceID, permissionID)
	if err != nil {
		return fmt.Errorf("failed to grant permission: %w", err)
	}
	return nil
}

// GrantUserTopicRead adds a direct per-user read grant on a topic.
// Idempotent.
func (s *Store) GrantUserTopicRead(ctx context.Context, userID, topicID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_topic_permissions (user_id, topic_id, permission)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, topic_id, permission) DO NOTHING
	`, userID, topicID, "read")
	if err != nil {
		return fmt.Errorf("failed to grant topic read: %w", err)
	}
	return nil
}

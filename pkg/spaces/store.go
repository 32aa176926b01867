package spaces

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/quillnote/quill/pkg/rbac"
)

// Store handles space persistence.
type Store struct {
	db *sql.DB
}

// NewStore creates a new space store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func ownerPermissionNames() []string {
	return rbac.CatalogNames()
}

func moderatorPermissionNames() []string {
	names := make([]string, 0, len(rbac.CatalogNames()))
	for _, name := range rbac.CatalogNames() {
		if name == rbac.PermEditSpaces || name == rbac.PermDeleteSpaces {
			continue
		}
		names = append(names, name)
	}
	return names
}

func memberPermissionNames() []string {
	return []string{
		rbac.PermCreateNotes,
		rbac.PermEditNotes,
		rbac.PermDeleteNotes,
		rbac.PermReadNotes,
	}
}

// CreateSpace creates a space and seeds it in one transaction: the three
// default roles with their permission bindings, and the creator bound to
// the owner role.
func (s *Store) CreateSpace(ctx context.Context, name string, ownerID int64, catalog *rbac.Catalog) (*Space, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	space := &Space{Name: name}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO spaces (name) VALUES ($1)
		RETURNING id, is_deleted, created_at, modified_at
	`, name).Scan(&space.ID, &space.IsDeleted, &space.CreatedAt, &space.ModifiedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create space: %w", err)
	}

	seeds := []struct {
		name        string
		isDefault   bool
		permissions []string
	}{
		{rbac.RoleOwner, false, ownerPermissionNames()},
		{rbac.RoleModerator, false, moderatorPermissionNames()},
		{rbac.RoleMember, true, memberPermissionNames()},
	}

	var ownerRoleID int64
	for _, seed := range seeds {
		var roleID int64
		err = tx.QueryRowContext(ctx, `
			INSERT INTO roles (space_id, name, is_custom, is_default)
			VALUES ($1, $2, FALSE, $3)
			RETURNING id
		`, space.ID, seed.name, seed.isDefault).Scan(&roleID)
		if err != nil {
			return nil, fmt.Errorf("failed to seed role %s: %w", seed.name, err)
		}

		permissionIDs, err := catalog.IDs(seed.permissions)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve permissions for %s: %w", seed.name, err)
		}
		for _, pid := range permissionIDs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)`,
				roleID, pid,
			); err != nil {
				return nil, fmt.Errorf("failed to bind permission to %s: %w", seed.name, err)
			}
		}

		if seed.name == rbac.RoleOwner {
			ownerRoleID = roleID
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO user_space_roles (user_id, space_id, role_id) VALUES ($1, $2, $3)`,
		ownerID, space.ID, ownerRoleID,
	); err != nil {
		return nil, fmt.Errorf("failed to bind creator as owner: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit space creation: %w", err)
	}
	return space, nil
}

// GetSpace retrieves a live space by ID.
func (s *Store) GetSpace(ctx context.Context, spaceID int64) (*Space, error) {
	space := &Space{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, is_deleted, created_at, modified_at
		FROM spaces WHERE id = $1 AND is_deleted = FALSE
	`, spaceID).Scan(&space.ID, &space.Name, &space.IsDeleted, &space.CreatedAt, &space.ModifiedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("space %d: %w", spaceID, rbac.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get space: %w", err)
	}
	return space, nil
}

// UpdateSpaceName renames a live space.
func (s *Store) UpdateSpaceName(ctx context.Context, spaceID int64, name string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE spaces SET name = $1, modified_at = CURRENT_TIMESTAMP
		WHERE id = $2 AND is_deleted = FALSE
	`, name, spaceID)
	if err != nil {
		return fmt.Errorf("failed to rename space: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("space %d: %w", spaceID, rbac.ErrNotFound)
	}
	return nil
}

// SoftDeleteSpace marks a space deleted. Content rows stay in place.
func (s *Store) SoftDeleteSpace(ctx context.Context, spaceID int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE spaces SET is_deleted = TRUE, modified_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND is_deleted = FALSE
	`, spaceID)
	if err != nil {
		return fmt.Errorf("failed to delete space: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("space %d: %w", spaceID, rbac.ErrNotFound)
	}
	return nil
}

// RestoreSpace undoes a soft delete.
func (s *Store) RestoreSpace(ctx context.Context, spaceID int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE spaces SET is_deleted = FALSE, modified_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND is_deleted = TRUE
	`, spaceID)
	if err != nil {
		return fmt.Errorf("failed to restore space: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("space %d: %w", spaceID, rbac.ErrNotFound)
	}
	return nil
}

// ListSpacesForUser lists every live space the user participates in.
func (s *Store) ListSpacesForUser(ctx context.Context, userID int64) ([]Space, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sp.id, sp.name, sp.is_deleted, sp.created_at, sp.modified_at
		FROM spaces sp
		JOIN user_space_roles usr ON usr.space_id = sp.id
		WHERE usr.user_id = $1 AND sp.is_deleted = FALSE
		ORDER BY sp.created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list spaces: %w", err)
	}
	defer rows.Close()

	var result []Space
	for rows.Next() {
		var space Space
		if err := rows.Scan(&space.ID, &space.Name, &space.IsDeleted, &space.CreatedAt, &space.ModifiedAt); err != nil {
			return nil, fmt.Errorf("failed to scan space: %w", err)
		}
		result = append(result, space)
	}
	return result, rows.Err()
}

// ListParticipants lists every user bound in the space with their role.
func (s *Store) ListParticipants(ctx context.Context, spaceID int64) ([]Participant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.name, r.id, r.name
		FROM user_space_roles usr
		JOIN users u ON u.id = usr.user_id
		JOIN roles r ON r.id = usr.role_id
		WHERE usr.space_id = $1
		ORDER BY r.id ASC, u.name ASC
	`, spaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	var participants []Participant
	for rows.Next() {
		var p Participant
		if err := rows.Scan(&p.UserID, &p.UserName, &p.RoleID, &p.RoleName); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

// ListTopicRefs lists the live topics of a space as id/name pairs.
func (s *Store) ListTopicRefs(ctx context.Context, spaceID int64) ([]TopicRef, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name FROM topics
		WHERE space_id = $1 AND is_deleted = FALSE
		ORDER BY id ASC
	`, spaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}
	defer rows.Close()

	var refs []TopicRef
	for rows.Next() {
		var ref TopicRef
		if err := rows.Scan(&ref.ID, &ref.Name); err != nil {
			return nil, fmt.Errorf("failed to scan topic: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// UserExists reports whether a user row exists.
func (s *Store) UserExists(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user: %w", err)
	}
	return exists, nil
}

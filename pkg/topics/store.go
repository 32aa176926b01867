package topics

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/quillnote/quill/pkg/rbac"
)

// Store handles topic persistence.
type Store struct {
	db *sql.DB
}

// NewStore creates a new topic store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const topicColumns = `id, space_id, name, access_level, is_deleted, created_at, modified_at`

func scanTopic(scanner interface{ Scan(dest ...interface{}) error }) (*Topic, error) {
	var topic Topic
	var accessLevel sql.NullString
	err := scanner.Scan(
		&topic.ID,
		&topic.SpaceID,
		&topic.Name,
		&accessLevel,
		&topic.IsDeleted,
		&topic.CreatedAt,
		&topic.ModifiedAt,
	)
	if err != nil {
		return nil, err
	}
	topic.AccessLevel = accessLevel.String
	return &topic, nil
}

// CreateTopic creates a topic and its initial role bindings in one
// transaction.
func (s *Store) CreateTopic(ctx context.Context, spaceID int64, name, accessLevel string, bindRoleIDs []int64) (*Topic, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	topic := &Topic{SpaceID: spaceID, Name: name, AccessLevel: accessLevel}
	var level interface{}
	if accessLevel != "" {
		level = accessLevel
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO topics (space_id, name, access_level)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, modified_at
	`, spaceID, name, level).Scan(&topic.ID, &topic.CreatedAt, &topic.ModifiedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create topic: %w", err)
	}

	for _, roleID := range bindRoleIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO topic_roles (topic_id, role_id)
			VALUES ($1, $2)
			ON CONFLICT (topic_id, role_id) DO NOTHING
		`, topic.ID, roleID); err != nil {
			return nil, fmt.Errorf("failed to bind topic to role %d: %w", roleID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit topic creation: %w", err)
	}
	return topic, nil
}

// GetTopic retrieves a live topic by ID.
func (s *Store) GetTopic(ctx context.Context, topicID int64) (*Topic, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+topicColumns+` FROM topics WHERE id = $1 AND is_deleted = FALSE`, topicID)

	topic, err := scanTopic(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("topic %d: %w", topicID, rbac.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get topic: %w", err)
	}
	return topic, nil
}

// ListTopics lists all live topics of a space, oldest first.
func (s *Store) ListTopics(ctx context.Context, spaceID int64) ([]Topic, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+topicColumns+` FROM topics WHERE space_id = $1 AND is_deleted = FALSE ORDER BY id ASC`,
		spaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}
	defer rows.Close()

	var topics []Topic
	for rows.Next() {
		topic, err := scanTopic(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan topic: %w", err)
		}
		topics = append(topics, *topic)
	}
	return topics, rows.Err()
}

// UpdateTopic renames a topic and/or changes its access level.
func (s *Store) UpdateTopic(ctx context.Context, topicID int64, name *string, accessLevel *string) error {
	if name == nil && accessLevel == nil {
		return nil
	}

	setClauses := "modified_at = CURRENT_TIMESTAMP"
	args := []interface{}{}
	argPos := 1

	if name != nil {
		setClauses += fmt.Sprintf(", name = $%d", argPos)
		args = append(args, *name)
		argPos++
	}
	if accessLevel != nil {
		var level interface{}
		if *accessLevel != "" {
			level = *accessLevel
		}
		setClauses += fmt.Sprintf(", access_level = $%d", argPos)
		args = append(args, level)
		argPos++
	}

	args = append(args, topicID)
	query := fmt.Sprintf(
		`UPDATE topics SET %s WHERE id = $%d AND is_deleted = FALSE`, setClauses, argPos)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update topic: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("topic %d: %w", topicID, rbac.ErrNotFound)
	}
	return nil
}

// SoftDeleteTopic marks a topic deleted. Notes under it stay in place
// but drop out of every accessible set.
func (s *Store) SoftDeleteTopic(ctx context.Context, topicID int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE topics SET is_deleted = TRUE, modified_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND is_deleted = FALSE
	`, topicID)
	if err != nil {
		return fmt.Errorf("failed to delete topic: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("topic %d: %w", topicID, rbac.ErrNotFound)
	}
	return nil
}

// RestoreTopic undoes a soft delete. The space is part of the match so
// a topic in another space reads as not found.
func (s *Store) RestoreTopic(ctx context.Context, topicID, spaceID int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE topics SET is_deleted = FALSE, modified_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND space_id = $2 AND is_deleted = TRUE
	`, topicID, spaceID)
	if err != nil {
		return fmt.Errorf("failed to restore topic: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("topic %d: %w", topicID, rbac.ErrNotFound)
	}
	return nil
}

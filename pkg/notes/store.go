package notes

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/quillnote/quill/pkg/rbac"
)

// Store handles note, tag and note-tag persistence.
type Store struct {
	db *sql.DB
}

// NewStore creates a new note store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const noteColumns = `id, text, user_id, topic_id, parent_id, is_deleted, created_at, modified_at`

func scanNote(scanner interface{ Scan(dest ...interface{}) error }) (*Note, error) {
	var note Note
	var parentID sql.NullInt64
	err := scanner.Scan(
		&note.ID,
		&note.Text,
		&note.UserID,
		&note.TopicID,
		&parentID,
		&note.IsDeleted,
		&note.CreatedAt,
		&note.ModifiedAt,
	)
	if err != nil {
		return nil, err
	}
	if parentID.Valid {
		note.ParentID = &parentID.Int64
	}
	return &note, nil
}

// CreateNote inserts a note and its tag bindings in one transaction.
// Tags are upserted by name.
func (s *Store) CreateNote(ctx context.Context, note *Note, tags []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var parent interface{}
	if note.ParentID != nil {
		parent = *note.ParentID
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO notes (text, user_id, topic_id, parent_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, modified_at
	`, note.Text, note.UserID, note.TopicID, parent).Scan(&note.ID, &note.CreatedAt, &note.ModifiedAt)
	if err != nil {
		return fmt.Errorf("failed to create note: %w", err)
	}

	if err := bindTags(ctx, tx, note.ID, tags); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit note creation: %w", err)
	}
	return nil
}

func bindTags(ctx context.Context, tx *sql.Tx, noteID int64, tags []string) error {
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tags (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, tag,
		); err != nil {
			return fmt.Errorf("failed to upsert tag %s: %w", tag, err)
		}

		var tagID int64
		if err := tx.QueryRowContext(ctx,
			`SELECT id FROM tags WHERE name = $1`, tag,
		).Scan(&tagID); err != nil {
			return fmt.Errorf("failed to resolve tag %s: %w", tag, err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO note_tags (note_id, tag_id) VALUES ($1, $2)
			ON CONFLICT (note_id, tag_id) DO NOTHING
		`, noteID, tagID); err != nil {
			return fmt.Errorf("failed to bind tag %s: %w", tag, err)
		}
	}
	return nil
}

// GetNote retrieves a live note by ID.
func (s *Store) GetNote(ctx context.Context, noteID int64) (*Note, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE id = $1 AND is_deleted = FALSE`, noteID)

	note, err := scanNote(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("note %d: %w", noteID, rbac.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get note: %w", err)
	}
	return note, nil
}

// GetNoteAny retrieves a note regardless of its deletion flag. Used by
// restore, which must reach the rows GetNote hides.
func (s *Store) GetNoteAny(ctx context.Context, noteID int64) (*Note, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE id = $1`, noteID)

	note, err := scanNote(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("note %d: %w", noteID, rbac.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get note: %w", err)
	}
	return note, nil
}

// UpdateNoteText replaces a live note's text.
func (s *Store) UpdateNoteText(ctx context.Context, noteID int64, text string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notes SET text = $1, modified_at = CURRENT_TIMESTAMP
		WHERE id = $2 AND is_deleted = FALSE
	`, text, noteID)
	if err != nil {
		return fmt.Errorf("failed to update note: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("note %d: %w", noteID, rbac.ErrNotFound)
	}
	return nil
}

// ReplaceNoteTags swaps a note's tag set in one transaction.
func (s *Store) ReplaceNoteTags(ctx context.Context, noteID int64, tags []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM note_tags WHERE note_id = $1`, noteID,
	); err != nil {
		return fmt.Errorf("failed to clear note tags: %w", err)
	}

	if err := bindTags(ctx, tx, noteID, tags); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tag replacement: %w", err)
	}
	return nil
}

// SoftDeleteNote marks a note deleted. Replies stay in place.
func (s *Store) SoftDeleteNote(ctx context.Context, noteID int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notes SET is_deleted = TRUE, modified_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND is_deleted = FALSE
	`, noteID)
	if err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("note %d: %w", noteID, rbac.ErrNotFound)
	}
	return nil
}

// RestoreNote undoes a soft delete.
func (s *Store) RestoreNote(ctx context.Context, noteID int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notes SET is_deleted = FALSE, modified_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND is_deleted = TRUE
	`, noteID)
	if err != nil {
		return fmt.Errorf("failed to restore note: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("note %d: %w", noteID, rbac.ErrNotFound)
	}
	return nil
}

// listQuery is the fully-resolved shape of a listing after the planner
// has pinned the topic scope. topicIDs is never empty here; the planner
// short-circuits the empty set before building a query.
type listQuery struct {
	topicIDs      []int64
	parentID      *int64
	topLevelOnly  bool
	tags          []string
	createdBefore *time.Time
	limit         int
	offset        int
}

func (q *listQuery) build(selectClause string) (string, []interface{}) {
	var where []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	placeholders := make([]string, len(q.topicIDs))
	for i, id := range q.topicIDs {
		placeholders[i] = arg(id)
	}
	where = append(where, fmt.Sprintf("n.topic_id IN (%s)", strings.Join(placeholders, ", ")))
	where = append(where, "n.is_deleted = FALSE")

	if q.topLevelOnly {
		where = append(where, "n.parent_id IS NULL")
	} else if q.parentID != nil {
		where = append(where, fmt.Sprintf("n.parent_id = %s", arg(*q.parentID)))
	}

	if len(q.tags) > 0 {
		tagPlaceholders := make([]string, len(q.tags))
		for i, tag := range q.tags {
			tagPlaceholders[i] = arg(tag)
		}
		where = append(where, fmt.Sprintf(`n.id IN (
			SELECT nt.note_id FROM note_tags nt
			JOIN tags tg ON tg.id = nt.tag_id
			WHERE tg.name IN (%s)
		)`, strings.Join(tagPlaceholders, ", ")))
	}

	if q.createdBefore != nil {
		where = append(where, fmt.Sprintf("n.created_at < %s", arg(*q.createdBefore)))
	}

	return fmt.Sprintf("SELECT %s FROM notes n WHERE %s", selectClause, strings.Join(where, " AND ")), args
}

// ListNotes runs the resolved listing: one count query for the total and
// one page query, newest first.
func (s *Store) ListNotes(ctx context.Context, q listQuery) ([]Note, int64, error) {
	countQuery, countArgs := q.build("COUNT(*)")
	var total int64
	if err := s.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count notes: %w", err)
	}
	if total == 0 {
		return nil, 0, nil
	}

	pageQuery, pageArgs := q.build("n." + strings.ReplaceAll(noteColumns, ", ", ", n."))
	pageArgs = append(pageArgs, q.limit, q.offset)
	pageQuery += fmt.Sprintf(" ORDER BY n.created_at DESC, n.id DESC LIMIT $%d OFFSET $%d",
		len(pageArgs)-1, len(pageArgs))

	rows, err := s.db.QueryContext(ctx, pageQuery, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	var result []Note
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan note: %w", err)
		}
		result = append(result, *note)
	}
	return result, total, rows.Err()
}

func inClause(ids []int64, args *[]interface{}) string {
	placeholders := make([]string, len(ids))
	for i, id := range ids {
		*args = append(*args, id)
		placeholders[i] = fmt.Sprintf("$%d", len(*args))
	}
	return strings.Join(placeholders, ", ")
}

// TagsForNotes resolves tag names for a batch of notes in one query.
func (s *Store) TagsForNotes(ctx context.Context, noteIDs []int64) (map[int64][]string, error) {
	result := make(map[int64][]string)
	if len(noteIDs) == 0 {
		return result, nil
	}

	var args []interface{}
	query := fmt.Sprintf(`
		SELECT nt.note_id, tg.name
		FROM note_tags nt
		JOIN tags tg ON tg.id = nt.tag_id
		WHERE nt.note_id IN (%s)
		ORDER BY tg.name ASC
	`, inClause(noteIDs, &args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve note tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var noteID int64
		var name string
		if err := rows.Scan(&noteID, &name); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		result[noteID] = append(result[noteID], name)
	}
	return result, rows.Err()
}

// ParentTexts resolves the full text of a batch of parent notes in one
// query. Deleted parents still resolve: a reply keeps its context.
func (s *Store) ParentTexts(ctx context.Context, parentIDs []int64) (map[int64]string, error) {
	result := make(map[int64]string)
	if len(parentIDs) == 0 {
		return result, nil
	}

	var args []interface{}
	query := fmt.Sprintf(
		`SELECT id, text FROM notes WHERE id IN (%s)`, inClause(parentIDs, &args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve parent texts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var text string
		if err := rows.Scan(&id, &text); err != nil {
			return nil, fmt.Errorf("failed to scan parent text: %w", err)
		}
		result[id] = text
	}
	return result, rows.Err()
}

// ReplyCounts resolves direct live reply counts for a batch of notes in
// one query.
func (s *Store) ReplyCounts(ctx context.Context, noteIDs []int64) (map[int64]int64, error) {
	result := make(map[int64]int64)
	if len(noteIDs) == 0 {
		return result, nil
	}

	var args []interface{}
	query := fmt.Sprintf(`
		SELECT parent_id, COUNT(*)
		FROM notes
		WHERE parent_id IN (%s) AND is_deleted = FALSE
		GROUP BY parent_id
	`, inClause(noteIDs, &args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve reply counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var parentID, count int64
		if err := rows.Scan(&parentID, &count); err != nil {
			return nil, fmt.Errorf("failed to scan reply count: %w", err)
		}
		result[parentID] = count
	}
	return result, rows.Err()
}

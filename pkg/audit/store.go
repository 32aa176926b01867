package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DBRecorder writes audit entries to the audit_log table.
type DBRecorder struct {
	db *sql.DB
}

// NewDBRecorder creates a database-backed recorder.
func NewDBRecorder(db *sql.DB) (*DBRecorder, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &DBRecorder{db: db}, nil
}

// Record inserts one entry, assigning a UUID and timestamp when unset.
func (r *DBRecorder) Record(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var detailJSON []byte
	if entry.Detail != nil {
		var err error
		detailJSON, err = json.Marshal(entry.Detail)
		if err != nil {
			return fmt.Errorf("failed to marshal audit detail: %w", err)
		}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, actor_id, target_id, space_id, action, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entry.ID, entry.ActorID, entry.TargetID, entry.SpaceID, string(entry.Action), detailJSON, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}

// Close is a no-op; the recorder does not own the connection.
func (r *DBRecorder) Close() error { return nil }

// PurgeOlderThan deletes entries created before the cutoff and returns
// how many were removed.
func (r *DBRecorder) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM audit_log WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge audit entries: %w", err)
	}
	purged, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged audit entries: %w", err)
	}
	return purged, nil
}

// ListBySpace returns the trail for one space, newest first.
func (r *DBRecorder) ListBySpace(ctx context.Context, spaceID int64, limit, offset int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, actor_id, target_id, space_id, action, detail, created_at
		FROM audit_log
		WHERE space_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, spaceID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var action string
		var detailJSON []byte
		if err := rows.Scan(
			&entry.ID, &entry.ActorID, &entry.TargetID, &entry.SpaceID,
			&action, &detailJSON, &entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entry.Action = Action(action)
		if len(detailJSON) > 0 {
			if err := json.Unmarshal(detailJSON, &entry.Detail); err != nil {
				return nil, fmt.Errorf("failed to unmarshal audit detail: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration is one versioned schema change.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations returns the full Quill schema in apply order.
func Migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(100) NOT NULL UNIQUE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					modified_at TIMESTAMP NOT NULL DEFAULT NOW()
				);
			`,
		},
		{
			Version:     2,
			Description: "Create spaces table",
			SQL: `
				CREATE TABLE IF NOT EXISTS spaces (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(100) NOT NULL,
					is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					modified_at TIMESTAMP NOT NULL DEFAULT NOW()
				);
			`,
		},
		{
			Version:     3,
			Description: "Create permissions catalog",
			SQL: `
				CREATE TABLE IF NOT EXISTS permissions (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(100) NOT NULL UNIQUE
				);
			`,
		},
		{
			Version:     4,
			Description: "Create roles and role_permissions tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS roles (
					id BIGSERIAL PRIMARY KEY,
					space_id BIGINT NOT NULL REFERENCES spaces(id),
					name VARCHAR(100) NOT NULL,
					is_custom BOOLEAN NOT NULL DEFAULT TRUE,
					is_default BOOLEAN NOT NULL DEFAULT FALSE,
					is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(space_id, name)
				);

				CREATE INDEX idx_roles_space_id ON roles(space_id);

				CREATE TABLE IF NOT EXISTS role_permissions (
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					permission_id BIGINT NOT NULL REFERENCES permissions(id),
					PRIMARY KEY (role_id, permission_id)
				);
			`,
		},
		{
			Version:     5,
			Description: "Create user_space_roles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS user_space_roles (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					space_id BIGINT NOT NULL REFERENCES spaces(id),
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					UNIQUE(user_id, space_id)
				);

				CREATE INDEX idx_user_space_roles_space_id ON user_space_roles(space_id);
				CREATE INDEX idx_user_space_roles_role_id ON user_space_roles(role_id);
			`,
		},
		{
			Version:     6,
			Description: "Create topics and topic_roles tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS topics (
					id BIGSERIAL PRIMARY KEY,
					space_id BIGINT NOT NULL REFERENCES spaces(id),
					name VARCHAR(100) NOT NULL,
					access_level VARCHAR(50),
					is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					modified_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_topics_space_id ON topics(space_id);

				CREATE TABLE IF NOT EXISTS topic_roles (
					id BIGSERIAL PRIMARY KEY,
					topic_id BIGINT NOT NULL REFERENCES topics(id) ON DELETE CASCADE,
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					UNIQUE(topic_id, role_id)
				);

				CREATE INDEX idx_topic_roles_role_id ON topic_roles(role_id);
			`,
		},
		{
			Version:     7,
			Description: "Create per-user grant tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS user_space_permissions (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					space_id BIGINT NOT NULL REFERENCES spaces(id),
					permission_id BIGINT NOT NULL REFERENCES permissions(id),
					UNIQUE(user_id, space_id, permission_id)
				);

				CREATE TABLE IF NOT EXISTS user_topic_permissions (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					topic_id BIGINT NOT NULL REFERENCES topics(id) ON DELETE CASCADE,
					permission VARCHAR(50) NOT NULL,
					UNIQUE(user_id, topic_id, permission)
				);
			`,
		},
		{
			Version:     8,
			Description: "Create notes, tags and note_tags tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS notes (
					id BIGSERIAL PRIMARY KEY,
					text TEXT NOT NULL,
					user_id BIGINT NOT NULL REFERENCES users(id),
					topic_id BIGINT NOT NULL REFERENCES topics(id),
					parent_id BIGINT REFERENCES notes(id),
					is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					modified_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_notes_topic_id ON notes(topic_id);
				CREATE INDEX idx_notes_parent_id ON notes(parent_id);
				CREATE INDEX idx_notes_created_at ON notes(created_at);

				CREATE TABLE IF NOT EXISTS tags (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(100) NOT NULL UNIQUE
				);

				CREATE TABLE IF NOT EXISTS note_tags (
					note_id BIGINT NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
					tag_id BIGINT NOT NULL REFERENCES tags(id),
					PRIMARY KEY (note_id, tag_id)
				);
			`,
		},
		{
			Version:     9,
			Description: "Create audit_log table",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_log (
					id VARCHAR(36) PRIMARY KEY,
					actor_id BIGINT NOT NULL,
					target_id BIGINT,
					space_id BIGINT,
					action VARCHAR(100) NOT NULL,
					detail JSONB,
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_audit_log_space_id ON audit_log(space_id);
				CREATE INDEX idx_audit_log_created_at ON audit_log(created_at);
			`,
		},
		{
			Version:     10,
			Description: "Create api_tokens table",
			SQL: `
				CREATE TABLE IF NOT EXISTS api_tokens (
					id BIGSERIAL PRIMARY KEY,
					token_hash VARCHAR(64) NOT NULL UNIQUE,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					expires_at TIMESTAMP
				);

				CREATE INDEX idx_api_tokens_user_id ON api_tokens(user_id);
				CREATE INDEX idx_api_tokens_expires_at ON api_tokens(expires_at);
			`,
		},
	}
}

// RunMigrations executes all pending migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()

	for _, migration := range Migrations() {
		if applied[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

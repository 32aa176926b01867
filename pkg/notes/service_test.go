package notes

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/quillnote/quill/pkg/observability"
	"github.com/quillnote/quill/pkg/rbac"
	"github.com/quillnote/quill/pkg/spaces"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	// Every connection to :memory: is a distinct database, and the
	// enrichment queries run concurrently.
	db.SetMaxOpenConns(1)

	// Minimal schema for testing
	_, err = db.Exec(`
		CREATE TABLE users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL
		);

		CREATE TABLE spaces (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			is_deleted INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			modified_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE permissions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE
		);

		CREATE TABLE roles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			space_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			is_custom INTEGER NOT NULL DEFAULT 1,
			is_default INTEGER NOT NULL DEFAULT 0,
			is_deleted INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(space_id, name)
		);

		CREATE TABLE role_permissions (
			role_id INTEGER NOT NULL,
			permission_id INTEGER NOT NULL,
			PRIMARY KEY (role_id, permission_id)
		);

		CREATE TABLE user_space_roles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			space_id INTEGER NOT NULL,
			role_id INTEGER NOT NULL,
			UNIQUE(user_id, space_id)
		);

		CREATE TABLE topics (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			space_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			access_level TEXT,
			is_deleted INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			modified_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE topic_roles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			topic_id INTEGER NOT NULL,
			role_id INTEGER NOT NULL,
			UNIQUE(topic_id, role_id)
		);

		CREATE TABLE user_space_permissions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			space_id INTEGER NOT NULL,
			permission_id INTEGER NOT NULL,
			UNIQUE(user_id, space_id, permission_id)
		);

		CREATE TABLE user_topic_permissions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			topic_id INTEGER NOT NULL,
			permission TEXT NOT NULL,
			UNIQUE(user_id, topic_id, permission)
		);

		CREATE TABLE notes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			text TEXT NOT NULL,
			user_id INTEGER NOT NULL,
			topic_id INTEGER NOT NULL,
			parent_id INTEGER,
			is_deleted INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			modified_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE tags (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE
		);

		CREATE TABLE note_tags (
			note_id INTEGER NOT NULL,
			tag_id INTEGER NOT NULL,
			PRIMARY KEY (note_id, tag_id)
		);
	`)
	if err != nil {
		t.Fatalf("Failed to create test tables: %v", err)
	}

	return db
}

type fixture struct {
	db        *sql.DB
	service   *Service
	rbacStore *rbac.Store
	catalog   *rbac.Catalog

	spaceID     int64
	ownerID     int64
	moderatorID int64
	memberID    int64
	readerID    int64
	outsiderID  int64

	publicTopic  int64
	privateTopic int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := setupTestDB(t)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()

	catalog, err := rbac.NewCatalog(ctx, db)
	if err != nil {
		t.Fatalf("NewCatalog failed: %v", err)
	}

	f := &fixture{db: db, catalog: catalog, rbacStore: rbac.NewStore(db)}
	f.ownerID = f.createUser(t, "olive")
	f.moderatorID = f.createUser(t, "miles")
	f.memberID = f.createUser(t, "mabel")
	f.readerID = f.createUser(t, "rhea")
	f.outsiderID = f.createUser(t, "otis")

	space, err := spaces.NewStore(db).CreateSpace(ctx, "workspace", f.ownerID, catalog)
	if err != nil {
		t.Fatalf("CreateSpace failed: %v", err)
	}
	f.spaceID = space.ID

	f.bindRole(t, f.moderatorID, rbac.RoleModerator)
	f.bindRole(t, f.memberID, rbac.RoleMember)

	// The reader role can author and read notes but not touch anyone
	// else's, which exercises the author bypass.
	readerPerms, err := catalog.IDs([]string{rbac.PermCreateNotes, rbac.PermReadNotes})
	if err != nil {
		t.Fatalf("catalog.IDs failed: %v", err)
	}
	readerRole := &rbac.Role{SpaceID: f.spaceID, Name: "reader", IsCustom: true}
	if err := f.rbacStore.CreateRoleWithPermissions(ctx, readerRole, readerPerms); err != nil {
		t.Fatalf("CreateRoleWithPermissions failed: %v", err)
	}
	if err := f.rbacStore.UpsertUserRole(ctx, f.readerID, f.spaceID, readerRole.ID); err != nil {
		t.Fatalf("UpsertUserRole failed: %v", err)
	}

	ownerRoleID := f.roleID(t, rbac.RoleOwner)
	f.publicTopic = f.createTopic(t, "announcements", rbac.AccessPublic, ownerRoleID)
	f.privateTopic = f.createTopic(t, "salaries", rbac.AccessPrivate, ownerRoleID)

	resolver := rbac.NewRolePermissionResolver(f.rbacStore, catalog)
	visibility := rbac.NewTopicVisibility(f.rbacStore, rbac.VisibilityPolicy{
		AccessLevels: true,
		UserGrants:   true,
	})
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)

	f.service = NewService(NewStore(db), f.rbacStore, resolver, visibility, logger)
	return f
}

func (f *fixture) createUser(t *testing.T, name string) int64 {
	t.Helper()

	result, err := f.db.Exec(`INSERT INTO users (name) VALUES (?)`, name)
	if err != nil {
		t.Fatalf("Failed to create user %s: %v", name, err)
	}
	id, _ := result.LastInsertId()
	return id
}

func (f *fixture) bindRole(t *testing.T, userID int64, roleName string) {
	t.Helper()

	role, err := f.rbacStore.GetRoleByName(context.Background(), f.spaceID, roleName)
	if err != nil {
		t.Fatalf("GetRoleByName(%s) failed: %v", roleName, err)
	}
	if err := f.rbacStore.UpsertUserRole(context.Background(), userID, f.spaceID, role.ID); err != nil {
		t.Fatalf("UpsertUserRole failed: %v", err)
	}
}

func (f *fixture) roleID(t *testing.T, name string) int64 {
	t.Helper()

	role, err := f.rbacStore.GetRoleByName(context.Background(), f.spaceID, name)
	if err != nil {
		t.Fatalf("GetRoleByName(%s) failed: %v", name, err)
	}
	return role.ID
}

func (f *fixture) createTopic(t *testing.T, name, accessLevel string, bindRoleIDs ...int64) int64 {
	t.Helper()

	result, err := f.db.Exec(
		`INSERT INTO topics (space_id, name, access_level) VALUES (?, ?, ?)`,
		f.spaceID, name, accessLevel)
	if err != nil {
		t.Fatalf("Failed to create topic: %v", err)
	}
	topicID, _ := result.LastInsertId()

	for _, roleID := range bindRoleIDs {
		if _, err := f.db.Exec(
			`INSERT INTO topic_roles (topic_id, role_id) VALUES (?, ?)`, topicID, roleID,
		); err != nil {
			t.Fatalf("Failed to bind topic role: %v", err)
		}
	}
	return topicID
}

func (f *fixture) createNote(t *testing.T, userID, topicID int64, text string, tags ...string) *EnrichedNote {
	t.Helper()

	note, err := f.service.CreateNote(context.Background(), userID, CreateNoteRequest{
		Text: text, TopicID: topicID, Tags: tags,
	})
	if err != nil {
		t.Fatalf("CreateNote failed: %v", err)
	}
	return note
}

func TestService_CreateNote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("member creates a note with tags", func(t *testing.T) {
		note, err := f.service.CreateNote(ctx, f.memberID, CreateNoteRequest{
			Text:    "weekly update",
			TopicID: f.publicTopic,
			Tags:    []string{"status", "weekly"},
		})
		if err != nil {
			t.Fatalf("CreateNote failed: %v", err)
		}
		if note.ID == 0 {
			t.Error("Expected note id to be assigned")
		}
		if len(note.Tags) != 2 {
			t.Errorf("Expected 2 tags, got %v", note.Tags)
		}
	})

	t.Run("reply derives its topic from the parent", func(t *testing.T) {
		parent := f.createNote(t, f.memberID, f.publicTopic, "root")
		reply, err := f.service.CreateNote(ctx, f.memberID, CreateNoteRequest{
			Text:     "a reply",
			ParentID: &parent.ID,
		})
		if err != nil {
			t.Fatalf("CreateNote failed: %v", err)
		}
		if reply.TopicID != f.publicTopic {
			t.Errorf("Expected topic %d, got %d", f.publicTopic, reply.TopicID)
		}
		if reply.ParentPreview != "root" {
			t.Errorf("Expected parent preview, got %q", reply.ParentPreview)
		}
	})

	t.Run("mismatched parent and topic is invalid", func(t *testing.T) {
		parent := f.createNote(t, f.memberID, f.publicTopic, "root")
		_, err := f.service.CreateNote(ctx, f.ownerID, CreateNoteRequest{
			Text:     "confused",
			TopicID:  f.privateTopic,
			ParentID: &parent.ID,
		})
		if !errors.Is(err, rbac.ErrInvalidRequest) {
			t.Errorf("Expected ErrInvalidRequest, got %v", err)
		}
	})

	t.Run("neither topic nor parent is invalid", func(t *testing.T) {
		_, err := f.service.CreateNote(ctx, f.memberID, CreateNoteRequest{Text: "floating"})
		if !errors.Is(err, rbac.ErrInvalidRequest) {
			t.Errorf("Expected ErrInvalidRequest, got %v", err)
		}
	})

	t.Run("outsider lacks CREATE_NOTES", func(t *testing.T) {
		_, err := f.service.CreateNote(ctx, f.outsiderID, CreateNoteRequest{
			Text: "intruder", TopicID: f.publicTopic,
		})
		if !errors.Is(err, rbac.ErrForbidden) {
			t.Errorf("Expected ErrForbidden, got %v", err)
		}
	})

	t.Run("permission without visibility is forbidden", func(t *testing.T) {
		_, err := f.service.CreateNote(ctx, f.memberID, CreateNoteRequest{
			Text: "snooping", TopicID: f.privateTopic,
		})
		if !errors.Is(err, rbac.ErrForbidden) {
			t.Errorf("Expected ErrForbidden, got %v", err)
		}
	})

	t.Run("blank text is invalid", func(t *testing.T) {
		_, err := f.service.CreateNote(ctx, f.memberID, CreateNoteRequest{
			Text: "  ", TopicID: f.publicTopic,
		})
		if !errors.Is(err, rbac.ErrInvalidRequest) {
			t.Errorf("Expected ErrInvalidRequest, got %v", err)
		}
	})
}

func TestService_ListNotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createNote(t, f.memberID, f.publicTopic, "first", "alpha")
	f.createNote(t, f.memberID, f.publicTopic, "second", "beta")
	f.createNote(t, f.ownerID, f.privateTopic, "secret")

	t.Run("missing scope anchor is invalid", func(t *testing.T) {
		_, err := f.service.ListNotes(ctx, f.memberID, Filters{})
		if !errors.Is(err, rbac.ErrInvalidRequest) {
			t.Errorf("Expected ErrInvalidRequest, got %v", err)
		}
	})

	t.Run("outsider lacks READ_NOTES", func(t *testing.T) {
		_, err := f.service.ListNotes(ctx, f.outsiderID, Filters{SpaceID: &f.spaceID})
		if !errors.Is(err, rbac.ErrForbidden) {
			t.Errorf("Expected ErrForbidden, got %v", err)
		}
	})

	t.Run("member sees only accessible topics", func(t *testing.T) {
		result, err := f.service.ListNotes(ctx, f.memberID, Filters{SpaceID: &f.spaceID})
		if err != nil {
			t.Fatalf("ListNotes failed: %v", err)
		}
		if result.Total != 2 {
			t.Errorf("Expected total 2, got %d", result.Total)
		}
		for _, note := range result.Notes {
			if note.TopicID == f.privateTopic {
				t.Errorf("Private topic note leaked into listing: %+v", note)
			}
		}
	})

	t.Run("owner sees everything", func(t *testing.T) {
		result, err := f.service.ListNotes(ctx, f.ownerID, Filters{SpaceID: &f.spaceID})
		if err != nil {
			t.Fatalf("ListNotes failed: %v", err)
		}
		if result.Total != 3 {
			t.Errorf("Expected total 3, got %d", result.Total)
		}
	})

	t.Run("explicit inaccessible topic is forbidden", func(t *testing.T) {
		_, err := f.service.ListNotes(ctx, f.memberID, Filters{
			SpaceID: &f.spaceID, TopicID: &f.privateTopic,
		})
		if !errors.Is(err, rbac.ErrForbidden) {
			t.Errorf("Expected ErrForbidden, got %v", err)
		}
	})

	t.Run("topic outside the space is invalid", func(t *testing.T) {
		other, err := spaces.NewStore(f.db).CreateSpace(ctx, "other", f.ownerID, f.catalog)
		if err != nil {
			t.Fatalf("CreateSpace failed: %v", err)
		}
		result, errQuery := f.db.Exec(
			`INSERT INTO topics (space_id, name) VALUES (?, ?)`, other.ID, "foreign")
		if errQuery != nil {
			t.Fatalf("Failed to create topic: %v", errQuery)
		}
		foreignID, _ := result.LastInsertId()

		_, err = f.service.ListNotes(ctx, f.ownerID, Filters{
			SpaceID: &f.spaceID, TopicID: &foreignID,
		})
		if !errors.Is(err, rbac.ErrInvalidRequest) {
			t.Errorf("Expected ErrInvalidRequest, got %v", err)
		}
	})

	t.Run("tag filter", func(t *testing.T) {
		result, err := f.service.ListNotes(ctx, f.memberID, Filters{
			SpaceID: &f.spaceID, Tags: []string{"alpha"},
		})
		if err != nil {
			t.Fatalf("ListNotes failed: %v", err)
		}
		if result.Total != 1 {
			t.Fatalf("Expected total 1, got %d", result.Total)
		}
		if result.Notes[0].Text != "first" {
			t.Errorf("Expected note first, got %s", result.Notes[0].Text)
		}
	})

	t.Run("empty accessible set short-circuits", func(t *testing.T) {
		// A role with READ_NOTES but no topic bindings, in a space with
		// no public topics, yields an empty page rather than an error.
		other, err := spaces.NewStore(f.db).CreateSpace(ctx, "sealed", f.ownerID, f.catalog)
		if err != nil {
			t.Fatalf("CreateSpace failed: %v", err)
		}
		memberRole, err := f.rbacStore.GetRoleByName(ctx, other.ID, rbac.RoleMember)
		if err != nil {
			t.Fatalf("GetRoleByName failed: %v", err)
		}
		if err := f.rbacStore.UpsertUserRole(ctx, f.memberID, other.ID, memberRole.ID); err != nil {
			t.Fatalf("UpsertUserRole failed: %v", err)
		}

		result, err := f.service.ListNotes(ctx, f.memberID, Filters{SpaceID: &other.ID})
		if err != nil {
			t.Fatalf("ListNotes failed: %v", err)
		}
		if result.Total != 0 || len(result.Notes) != 0 {
			t.Errorf("Expected empty page, got total %d with %d notes", result.Total, len(result.Notes))
		}
	})
}

func TestService_ListNotes_RepliesAndPagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	longText := strings.Repeat("x", 150)
	parent := f.createNote(t, f.memberID, f.publicTopic, longText)
	for i := 0; i < 3; i++ {
		_, err := f.service.CreateNote(ctx, f.memberID, CreateNoteRequest{
			Text: "reply", ParentID: &parent.ID,
		})
		if err != nil {
			t.Fatalf("CreateNote failed: %v", err)
		}
	}

	t.Run("parent filter with preview and reply count", func(t *testing.T) {
		result, err := f.service.ListNotes(ctx, f.memberID, Filters{ParentID: &parent.ID})
		if err != nil {
			t.Fatalf("ListNotes failed: %v", err)
		}
		if result.Total != 3 {
			t.Fatalf("Expected 3 replies, got %d", result.Total)
		}
		for _, note := range result.Notes {
			if len(note.ParentPreview) != 100 {
				t.Errorf("Expected 100-char preview, got %d chars", len(note.ParentPreview))
			}
		}

		top, err := f.service.ListNotes(ctx, f.memberID, Filters{
			SpaceID: &f.spaceID, TopLevelOnly: true,
		})
		if err != nil {
			t.Fatalf("ListNotes failed: %v", err)
		}
		if top.Total != 1 {
			t.Fatalf("Expected 1 top-level note, got %d", top.Total)
		}
		if top.Notes[0].ReplyCount != 3 {
			t.Errorf("Expected reply count 3, got %d", top.Notes[0].ReplyCount)
		}
	})

	t.Run("contradictory parent and top-level filters", func(t *testing.T) {
		_, err := f.service.ListNotes(ctx, f.memberID, Filters{
			ParentID: &parent.ID, TopLevelOnly: true,
		})
		if !errors.Is(err, rbac.ErrInvalidRequest) {
			t.Errorf("Expected ErrInvalidRequest, got %v", err)
		}
	})

	t.Run("pagination", func(t *testing.T) {
		result, err := f.service.ListNotes(ctx, f.memberID, Filters{
			SpaceID: &f.spaceID, Page: 1, PageSize: 3,
		})
		if err != nil {
			t.Fatalf("ListNotes failed: %v", err)
		}
		if result.Total != 4 {
			t.Fatalf("Expected total 4, got %d", result.Total)
		}
		if len(result.Notes) != 3 {
			t.Errorf("Expected 3 notes on page 1, got %d", len(result.Notes))
		}

		last, err := f.service.ListNotes(ctx, f.memberID, Filters{
			SpaceID: &f.spaceID, Page: 2, PageSize: 3,
		})
		if err != nil {
			t.Fatalf("ListNotes failed: %v", err)
		}
		if len(last.Notes) != 1 {
			t.Errorf("Expected 1 note on page 2, got %d", len(last.Notes))
		}
	})

	t.Run("created-before cursor", func(t *testing.T) {
		past := time.Now().UTC().Add(-time.Hour)
		result, err := f.service.ListNotes(ctx, f.memberID, Filters{
			SpaceID: &f.spaceID, CreatedBefore: &past,
		})
		if err != nil {
			t.Fatalf("ListNotes failed: %v", err)
		}
		if result.Total != 0 {
			t.Errorf("Expected nothing before the cursor, got %d", result.Total)
		}

		future := time.Now().UTC().Add(time.Hour)
		result, err = f.service.ListNotes(ctx, f.memberID, Filters{
			SpaceID: &f.spaceID, CreatedBefore: &future,
		})
		if err != nil {
			t.Fatalf("ListNotes failed: %v", err)
		}
		if result.Total != 4 {
			t.Errorf("Expected all 4 before the cursor, got %d", result.Total)
		}
	})
}

func TestService_UpdateNote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	note := f.createNote(t, f.readerID, f.publicTopic, "draft", "wip")

	t.Run("author edits without EDIT_NOTES", func(t *testing.T) {
		text := "final"
		tags := []string{"done"}
		updated, err := f.service.UpdateNote(ctx, f.readerID, note.ID, UpdateNoteRequest{
			Text: &text, Tags: &tags,
		})
		if err != nil {
			t.Fatalf("UpdateNote failed: %v", err)
		}
		if updated.Text != "final" {
			t.Errorf("Expected final, got %s", updated.Text)
		}
		if len(updated.Tags) != 1 || updated.Tags[0] != "done" {
			t.Errorf("Expected tags [done], got %v", updated.Tags)
		}
	})

	t.Run("moderator edits with EDIT_NOTES", func(t *testing.T) {
		text := "moderated"
		if _, err := f.service.UpdateNote(ctx, f.moderatorID, note.ID, UpdateNoteRequest{Text: &text}); err != nil {
			t.Fatalf("UpdateNote failed: %v", err)
		}
	})

	t.Run("non-author without EDIT_NOTES is forbidden", func(t *testing.T) {
		other := f.createNote(t, f.moderatorID, f.publicTopic, "not yours")
		text := "vandalism"
		_, err := f.service.UpdateNote(ctx, f.readerID, other.ID, UpdateNoteRequest{Text: &text})
		if !errors.Is(err, rbac.ErrForbidden) {
			t.Errorf("Expected ErrForbidden, got %v", err)
		}
	})
}

func TestService_DeleteAndRestoreNote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	note := f.createNote(t, f.readerID, f.publicTopic, "ephemeral")

	t.Run("author deletes without DELETE_NOTES", func(t *testing.T) {
		if err := f.service.DeleteNote(ctx, f.readerID, note.ID); err != nil {
			t.Fatalf("DeleteNote failed: %v", err)
		}
		if _, err := f.service.GetNote(ctx, f.readerID, note.ID); !errors.Is(err, rbac.ErrNotFound) {
			t.Errorf("Expected ErrNotFound after delete, got %v", err)
		}
	})

	t.Run("restore needs EDIT_NOTES", func(t *testing.T) {
		if err := f.service.RestoreNote(ctx, f.readerID, note.ID); !errors.Is(err, rbac.ErrForbidden) {
			t.Errorf("Expected ErrForbidden for reader, got %v", err)
		}
		if err := f.service.RestoreNote(ctx, f.moderatorID, note.ID); err != nil {
			t.Fatalf("RestoreNote failed: %v", err)
		}
		if _, err := f.service.GetNote(ctx, f.readerID, note.ID); err != nil {
			t.Errorf("Expected note back after restore, got %v", err)
		}
	})

	t.Run("non-author without DELETE_NOTES cannot delete", func(t *testing.T) {
		other := f.createNote(t, f.moderatorID, f.publicTopic, "protected")
		if err := f.service.DeleteNote(ctx, f.readerID, other.ID); !errors.Is(err, rbac.ErrForbidden) {
			t.Errorf("Expected ErrForbidden, got %v", err)
		}
	})
}

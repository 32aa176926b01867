package rbac

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	// Minimal schema for testing
	_, err = db.Exec(`
		CREATE TABLE users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL
		);

		CREATE TABLE spaces (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			is_deleted INTEGER NOT NULL DEFAULT 0
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
	`)
	if err != nil {
		t.Fatalf("Failed to create test tables: %v", err)
	}

	return db
}

func createTestSpace(t *testing.T, db *sql.DB, name string) int64 {
	t.Helper()

	result, err := db.Exec(`INSERT INTO spaces (name) VALUES (?)`, name)
	if err != nil {
		t.Fatalf("Failed to create test space: %v", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		t.Fatalf("Failed to get space id: %v", err)
	}
	return id
}

func createTestTopic(t *testing.T, db *sql.DB, spaceID int64, name, accessLevel string) int64 {
	t.Helper()

	var result sql.Result
	var err error
	if accessLevel == "" {
		result, err = db.Exec(`INSERT INTO topics (space_id, name) VALUES (?, ?)`, spaceID, name)
	} else {
		result, err = db.Exec(`INSERT INTO topics (space_id, name, access_level) VALUES (?, ?, ?)`,
			spaceID, name, accessLevel)
	}
	if err != nil {
		t.Fatalf("Failed to create test topic: %v", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		t.Fatalf("Failed to get topic id: %v", err)
	}
	return id
}

func TestStore_RoleLifecycle(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewStore(db)
	catalog, err := NewCatalog(ctx, db)
	if err != nil {
		t.Fatalf("NewCatalog failed: %v", err)
	}

	spaceID := createTestSpace(t, db, "engineering")

	permIDs, err := catalog.IDs([]string{PermReadNotes, PermCreateNotes})
	if err != nil {
		t.Fatalf("catalog.IDs failed: %v", err)
	}

	role := &Role{
		SpaceID:  spaceID,
		Name:     "reviewer",
		IsCustom: true,
	}
	if err := store.CreateRoleWithPermissions(ctx, role, permIDs); err != nil {
		t.Fatalf("CreateRoleWithPermissions failed: %v", err)
	}
	if role.ID == 0 {
		t.Error("Expected role ID to be set after creation")
	}

	retrieved, err := store.GetRole(ctx, role.ID)
	if err != nil {
		t.Fatalf("GetRole failed: %v", err)
	}
	if retrieved.Name != "reviewer" {
		t.Errorf("Expected name reviewer, got %s", retrieved.Name)
	}
	if !retrieved.IsCustom {
		t.Error("Expected role to be custom")
	}

	byName, err := store.GetRoleByName(ctx, spaceID, "reviewer")
	if err != nil {
		t.Fatalf("GetRoleByName failed: %v", err)
	}
	if byName.ID != role.ID {
		t.Errorf("Expected role %d, got %d", role.ID, byName.ID)
	}

	bound, err := store.RolePermissionIDs(ctx, role.ID)
	if err != nil {
		t.Fatalf("RolePermissionIDs failed: %v", err)
	}
	if len(bound) != 2 {
		t.Errorf("Expected 2 bound permissions, got %d", len(bound))
	}

	if err := store.UpdateRoleName(ctx, role.ID, "senior-reviewer"); err != nil {
		t.Fatalf("UpdateRoleName failed: %v", err)
	}
	renamed, err := store.GetRole(ctx, role.ID)
	if err != nil {
		t.Fatalf("GetRole after rename failed: %v", err)
	}
	if renamed.Name != "senior-reviewer" {
		t.Errorf("Expected renamed role, got %s", renamed.Name)
	}

	newPermIDs, err := catalog.IDs([]string{PermReadNotes})
	if err != nil {
		t.Fatalf("catalog.IDs failed: %v", err)
	}
	if err := store.ReplaceRolePermissions(ctx, role.ID, newPermIDs); err != nil {
		t.Fatalf("ReplaceRolePermissions failed: %v", err)
	}
	bound, err = store.RolePermissionIDs(ctx, role.ID)
	if err != nil {
		t.Fatalf("RolePermissionIDs after replace failed: %v", err)
	}
	if len(bound) != 1 {
		t.Errorf("Expected 1 bound permission after replace, got %d", len(bound))
	}

	_, err = store.GetRole(ctx, 99999)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for missing role, got %v", err)
	}

	_, err = store.GetRoleInSpace(ctx, role.ID, spaceID+1)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for role in wrong space, got %v", err)
	}
}

func TestStore_UserRoleBindings(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewStore(db)

	spaceID := createTestSpace(t, db, "product")

	member := &Role{SpaceID: spaceID, Name: RoleMember}
	if err := store.CreateRoleWithPermissions(ctx, member, nil); err != nil {
		t.Fatalf("Failed to create member role: %v", err)
	}
	moderator := &Role{SpaceID: spaceID, Name: RoleModerator}
	if err := store.CreateRoleWithPermissions(ctx, moderator, nil); err != nil {
		t.Fatalf("Failed to create moderator role: %v", err)
	}

	const userID = 7

	role, err := store.RoleOf(ctx, userID, spaceID)
	if err != nil {
		t.Fatalf("RoleOf failed: %v", err)
	}
	if role != nil {
		t.Errorf("Expected no role before assignment, got %s", role.Name)
	}

	if err := store.UpsertUserRole(ctx, userID, spaceID, member.ID); err != nil {
		t.Fatalf("UpsertUserRole failed: %v", err)
	}
	role, err = store.RoleOf(ctx, userID, spaceID)
	if err != nil {
		t.Fatalf("RoleOf after assignment failed: %v", err)
	}
	if role == nil || role.Name != RoleMember {
		t.Fatalf("Expected member role, got %+v", role)
	}

	// Reassignment replaces, never duplicates
	if err := store.UpsertUserRole(ctx, userID, spaceID, moderator.ID); err != nil {
		t.Fatalf("UpsertUserRole reassignment failed: %v", err)
	}
	roles, err := store.RolesOf(ctx, userID, spaceID)
	if err != nil {
		t.Fatalf("RolesOf failed: %v", err)
	}
	if len(roles) != 1 {
		t.Fatalf("Expected exactly 1 binding after reassignment, got %d", len(roles))
	}
	if roles[0].Name != RoleModerator {
		t.Errorf("Expected moderator after reassignment, got %s", roles[0].Name)
	}

	if err := store.DeleteUserRole(ctx, userID, spaceID); err != nil {
		t.Fatalf("DeleteUserRole failed: %v", err)
	}
	err = store.DeleteUserRole(ctx, userID, spaceID)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for repeated removal, got %v", err)
	}
}

func TestStore_TopicBindings(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewStore(db)

	spaceID := createTestSpace(t, db, "research")

	role := &Role{SpaceID: spaceID, Name: "analyst"}
	if err := store.CreateRoleWithPermissions(ctx, role, nil); err != nil {
		t.Fatalf("Failed to create role: %v", err)
	}

	topicA := createTestTopic(t, db, spaceID, "alpha", "")
	topicB := createTestTopic(t, db, spaceID, "beta", "")
	topicDeleted := createTestTopic(t, db, spaceID, "gone", "")
	if _, err := db.Exec(`UPDATE topics SET is_deleted = 1 WHERE id = ?`, topicDeleted); err != nil {
		t.Fatalf("Failed to soft-delete topic: %v", err)
	}

	if err := store.BindTopicRole(ctx, topicA, role.ID); err != nil {
		t.Fatalf("BindTopicRole failed: %v", err)
	}
	// Idempotent
	if err := store.BindTopicRole(ctx, topicA, role.ID); err != nil {
		t.Fatalf("Repeated BindTopicRole failed: %v", err)
	}
	if err := store.BindTopicRole(ctx, topicDeleted, role.ID); err != nil {
		t.Fatalf("BindTopicRole on deleted topic failed: %v", err)
	}

	topicSet, err := store.TopicIDsForRoles(ctx, []int64{role.ID})
	if err != nil {
		t.Fatalf("TopicIDsForRoles failed: %v", err)
	}
	if len(topicSet) != 1 {
		t.Fatalf("Expected 1 live bound topic, got %d", len(topicSet))
	}
	if _, ok := topicSet[topicA]; !ok {
		t.Error("Expected topicA in bound set")
	}
	if _, ok := topicSet[topicDeleted]; ok {
		t.Error("Deleted topic must be excluded from bound set")
	}

	topicSet, err = store.TopicIDsForRoles(ctx, nil)
	if err != nil {
		t.Fatalf("TopicIDsForRoles with no roles failed: %v", err)
	}
	if len(topicSet) != 0 {
		t.Errorf("Expected empty set for no roles, got %d entries", len(topicSet))
	}

	if err := store.ReplaceTopicRoles(ctx, role.ID, []int64{topicB}); err != nil {
		t.Fatalf("ReplaceTopicRoles failed: %v", err)
	}
	ids, err := store.TopicIDsForRole(ctx, role.ID)
	if err != nil {
		t.Fatalf("TopicIDsForRole failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != topicB {
		t.Errorf("Expected only topicB after replacement, got %v", ids)
	}

	gotSpace, accessLevel, err := store.TopicSpace(ctx, topicA)
	if err != nil {
		t.Fatalf("TopicSpace failed: %v", err)
	}
	if gotSpace != spaceID {
		t.Errorf("Expected space %d, got %d", spaceID, gotSpace)
	}
	if accessLevel != "" {
		t.Errorf("Expected empty access level, got %q", accessLevel)
	}

	_, _, err = store.TopicSpace(ctx, topicDeleted)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for deleted topic, got %v", err)
	}
}

func TestStore_PublicTopicIDs(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewStore(db)

	spaceID := createTestSpace(t, db, "community")
	publicTopic := createTestTopic(t, db, spaceID, "announcements", AccessPublic)
	createTestTopic(t, db, spaceID, "secrets", AccessPrivate)
	createTestTopic(t, db, spaceID, "untagged", "")

	ids, err := store.PublicTopicIDs(ctx, spaceID)
	if err != nil {
		t.Fatalf("PublicTopicIDs failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != publicTopic {
		t.Errorf("Expected only the public topic, got %v", ids)
	}
}

func TestStore_DirectGrants(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewStore(db)
	catalog, err := NewCatalog(ctx, db)
	if err != nil {
		t.Fatalf("NewCatalog failed: %v", err)
	}

	spaceID := createTestSpace(t, db, "ops")
	topicID := createTestTopic(t, db, spaceID, "incidents", AccessPrivate)

	readID, ok := catalog.Lookup(PermReadNotes)
	if !ok {
		t.Fatal("Catalog missing READ_NOTES")
	}

	const userID = 3

	has, err := store.HasUserSpaceGrant(ctx, userID, spaceID, readID)
	if err != nil {
		t.Fatalf("HasUserSpaceGrant failed: %v", err)
	}
	if has {
		t.Error("Expected no grant before granting")
	}

	if err := store.GrantUserSpacePermission(ctx, userID, spaceID, readID); err != nil {
		t.Fatalf("GrantUserSpacePermission failed: %v", err)
	}
	// Idempotent
	if err := store.GrantUserSpacePermission(ctx, userID, spaceID, readID); err != nil {
		t.Fatalf("Repeated GrantUserSpacePermission failed: %v", err)
	}

	has, err = store.HasUserSpaceGrant(ctx, userID, spaceID, readID)
	if err != nil {
		t.Fatalf("HasUserSpaceGrant after grant failed: %v", err)
	}
	if !has {
		t.Error("Expected grant to be visible")
	}

	has, err = store.HasUserTopicReadGrant(ctx, userID, topicID)
	if err != nil {
		t.Fatalf("HasUserTopicReadGrant failed: %v", err)
	}
	if has {
		t.Error("Expected no topic grant before granting")
	}

	if err := store.GrantUserTopicRead(ctx, userID, topicID); err != nil {
		t.Fatalf("GrantUserTopicRead failed: %v", err)
	}
	has, err = store.HasUserTopicReadGrant(ctx, userID, topicID)
	if err != nil {
		t.Fatalf("HasUserTopicReadGrant after grant failed: %v", err)
	}
	if !has {
		t.Error("Expected topic grant to be visible")
	}
}

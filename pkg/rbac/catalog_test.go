package rbac

import (
	"context"
	"errors"
	"testing"
)

func TestNewCatalog_SeedsAndResolves(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	catalog, err := NewCatalog(ctx, db)
	if err != nil {
		t.Fatalf("NewCatalog failed: %v", err)
	}

	if catalog.Len() != len(CatalogNames()) {
		t.Errorf("Expected %d permissions, got %d", len(CatalogNames()), catalog.Len())
	}

	for _, name := range CatalogNames() {
		id, ok := catalog.Lookup(name)
		if !ok {
			t.Errorf("Catalog missing %s", name)
			continue
		}
		back, ok := catalog.Name(id)
		if !ok || back != name {
			t.Errorf("Reverse lookup of %s gave %q", name, back)
		}
	}

	// Seeding again must resolve to the same ids
	again, err := NewCatalog(ctx, db)
	if err != nil {
		t.Fatalf("Second NewCatalog failed: %v", err)
	}
	for _, name := range CatalogNames() {
		first, _ := catalog.Lookup(name)
		second, _ := again.Lookup(name)
		if first != second {
			t.Errorf("Re-seeding changed id for %s: %d vs %d", name, first, second)
		}
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM permissions`).Scan(&count); err != nil {
		t.Fatalf("Failed to count permissions: %v", err)
	}
	if count != len(CatalogNames()) {
		t.Errorf("Expected %d permission rows after re-seeding, got %d", len(CatalogNames()), count)
	}
}

func TestCatalog_LookupNormalizesCase(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	catalog, err := NewCatalog(context.Background(), db)
	if err != nil {
		t.Fatalf("NewCatalog failed: %v", err)
	}

	upper, ok := catalog.Lookup("READ_NOTES")
	if !ok {
		t.Fatal("Expected READ_NOTES to resolve")
	}
	lower, ok := catalog.Lookup("read_notes")
	if !ok {
		t.Fatal("Expected lower-case name to resolve")
	}
	if upper != lower {
		t.Errorf("Case variants resolved to different ids: %d vs %d", upper, lower)
	}

	if _, ok := catalog.Lookup("LAUNCH_MISSILES"); ok {
		t.Error("Unknown permission must not resolve")
	}
}

func TestCatalog_IDs(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	catalog, err := NewCatalog(context.Background(), db)
	if err != nil {
		t.Fatalf("NewCatalog failed: %v", err)
	}

	ids, err := catalog.IDs([]string{PermReadNotes, PermEditNotes})
	if err != nil {
		t.Fatalf("IDs failed: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("Expected 2 ids, got %d", len(ids))
	}

	_, err = catalog.IDs([]string{PermReadNotes, "NOT_A_PERMISSION"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown name, got %v", err)
	}
}

func TestNewCatalogFromPermissions(t *testing.T) {
	perms := make([]Permission, 0, len(CatalogNames()))
	for i, name := range CatalogNames() {
		perms = append(perms, Permission{ID: int64(i + 1), Name: name})
	}

	catalog, err := NewCatalogFromPermissions(perms)
	if err != nil {
		t.Fatalf("NewCatalogFromPermissions failed: %v", err)
	}
	if catalog.Len() != len(CatalogNames()) {
		t.Errorf("Expected %d entries, got %d", len(CatalogNames()), catalog.Len())
	}

	t.Run("normalizes stored names", func(t *testing.T) {
		lower := []Permission{}
		for i, name := range CatalogNames() {
			lower = append(lower, Permission{ID: int64(i + 1), Name: name})
		}
		// Rows seeded with mixed case must still satisfy the catalog.
		lower[0].Name = "create_notes"
		c, err := NewCatalogFromPermissions(lower)
		if err != nil {
			t.Fatalf("NewCatalogFromPermissions with mixed case failed: %v", err)
		}
		if _, ok := c.Lookup(PermCreateNotes); !ok {
			t.Error("Expected CREATE_NOTES to resolve from lower-case row")
		}
	})

	t.Run("rejects incomplete set", func(t *testing.T) {
		_, err := NewCatalogFromPermissions(perms[:len(perms)-1])
		if err == nil {
			t.Error("Expected error for incomplete permission set")
		}
	})
}

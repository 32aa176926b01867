package rbac

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Canonical permission names. The catalog seeds and matches these exact
// upper-snake forms; Catalog.Lookup normalizes its input so callers cannot
// reintroduce case mismatches between seeded and queried names.
const (
	PermCreateNotes     = "CREATE_NOTES"
	PermEditNotes       = "EDIT_NOTES"
	PermDeleteNotes     = "DELETE_NOTES"
	PermReadNotes       = "READ_NOTES"
	PermCreateTopics    = "CREATE_TOPICS"
	PermEditTopics      = "EDIT_TOPICS"
	PermDeleteTopics    = "DELETE_TOPICS"
	PermEditSpaces      = "EDIT_SPACES"
	PermDeleteSpaces    = "DELETE_SPACES"
	PermCreateRoles     = "CREATE_ROLES"
	PermEditRoles       = "EDIT_ROLES"
	PermChangeUserRoles = "CHANGE_USER_ROLES"
)

// CatalogNames returns every canonical permission name, in seeding order.
func CatalogNames() []string {
	return []string{
		PermCreateNotes,
		PermEditNotes,
		PermDeleteNotes,
		PermReadNotes,
		PermCreateTopics,
		PermEditTopics,
		PermDeleteTopics,
		PermEditSpaces,
		PermDeleteSpaces,
		PermCreateRoles,
		PermEditRoles,
		PermChangeUserRoles,
	}
}

// Catalog is the constructed-once permission name -> id mapping. It is
// immutable after NewCatalog returns and safe for concurrent use.
type Catalog struct {
	ids   map[string]int64
	names map[int64]string
}

// NewCatalog seeds the permissions table idempotently and loads the
// name -> id mapping. Concurrent seeding attempts are safe to race: the
// insert is ON CONFLICT DO NOTHING and the subsequent read resolves the
// surviving row. A canonical name that still cannot be resolved after
// seeding is a configuration failure and aborts startup.
func NewCatalog(ctx context.Context, db *sql.DB) (*Catalog, error) {
	c := &Catalog{
		ids:   make(map[string]int64, len(CatalogNames())),
		names: make(map[int64]string, len(CatalogNames())),
	}

	for _, name := range CatalogNames() {
		if _, err := db.ExecContext(ctx,
			`INSERT INTO permissions (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`,
			name,
		); err != nil {
			return nil, fmt.Errorf("failed to seed permission %s: %w", name, err)
		}

		var id int64
		err := db.QueryRowContext(ctx,
			`SELECT id FROM permissions WHERE name = $1`, name,
		).Scan(&id)
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("permission %s missing after seeding", name)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load permission %s: %w", name, err)
		}

		c.ids[name] = id
		c.names[id] = name
	}

	return c, nil
}

// NewCatalogFromPermissions builds a catalog from already-loaded rows. It
// verifies every canonical name is present, so tests and alternate stores
// cannot construct a partial catalog silently.
func NewCatalogFromPermissions(perms []Permission) (*Catalog, error) {
	c := &Catalog{
		ids:   make(map[string]int64, len(perms)),
		names: make(map[int64]string, len(perms)),
	}
	for _, p := range perms {
		name := strings.ToUpper(p.Name)
		c.ids[name] = p.ID
		c.names[p.ID] = name
	}
	for _, name := range CatalogNames() {
		if _, ok := c.ids[name]; !ok {
			return nil, fmt.Errorf("catalog incomplete: %s missing", name)
		}
	}
	return c, nil
}

// Lookup resolves a permission name to its identifier. The name is
// normalized to upper case first; unknown names return ok = false and are
// never implicitly granted.
func (c *Catalog) Lookup(name string) (int64, bool) {
	id, ok := c.ids[strings.ToUpper(name)]
	return id, ok
}

// Name returns the canonical name for a permission id.
func (c *Catalog) Name(id int64) (string, bool) {
	name, ok := c.names[id]
	return name, ok
}

// IDs returns the identifiers for the given names. Any unknown name yields
// an ErrNotFound so a role can never be bound to a permission outside the
// catalog.
func (c *Catalog) IDs(names []string) ([]int64, error) {
	ids := make([]int64, 0, len(names))
	for _, name := range names {
		id, ok := c.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("permission %s: %w", name, ErrNotFound)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// AllIDs returns every permission id in the catalog, in seeding order.
func (c *Catalog) AllIDs() []int64 {
	ids := make([]int64, 0, len(c.ids))
	for _, name := range CatalogNames() {
		ids = append(ids, c.ids[name])
	}
	return ids
}

// Len returns the number of catalog entries.
func (c *Catalog) Len() int {
	return len(c.ids)
}

// Package rbac is the authorization and content-visibility engine for Quill.
//
// # Overview
//
// Every space in Quill carries its own role set. A user holds at most one
// role per space in the canonical schema, each role is bound to a subset of
// the global permission catalog, and topics add a second visibility
// dimension on top: a role sees a topic only if an explicit topic binding
// grants it. This package answers the two questions everything else depends
// on:
//
//  1. May user U perform action P in space S?
//  2. Which topics in space S may user U see at all?
//
// # Components
//
//   - Catalog: the fixed permission-name -> permission-id mapping, seeded
//     idempotently at startup and immutable afterwards. Constructed once and
//     passed to resolvers explicitly; there is no process-global lookup table.
//   - PermissionResolver: strategy interface for question 1. The default
//     RolePermissionResolver composes the user's role with the
//     role_permissions bindings. GrantPermissionResolver answers the same
//     question from direct per-user grants, for deployments that bypass
//     roles entirely.
//   - Roles: role lookup for a (user, space) pair, single- and multi-role.
//   - TopicVisibility: resolves the accessible topic set by unioning topic
//     bindings across the user's roles, with optional public/private
//     access-level and per-user grant gates.
//
// Every resolver fails closed: a missing role binding, an unknown permission
// name, or an empty accessible set all mean "no", never an error.
//
// # Error taxonomy
//
// ErrNotFound, ErrForbidden, ErrInvalidRequest and ErrConflict are the
// terminal error kinds shared by all Quill services. They are deterministic
// functions of current state and are never retried. Wrap them with
// fmt.Errorf("...: %w", ...) and test with errors.Is.
//
// # Caching
//
// Role-to-permission bindings change only on explicit role edits, so
// RolePermissionResolver can front its binding lookups with a small
// expirable LRU keyed by (role, permission). Callers that edit roles must
// call InvalidateRole afterwards.
//
// # Related packages
//
//   - pkg/spaces: space lifecycle, role mutation with hierarchy guards
//   - pkg/topics: topic CRUD and default visibility bindings
//   - pkg/notes: note queries restricted by the accessible topic set
package rbac

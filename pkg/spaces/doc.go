// Package spaces implements the space lifecycle and space-scoped role
// administration.
//
// Creating a space seeds it in a single transaction: the space row, the
// three default roles (owner, moderator, member), their permission
// bindings, and the creator's owner binding. A space is never observable
// half-seeded.
//
// Role assignment runs an ordered guard chain before any write: the actor
// must hold CHANGE_USER_ROLES, the role must exist in the space, the owner
// role is never assignable, the moderator role is assignable only by an
// owner, and the target user must exist. The first failing check decides
// the error; later checks never run.
package spaces

// Package topics implements topic lifecycle inside a space.
//
// A topic is the visibility boundary for notes: users reach a topic
// through role bindings in topic_roles, through a non-private access
// level, or through an explicit per-user read grant, depending on the
// configured visibility policy.
//
// Creating a topic binds it to the space's owner role and to the
// creator's role in the same transaction, so neither the owner nor the
// creator can lose sight of a topic they just made.
package topics

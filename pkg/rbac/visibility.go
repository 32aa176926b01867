package rbac

import (
	"context"
	"fmt"
)

// VisibilityPolicy toggles the two independent gates the visibility
// resolver applies on top of role bindings. Both default to off, matching
// the canonical schema where topic_roles is the sole gate.
type VisibilityPolicy struct {
	// AccessLevels, when set, makes any topic whose access level is not
	// private visible to every space participant. Private topics still
	// require a role binding (or a user grant, below). The access-level
	// check runs before the role-binding fallback, never instead of it.
	AccessLevels bool

	// UserGrants, when set, lets an explicit per-user read grant open a
	// private topic that no role binding covers.
	UserGrants bool
}

// topicSource is the slice of the store the visibility resolver needs.
type topicSource interface {
	RolesOf(ctx context.Context, userID, spaceID int64) ([]Role, error)
	TopicIDsForRoles(ctx context.Context, roleIDs []int64) (map[int64]struct{}, error)
	TopicSpace(ctx context.Context, topicID int64) (int64, string, error)
	PublicTopicIDs(ctx context.Context, spaceID int64) ([]int64, error)
	HasUserTopicReadGrant(ctx context.Context, userID, topicID int64) (bool, error)
}

// TopicVisibility resolves which topics of a space a user can see or
// operate on. It is stateless; all state lives in the store.
type TopicVisibility struct {
	source topicSource
	policy VisibilityPolicy
}

// NewTopicVisibility creates a visibility resolver with the given policy.
func NewTopicVisibility(source topicSource, policy VisibilityPolicy) *TopicVisibility {
	return &TopicVisibility{source: source, policy: policy}
}

// AccessibleTopics returns the set of topic ids the user may operate on in
// the space: the union of topic_roles bindings across every role the user
// holds, plus all non-private topics when the access-level gate is on. An
// empty set is a valid terminal result meaning "no content visible".
func (v *TopicVisibility) AccessibleTopics(ctx context.Context, userID, spaceID int64) (map[int64]struct{}, error) {
	roles, err := v.source.RolesOf(ctx, userID, spaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve roles: %w", err)
	}

	roleIDs := make([]int64, 0, len(roles))
	for _, role := range roles {
		roleIDs = append(roleIDs, role.ID)
	}

	topicSet, err := v.source.TopicIDsForRoles(ctx, roleIDs)
	if err != nil {
		return nil, err
	}

	// Non-private topics are open to any participant when the
	// access-level gate is on. Non-participants get nothing.
	if v.policy.AccessLevels && len(roles) > 0 {
		publicIDs, err := v.source.PublicTopicIDs(ctx, spaceID)
		if err != nil {
			return nil, err
		}
		for _, id := range publicIDs {
			topicSet[id] = struct{}{}
		}
	}

	return topicSet, nil
}

// CanAccessTopic reports whether the user may operate on the topic. The
// topic must belong to the given space; a topic in another space is
// ErrNotFound regardless of bindings.
func (v *TopicVisibility) CanAccessTopic(ctx context.Context, userID, spaceID, topicID int64) (bool, error) {
	topicSpaceID, accessLevel, err := v.source.TopicSpace(ctx, topicID)
	if err != nil {
		return false, err
	}
	if topicSpaceID != spaceID {
		return false, fmt.Errorf("topic %d not in space %d: %w", topicID, spaceID, ErrNotFound)
	}

	roles, err := v.source.RolesOf(ctx, userID, spaceID)
	if err != nil {
		return false, fmt.Errorf("failed to resolve roles: %w", err)
	}

	if v.policy.AccessLevels && accessLevel != "" && accessLevel != AccessPrivate {
		// Any participant may see a non-private topic.
		return len(roles) > 0, nil
	}

	roleIDs := make([]int64, 0, len(roles))
	for _, role := range roles {
		roleIDs = append(roleIDs, role.ID)
	}
	bound, err := v.source.TopicIDsForRoles(ctx, roleIDs)
	if err != nil {
		return false, err
	}
	if _, ok := bound[topicID]; ok {
		return true, nil
	}

	if v.policy.UserGrants {
		return v.source.HasUserTopicReadGrant(ctx, userID, topicID)
	}
	return false, nil
}

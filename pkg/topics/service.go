package topics

import (
	"context"
	"fmt"
	"strings"

	"github.com/quillnote/quill/pkg/audit"
	"github.com/quillnote/quill/pkg/observability"
	"github.com/quillnote/quill/pkg/rbac"
)

const maxNameLength = 100

// Service orchestrates topic lifecycle. Every read goes through the
// visibility resolver; every write goes through the permission resolver
// and then the visibility resolver, so a permission alone never opens a
// topic the actor cannot see.
type Service struct {
	store      *Store
	rbacStore  *rbac.Store
	resolver   rbac.PermissionResolver
	visibility *rbac.TopicVisibility
	recorder   audit.Recorder
	logger     *observability.Logger
}

// NewService creates the topic service.
func NewService(
	store *Store,
	rbacStore *rbac.Store,
	resolver rbac.PermissionResolver,
	visibility *rbac.TopicVisibility,
	recorder audit.Recorder,
	logger *observability.Logger,
) *Service {
	return &Service{
		store:      store,
		rbacStore:  rbacStore,
		resolver:   resolver,
		visibility: visibility,
		recorder:   recorder,
		logger:     logger,
	}
}

func (s *Service) requirePermission(ctx context.Context, userID, spaceID int64, permission string) error {
	allowed, err := s.resolver.HasPermission(ctx, userID, spaceID, permission)
	if err != nil {
		return fmt.Errorf("failed to check %s: %w", permission, err)
	}
	if !allowed {
		return fmt.Errorf("%s required: %w", permission, rbac.ErrForbidden)
	}
	return nil
}

func (s *Service) requireTopicAccess(ctx context.Context, userID, spaceID, topicID int64) error {
	visible, err := s.visibility.CanAccessTopic(ctx, userID, spaceID, topicID)
	if err != nil {
		return err
	}
	if !visible {
		return fmt.Errorf("topic %d is not visible to user %d: %w", topicID, userID, rbac.ErrForbidden)
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, entry *audit.Entry) {
	if err := s.recorder.Record(ctx, entry); err != nil {
		s.logger.WithError(err).WithField("action", string(entry.Action)).Warn("failed to record audit entry")
	}
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("name is required: %w", rbac.ErrInvalidRequest)
	}
	if len(name) > maxNameLength {
		return "", fmt.Errorf("name exceeds %d characters: %w", maxNameLength, rbac.ErrInvalidRequest)
	}
	return name, nil
}

func validateAccessLevel(level string) error {
	switch level {
	case "", rbac.AccessPublic, rbac.AccessPrivate:
		return nil
	}
	return fmt.Errorf("access level must be %q or %q: %w", rbac.AccessPublic, rbac.AccessPrivate, rbac.ErrInvalidRequest)
}

// CreateTopic creates a topic and binds it to the owner role and the
// creator's role in one transaction, so the topic is visible to its
// creator the moment it exists. Requires CREATE_TOPICS.
func (s *Service) CreateTopic(ctx context.Context, actorID, spaceID int64, req CreateTopicRequest) (*Topic, error) {
	name, err := validateName(req.Name)
	if err != nil {
		return nil, err
	}
	if err := validateAccessLevel(req.AccessLevel); err != nil {
		return nil, err
	}
	if err := s.requirePermission(ctx, actorID, spaceID, rbac.PermCreateTopics); err != nil {
		return nil, err
	}

	ownerRole, err := s.rbacStore.GetRoleByName(ctx, spaceID, rbac.RoleOwner)
	if err != nil {
		return nil, err
	}
	bindRoleIDs := []int64{ownerRole.ID}

	actorRole, err := s.rbacStore.RoleOf(ctx, actorID, spaceID)
	if err != nil {
		return nil, err
	}
	if actorRole != nil && actorRole.ID != ownerRole.ID {
		bindRoleIDs = append(bindRoleIDs, actorRole.ID)
	}

	topic, err := s.store.CreateTopic(ctx, spaceID, name, req.AccessLevel, bindRoleIDs)
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, &audit.Entry{
		ActorID: actorID,
		SpaceID: &spaceID,
		Action:  audit.ActionTopicCreate,
		Detail:  map[string]interface{}{"topic_id": topic.ID, "name": topic.Name},
	})
	return topic, nil
}

// GetTopic returns a topic the actor can see.
func (s *Service) GetTopic(ctx context.Context, actorID, spaceID, topicID int64) (*Topic, error) {
	if err := s.requireTopicAccess(ctx, actorID, spaceID, topicID); err != nil {
		return nil, err
	}
	return s.store.GetTopic(ctx, topicID)
}

// ListTopics lists the topics of a space the actor can see. An actor
// with no visible topics gets an empty list, not an error.
func (s *Service) ListTopics(ctx context.Context, actorID, spaceID int64) ([]Topic, error) {
	accessible, err := s.visibility.AccessibleTopics(ctx, actorID, spaceID)
	if err != nil {
		return nil, err
	}
	if len(accessible) == 0 {
		return []Topic{}, nil
	}

	all, err := s.store.ListTopics(ctx, spaceID)
	if err != nil {
		return nil, err
	}

	visible := make([]Topic, 0, len(all))
	for _, topic := range all {
		if _, ok := accessible[topic.ID]; ok {
			visible = append(visible, topic)
		}
	}
	return visible, nil
}

// UpdateTopic renames a topic and/or changes its access level. Requires
// EDIT_TOPICS and visibility of the topic.
func (s *Service) UpdateTopic(ctx context.Context, actorID, spaceID, topicID int64, req UpdateTopicRequest) (*Topic, error) {
	if req.Name != nil {
		name, err := validateName(*req.Name)
		if err != nil {
			return nil, err
		}
		req.Name = &name
	}
	if req.AccessLevel != nil {
		if err := validateAccessLevel(*req.AccessLevel); err != nil {
			return nil, err
		}
	}

	if err := s.requirePermission(ctx, actorID, spaceID, rbac.PermEditTopics); err != nil {
		return nil, err
	}
	if err := s.requireTopicAccess(ctx, actorID, spaceID, topicID); err != nil {
		return nil, err
	}

	if err := s.store.UpdateTopic(ctx, topicID, req.Name, req.AccessLevel); err != nil {
		return nil, err
	}

	s.recordAudit(ctx, &audit.Entry{
		ActorID: actorID,
		SpaceID: &spaceID,
		Action:  audit.ActionTopicUpdate,
		Detail:  map[string]interface{}{"topic_id": topicID},
	})
	return s.store.GetTopic(ctx, topicID)
}

// DeleteTopic soft-deletes a topic. Requires DELETE_TOPICS and
// visibility of the topic. Notes under the topic stay in place; they
// simply stop appearing in any listing until the topic is restored.
func (s *Service) DeleteTopic(ctx context.Context, actorID, spaceID, topicID int64) error {
	if err := s.requirePermission(ctx, actorID, spaceID, rbac.PermDeleteTopics); err != nil {
		return err
	}
	if err := s.requireTopicAccess(ctx, actorID, spaceID, topicID); err != nil {
		return err
	}

	if err := s.store.SoftDeleteTopic(ctx, topicID); err != nil {
		return err
	}

	s.recordAudit(ctx, &audit.Entry{
		ActorID: actorID,
		SpaceID: &spaceID,
		Action:  audit.ActionTopicDelete,
		Detail:  map[string]interface{}{"topic_id": topicID},
	})
	return nil
}

// RestoreTopic undoes a soft delete. Requires DELETE_TOPICS. Visibility
// cannot be checked through the normal path while the topic is deleted,
// so the permission check carries the decision alone.
func (s *Service) RestoreTopic(ctx context.Context, actorID, spaceID, topicID int64) error {
	if err := s.requirePermission(ctx, actorID, spaceID, rbac.PermDeleteTopics); err != nil {
		return err
	}

	if err := s.store.RestoreTopic(ctx, topicID, spaceID); err != nil {
		return err
	}

	s.recordAudit(ctx, &audit.Entry{
		ActorID: actorID,
		SpaceID: &spaceID,
		Action:  audit.ActionTopicUpdate,
		Detail:  map[string]interface{}{"topic_id": topicID, "restored": true},
	})
	return nil
}

// GrantTopicRead adds a direct per-user read grant on a topic. Requires
// CHANGE_USER_ROLES in the topic's space.
func (s *Service) GrantTopicRead(ctx context.Context, actorID, spaceID, topicID, userID int64) error {
	if err := s.requirePermission(ctx, actorID, spaceID, rbac.PermChangeUserRoles); err != nil {
		return err
	}

	spaceOfTopic, _, err := s.rbacStore.TopicSpace(ctx, topicID)
	if err != nil {
		return err
	}
	if spaceOfTopic != spaceID {
		return fmt.Errorf("topic %d not in space %d: %w", topicID, spaceID, rbac.ErrNotFound)
	}

	if err := s.rbacStore.GrantUserTopicRead(ctx, userID, topicID); err != nil {
		return err
	}

	s.recordAudit(ctx, &audit.Entry{
		ActorID:  actorID,
		TargetID: &userID,
		SpaceID:  &spaceID,
		Action:   audit.ActionGrantTopicRead,
		Detail:   map[string]interface{}{"topic_id": topicID},
	})
	return nil
}

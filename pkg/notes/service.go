package notes

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/quillnote/quill/pkg/observability"
	"github.com/quillnote/quill/pkg/rbac"
)

const (
	maxTextLength = 10000

	parentPreviewLength = 100

	defaultPageSize = 20
	maxPageSize     = 100
)

// Service orchestrates note operations. Authorization is two-layered:
// the permission resolver answers the action check in the note's space,
// and the visibility resolver bounds which topics the actor can reach.
type Service struct {
	store      *Store
	rbacStore  *rbac.Store
	resolver   rbac.PermissionResolver
	visibility *rbac.TopicVisibility
	logger     *observability.Logger
}

// NewService creates the note service.
func NewService(
	store *Store,
	rbacStore *rbac.Store,
	resolver rbac.PermissionResolver,
	visibility *rbac.TopicVisibility,
	logger *observability.Logger,
) *Service {
	return &Service{
		store:      store,
		rbacStore:  rbacStore,
		resolver:   resolver,
		visibility: visibility,
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

func validateText(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("text is required: %w", rbac.ErrInvalidRequest)
	}
	if len(text) > maxTextLength {
		return "", fmt.Errorf("text exceeds %d characters: %w", maxTextLength, rbac.ErrInvalidRequest)
	}
	return text, nil
}

// CreateNote creates a note. The topic may come from the request or be
// derived from the parent note; when both are present they must agree.
// Requires CREATE_NOTES in the topic's space and visibility of the
// topic.
func (s *Service) CreateNote(ctx context.Context, actorID int64, req CreateNoteRequest) (*EnrichedNote, error) {
	text, err := validateText(req.Text)
	if err != nil {
		return nil, err
	}

	topicID := req.TopicID
	if req.ParentID != nil {
		parent, err := s.store.GetNote(ctx, *req.ParentID)
		if err != nil {
			return nil, err
		}
		if topicID != 0 && topicID != parent.TopicID {
			return nil, fmt.Errorf("parent note belongs to topic %d, not %d: %w",
				parent.TopicID, topicID, rbac.ErrInvalidRequest)
		}
		topicID = parent.TopicID
	}
	if topicID == 0 {
		return nil, fmt.Errorf("topic_id or parent_id is required: %w", rbac.ErrInvalidRequest)
	}

	spaceID, _, err := s.rbacStore.TopicSpace(ctx, topicID)
	if err != nil {
		return nil, err
	}
	if err := s.requirePermission(ctx, actorID, spaceID, rbac.PermCreateNotes); err != nil {
		return nil, err
	}
	if err := s.requireTopicAccess(ctx, actorID, spaceID, topicID); err != nil {
		return nil, err
	}

	note := &Note{Text: text, UserID: actorID, TopicID: topicID, ParentID: req.ParentID}
	if err := s.store.CreateNote(ctx, note, req.Tags); err != nil {
		return nil, err
	}

	enriched, err := s.enrich(ctx, []Note{*note})
	if err != nil {
		return nil, err
	}
	return &enriched[0], nil
}

// GetNote returns an enriched note. Requires READ_NOTES in the note's
// space and visibility of its topic.
func (s *Service) GetNote(ctx context.Context, actorID, noteID int64) (*EnrichedNote, error) {
	note, err := s.store.GetNote(ctx, noteID)
	if err != nil {
		return nil, err
	}

	spaceID, _, err := s.rbacStore.TopicSpace(ctx, note.TopicID)
	if err != nil {
		return nil, err
	}
	if err := s.requirePermission(ctx, actorID, spaceID, rbac.PermReadNotes); err != nil {
		return nil, err
	}
	if err := s.requireTopicAccess(ctx, actorID, spaceID, note.TopicID); err != nil {
		return nil, err
	}

	enriched, err := s.enrich(ctx, []Note{*note})
	if err != nil {
		return nil, err
	}
	return &enriched[0], nil
}

// UpdateNote edits a note's text and/or tags. The author may always edit
// their own note; anyone else needs EDIT_NOTES. Both paths still require
// visibility of the note's topic.
func (s *Service) UpdateNote(ctx context.Context, actorID, noteID int64, req UpdateNoteRequest) (*EnrichedNote, error) {
	if req.Text != nil {
		text, err := validateText(*req.Text)
		if err != nil {
			return nil, err
		}
		req.Text = &text
	}

	note, err := s.store.GetNote(ctx, noteID)
	if err != nil {
		return nil, err
	}

	spaceID, _, err := s.rbacStore.TopicSpace(ctx, note.TopicID)
	if err != nil {
		return nil, err
	}
	if note.UserID != actorID {
		if err := s.requirePermission(ctx, actorID, spaceID, rbac.PermEditNotes); err != nil {
			return nil, err
		}
	}
	if err := s.requireTopicAccess(ctx, actorID, spaceID, note.TopicID); err != nil {
		return nil, err
	}

	if req.Text != nil {
		if err := s.store.UpdateNoteText(ctx, noteID, *req.Text); err != nil {
			return nil, err
		}
	}
	if req.Tags != nil {
		if err := s.store.ReplaceNoteTags(ctx, noteID, *req.Tags); err != nil {
			return nil, err
		}
	}

	return s.GetNote(ctx, actorID, noteID)
}

// DeleteNote soft-deletes a note. The author may always delete their own
// note; anyone else needs DELETE_NOTES. Both paths require visibility.
func (s *Service) DeleteNote(ctx context.Context, actorID, noteID int64) error {
	note, err := s.store.GetNote(ctx, noteID)
	if err != nil {
		return err
	}

	spaceID, _, err := s.rbacStore.TopicSpace(ctx, note.TopicID)
	if err != nil {
		return err
	}
	if note.UserID != actorID {
		if err := s.requirePermission(ctx, actorID, spaceID, rbac.PermDeleteNotes); err != nil {
			return err
		}
	}
	if err := s.requireTopicAccess(ctx, actorID, spaceID, note.TopicID); err != nil {
		return err
	}

	return s.store.SoftDeleteNote(ctx, noteID)
}

// RestoreNote undoes a soft delete. Requires EDIT_NOTES in the note's
// space and visibility of its topic.
func (s *Service) RestoreNote(ctx context.Context, actorID, noteID int64) error {
	note, err := s.store.GetNoteAny(ctx, noteID)
	if err != nil {
		return err
	}

	spaceID, _, err := s.rbacStore.TopicSpace(ctx, note.TopicID)
	if err != nil {
		return err
	}
	if err := s.requirePermission(ctx, actorID, spaceID, rbac.PermEditNotes); err != nil {
		return err
	}
	if err := s.requireTopicAccess(ctx, actorID, spaceID, note.TopicID); err != nil {
		return err
	}

	return s.store.RestoreNote(ctx, noteID)
}

// ListNotes resolves a filtered, paginated note listing for the actor.
//
// The scope resolves in a fixed order: the space filter anchors directly;
// failing that, a parent note anchors through its topic; with neither the
// request is ambiguous and rejected. READ_NOTES is checked in the
// effective space, then the actor's accessible topic set bounds the
// query. An explicit topic filter must be in the space and in the
// accessible set. An empty accessible set returns an empty page, not an
// error.
func (s *Service) ListNotes(ctx context.Context, actorID int64, filters Filters) (*ListResult, error) {
	if filters.ParentID != nil && filters.TopLevelOnly {
		return nil, fmt.Errorf("parent_id and top_level_only are contradictory: %w", rbac.ErrInvalidRequest)
	}

	spaceID, err := s.resolveScope(ctx, filters)
	if err != nil {
		return nil, err
	}

	if err := s.requirePermission(ctx, actorID, spaceID, rbac.PermReadNotes); err != nil {
		return nil, err
	}

	accessible, err := s.visibility.AccessibleTopics(ctx, actorID, spaceID)
	if err != nil {
		return nil, err
	}

	var topicIDs []int64
	if filters.TopicID != nil {
		topicSpaceID, _, err := s.rbacStore.TopicSpace(ctx, *filters.TopicID)
		if err != nil {
			return nil, err
		}
		if topicSpaceID != spaceID {
			return nil, fmt.Errorf("topic %d is not in space %d: %w", *filters.TopicID, spaceID, rbac.ErrInvalidRequest)
		}
		if _, ok := accessible[*filters.TopicID]; !ok {
			return nil, fmt.Errorf("topic %d is not visible: %w", *filters.TopicID, rbac.ErrForbidden)
		}
		topicIDs = []int64{*filters.TopicID}
	} else {
		topicIDs = make([]int64, 0, len(accessible))
		for id := range accessible {
			topicIDs = append(topicIDs, id)
		}
		sort.Slice(topicIDs, func(i, j int) bool { return topicIDs[i] < topicIDs[j] })
	}

	if len(topicIDs) == 0 {
		return &ListResult{Notes: []EnrichedNote{}, Total: 0}, nil
	}

	page := filters.Page
	if page < 1 {
		page = 1
	}
	pageSize := filters.PageSize
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	items, total, err := s.store.ListNotes(ctx, listQuery{
		topicIDs:      topicIDs,
		parentID:      filters.ParentID,
		topLevelOnly:  filters.TopLevelOnly,
		tags:          filters.Tags,
		createdBefore: filters.CreatedBefore,
		limit:         pageSize,
		offset:        (page - 1) * pageSize,
	})
	if err != nil {
		return nil, err
	}

	enriched, err := s.enrich(ctx, items)
	if err != nil {
		return nil, err
	}
	return &ListResult{Notes: enriched, Total: total}, nil
}

// resolveScope pins the effective space for a listing.
func (s *Service) resolveScope(ctx context.Context, filters Filters) (int64, error) {
	if filters.SpaceID != nil {
		if filters.ParentID != nil {
			// Both anchors supplied: they must agree.
			parent, err := s.store.GetNote(ctx, *filters.ParentID)
			if err != nil {
				return 0, err
			}
			parentSpaceID, _, err := s.rbacStore.TopicSpace(ctx, parent.TopicID)
			if err != nil {
				return 0, err
			}
			if parentSpaceID != *filters.SpaceID {
				return 0, fmt.Errorf("parent note is not in space %d: %w", *filters.SpaceID, rbac.ErrInvalidRequest)
			}
		}
		return *filters.SpaceID, nil
	}

	if filters.ParentID != nil {
		parent, err := s.store.GetNote(ctx, *filters.ParentID)
		if err != nil {
			return 0, err
		}
		spaceID, _, err := s.rbacStore.TopicSpace(ctx, parent.TopicID)
		if err != nil {
			return 0, err
		}
		return spaceID, nil
	}

	return 0, fmt.Errorf("space_id or parent_id is required: %w", rbac.ErrInvalidRequest)
}

// enrich expands a page of notes with tag names, parent previews and
// reply counts. One query per concern, run concurrently over the batch.
func (s *Service) enrich(ctx context.Context, items []Note) ([]EnrichedNote, error) {
	if len(items) == 0 {
		return []EnrichedNote{}, nil
	}

	noteIDs := make([]int64, 0, len(items))
	parentIDSet := make(map[int64]struct{})
	for _, note := range items {
		noteIDs = append(noteIDs, note.ID)
		if note.ParentID != nil {
			parentIDSet[*note.ParentID] = struct{}{}
		}
	}
	parentIDs := make([]int64, 0, len(parentIDSet))
	for id := range parentIDSet {
		parentIDs = append(parentIDs, id)
	}

	var (
		tags        map[int64][]string
		parentTexts map[int64]string
		replies     map[int64]int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tags, err = s.store.TagsForNotes(gctx, noteIDs)
		return err
	})
	g.Go(func() error {
		var err error
		parentTexts, err = s.store.ParentTexts(gctx, parentIDs)
		return err
	})
	g.Go(func() error {
		var err error
		replies, err = s.store.ReplyCounts(gctx, noteIDs)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := make([]EnrichedNote, 0, len(items))
	for _, note := range items {
		enriched := EnrichedNote{
			Note:       note,
			Tags:       tags[note.ID],
			ReplyCount: replies[note.ID],
		}
		if enriched.Tags == nil {
			enriched.Tags = []string{}
		}
		if note.ParentID != nil {
			enriched.ParentPreview = preview(parentTexts[*note.ParentID])
		}
		result = append(result, enriched)
	}
	return result, nil
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= parentPreviewLength {
		return text
	}
	return string(runes[:parentPreviewLength])
}

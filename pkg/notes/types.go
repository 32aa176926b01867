package notes

import "time"

// Note is a single note row. The space is reached transitively through
// the topic.
type Note struct {
	ID         int64     `json:"id"`
	Text       string    `json:"text"`
	UserID     int64     `json:"user_id"`
	TopicID    int64     `json:"topic_id"`
	ParentID   *int64    `json:"parent_id,omitempty"`
	IsDeleted  bool      `json:"is_deleted"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// EnrichedNote is a note expanded for presentation.
type EnrichedNote struct {
	Note
	Tags          []string `json:"tags"`
	ParentPreview string   `json:"parent_preview,omitempty"`
	ReplyCount    int64    `json:"reply_count"`
}

// CreateNoteRequest is the payload for creating a note. TopicID may be
// omitted when ParentID is set; the parent's topic is used. When both are
// set they must agree.
type CreateNoteRequest struct {
	Text     string   `json:"text"`
	TopicID  int64    `json:"topic_id,omitempty"`
	ParentID *int64   `json:"parent_id,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// UpdateNoteRequest is the payload for editing a note. Nil fields are
// left untouched.
type UpdateNoteRequest struct {
	Text *string   `json:"text,omitempty"`
	Tags *[]string `json:"tags,omitempty"`
}

// Filters narrows a note listing. SpaceID or ParentID must anchor the
// scope; everything else is optional.
type Filters struct {
	SpaceID       *int64     `json:"space_id,omitempty"`
	TopicID       *int64     `json:"topic_id,omitempty"`
	ParentID      *int64     `json:"parent_id,omitempty"`
	Tags          []string   `json:"tags,omitempty"`
	CreatedBefore *time.Time `json:"created_before,omitempty"`
	TopLevelOnly  bool       `json:"top_level_only,omitempty"`
	Page          int        `json:"page,omitempty"`
	PageSize      int        `json:"page_size,omitempty"`
}

// ListResult is one page of enriched notes plus the unpaginated total.
type ListResult struct {
	Notes []EnrichedNote `json:"notes"`
	Total int64          `json:"total"`
}

package topics

import "time"

// Topic groups notes inside a space and carries an optional access
// level. An empty access level means visibility is decided purely by
// role bindings.
type Topic struct {
	ID          int64     `json:"id"`
	SpaceID     int64     `json:"space_id"`
	Name        string    `json:"name"`
	AccessLevel string    `json:"access_level,omitempty"`
	IsDeleted   bool      `json:"is_deleted"`
	CreatedAt   time.Time `json:"created_at"`
	ModifiedAt  time.Time `json:"modified_at"`
}

// CreateTopicRequest creates a topic.
type CreateTopicRequest struct {
	Name        string `json:"name"`
	AccessLevel string `json:"access_level,omitempty"`
}

// UpdateTopicRequest renames a topic and/or changes its access level.
type UpdateTopicRequest struct {
	Name        *string `json:"name,omitempty"`
	AccessLevel *string `json:"access_level,omitempty"`
}

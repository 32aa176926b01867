package audit

import "time"

// Action identifies what kind of change an entry records.
type Action string

const (
	ActionRoleAssign       Action = "role.assign"
	ActionRoleRemove       Action = "role.remove"
	ActionRoleCreate       Action = "role.create"
	ActionRoleUpdate       Action = "role.update"
	ActionRoleTopicsUpdate Action = "role.topics_update"

	ActionParticipantAdd Action = "participant.add"

	ActionSpaceCreate  Action = "space.create"
	ActionSpaceUpdate  Action = "space.update"
	ActionSpaceDelete  Action = "space.delete"
	ActionSpaceRestore Action = "space.restore"

	ActionTopicCreate Action = "topic.create"
	ActionTopicUpdate Action = "topic.update"
	ActionTopicDelete Action = "topic.delete"

	ActionGrantSpacePermission Action = "grant.space_permission"
	ActionGrantTopicRead       Action = "grant.topic_read"
)

// Entry is a single audit record. ID is assigned on write.
type Entry struct {
	ID        string                 `json:"id"`
	ActorID   int64                  `json:"actor_id"`
	TargetID  *int64                 `json:"target_id,omitempty"`
	SpaceID   *int64                 `json:"space_id,omitempty"`
	Action    Action                 `json:"action"`
	Detail    map[string]interface{} `json:"detail,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

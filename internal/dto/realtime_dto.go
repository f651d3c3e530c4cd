package dto

import "encoding/json"

// Realtime event types pushed to connected space members.
const (
	EventCardCreated         = "card_created"
	EventCardUpdated         = "card_updated"
	EventCardMoved           = "card_moved"
	EventCardDeleted         = "card_deleted"
	EventTaskCreated         = "task_created"
	EventTaskUpdated         = "task_updated"
	EventTaskDeleted         = "task_deleted"
	EventCommentCreated      = "comment_created"
	EventCommentUpdated      = "comment_updated"
	EventCommentDeleted      = "comment_deleted"
	EventTagCreated          = "tag_created"
	EventTagUpdated          = "tag_updated"
	EventTagDeleted          = "tag_deleted"
	EventColumnCreated       = "column_created"
	EventColumnUpdated       = "column_updated"
	EventColumnDeleted       = "column_deleted"
	EventMemberAdded         = "member_added"
	EventNotificationCreated = "notification_created"
)

// RealtimeEvent is the flat message envelope sent over a live connection:
// the type discriminator plus the event's own fields at the top level.
type RealtimeEvent struct {
	Type   string
	Fields map[string]interface{}
}

// NewRealtimeEvent builds an envelope. A nil fields map is allowed.
func NewRealtimeEvent(eventType string, fields map[string]interface{}) RealtimeEvent {
	return RealtimeEvent{Type: eventType, Fields: fields}
}

// MarshalJSON flattens the fields alongside the type discriminator.
func (e RealtimeEvent) MarshalJSON() ([]byte, error) {
	payload := make(map[string]interface{}, len(e.Fields)+1)
	for key, value := range e.Fields {
		payload[key] = value
	}
	payload["type"] = e.Type
	return json.Marshal(payload)
}

// UnmarshalJSON restores the envelope from its flattened form.
func (e *RealtimeEvent) UnmarshalJSON(data []byte) error {
	var payload map[string]interface{}
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	if t, ok := payload["type"].(string); ok {
		e.Type = t
	}
	delete(payload, "type")
	e.Fields = payload
	return nil
}

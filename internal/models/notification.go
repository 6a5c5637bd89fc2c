package models

import "time"

// Notification types written by the rest of the application.
const (
	TypeFriendRequest = "friend_request"
	TypeSquadMessage  = "squad_message"
	TypeCheckResponse = "check_response"
)

// Notification is a row of the notifications table as the dispatcher reads it.
// At most one of the Related* fields is populated, depending on Type.
type Notification struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	Title            string     `json:"title"`
	Body             string     `json:"body"`
	Type             string     `json:"type"`
	RelatedSquadID   string     `json:"related_squad_id,omitempty"`
	RelatedCheckID   string     `json:"related_check_id,omitempty"`
	RelatedUserID    string     `json:"related_user_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	PushDispatchedAt *time.Time `json:"push_dispatched_at,omitempty"`
}

// RelatedID returns the first non-empty correlation id: squad, then check, then user.
func (n Notification) RelatedID() string {
	for _, id := range []string{n.RelatedSquadID, n.RelatedCheckID, n.RelatedUserID} {
		if id != "" {
			return id
		}
	}
	return ""
}

// Payload builds the outbound push payload for n.
func (n Notification) Payload() Payload {
	return Payload{
		Title:     n.Title,
		Body:      n.Body,
		Type:      n.Type,
		RelatedID: n.RelatedID(),
	}
}

// NotificationFilter selects not-yet-dispatched notifications for one
// correlation id. Exactly one of CheckID and SquadID is set.
type NotificationFilter struct {
	CheckID string
	SquadID string
	Since   *time.Time
}

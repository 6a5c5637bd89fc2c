package models

import "time"

// Subscription is one device/browser registration for a user.
// (UserID, Endpoint) is the natural key.
type Subscription struct {
	ID        int       `json:"id"`
	UserID    string    `json:"user_id"`
	Endpoint  string    `json:"endpoint"`
	P256dh    string    `json:"keys_p256dh"` // Mapped from keys.p256dh
	Auth      string    `json:"keys_auth"`   // Mapped from keys.auth
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Payload is the JSON body delivered to every push endpoint of a recipient.
type Payload struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	Type      string `json:"type"`
	RelatedID string `json:"relatedId,omitempty"`
}

// DispatchEvent is published after a notification has been fanned out.
type DispatchEvent struct {
	ID             string    `json:"id"`
	NotificationID string    `json:"notification_id,omitempty"`
	UserID         string    `json:"user_id"`
	Type           string    `json:"type"`
	Source         string    `json:"source"` // "webhook" or "batch"
	Sent           int       `json:"sent"`
	CreatedAt      time.Time `json:"created_at"`
}

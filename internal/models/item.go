package models

import "time"

// User is an account that owns items. Credentials live in the auth subsystem;
// only the fields the item handlers need are modeled here.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	IsAdmin   bool      `json:"is_admin"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Item is a to-do style record owned by exactly one user.
type Item struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Done        bool      `json:"done"`
	UserID      int64     `json:"user_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ItemBase is the creation payload. All fields are required; pointers let the
// binding layer tell "done": false apart from a missing field.
type ItemBase struct {
	Title       *string `json:"title" binding:"required"`
	Description *string `json:"description" binding:"required"`
	Done        *bool   `json:"done" binding:"required"`
}

// ItemUpdate is the patch payload. Nil fields are left unchanged. Title and
// description are also left unchanged when supplied empty; done applies
// whenever present, including false.
type ItemUpdate struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Done        *bool   `json:"done"`
}

// ItemEvent is the message published to Kafka after a successful write.
type ItemEvent struct {
	EventID    string    `json:"event_id"`
	Action     string    `json:"action"` // created, updated, deleted
	ItemID     int64     `json:"item_id"`
	UserID     int64     `json:"user_id"`
	ActorID    int64     `json:"actor_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

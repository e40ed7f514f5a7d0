package domain

import "time"

// AccessEntry is one member of the authorized set.
type AccessEntry struct {
	UserID int64 `bson:"user_id" json:"user_id"`
	Admin  bool  `bson:"admin" json:"admin"`
}

// Registration maps a chat caller to the display name they sent on first contact.
type Registration struct {
	UserID       int64     `bson:"user_id" json:"user_id"`
	DisplayName  string    `bson:"display_name" json:"display_name"`
	RegisteredAt time.Time `bson:"registered_at" json:"registered_at"`
}

package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// JournalEntry is one analysis result kept in the agent's short-lived journal.
type JournalEntry struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SessionID string             `bson:"session_id" json:"session_id"`
	UserID    string             `bson:"user_id" json:"user_id"`
	Channel   string             `bson:"channel" json:"channel"`
	Kind      string             `bson:"kind" json:"kind"`
	Type      string             `bson:"type" json:"type"`
	Payload   map[string]any     `bson:"payload" json:"payload"`

	ReceivedAt time.Time `bson:"received_at" json:"received_at"`
	ExpiresAt  time.Time `bson:"expires_at" json:"expires_at"` // for TTL index
}

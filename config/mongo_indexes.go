package config

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const JournalCollection = "analysis_journal"

// EnsureJournalIndexes creates the TTL and lookup indexes for the analysis
// journal.
func EnsureJournalIndexes(ctx context.Context, db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := db.Collection(JournalCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		// expire at expires_at (must be a Date)
		{
			Keys: bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().
				SetName("ttl_expires_at").
				SetExpireAfterSeconds(0),
		},
		{
			Keys:    bson.D{{Key: "session_id", Value: 1}, {Key: "received_at", Value: -1}},
			Options: options.Index().SetName("by_session_received"),
		},
		{
			Keys:    bson.D{{Key: "session_id", Value: 1}, {Key: "kind", Value: 1}},
			Options: options.Index().SetName("by_session_kind"),
		},
	})
	return err
}

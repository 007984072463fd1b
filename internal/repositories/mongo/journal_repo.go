package mongo

import (
	"context"
	"time"

	"github.com/yoockh/interviewstream/config"
	"github.com/yoockh/interviewstream/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type JournalRepository interface {
	Insert(ctx context.Context, e *models.JournalEntry) error
	ListBySession(ctx context.Context, sessionID string, limit int64) ([]models.JournalEntry, error)
}

type journalRepo struct {
	col *mongo.Collection
	ttl time.Duration
}

// NewJournalRepo stores entries that expire ttl after they are received.
func NewJournalRepo(db *mongo.Database, ttl time.Duration) JournalRepository {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &journalRepo{col: db.Collection(config.JournalCollection), ttl: ttl}
}

func (r *journalRepo) Insert(ctx context.Context, e *models.JournalEntry) error {
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = time.Now().UTC()
	}
	if e.ExpiresAt.IsZero() {
		e.ExpiresAt = e.ReceivedAt.Add(r.ttl)
	}
	_, err := r.col.InsertOne(ctx, e)
	return err
}

func (r *journalRepo) ListBySession(ctx context.Context, sessionID string, limit int64) ([]models.JournalEntry, error) {
	if limit <= 0 {
		limit = 200
	}

	cur, err := r.col.Find(ctx,
		bson.M{"session_id": sessionID},
		options.Find().
			SetSort(bson.D{{Key: "received_at", Value: -1}}).
			SetLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.JournalEntry
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

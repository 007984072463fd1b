package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/interviewstream/internal/logger"
	"github.com/yoockh/interviewstream/internal/models"
	mongorepo "github.com/yoockh/interviewstream/internal/repositories/mongo"
)

const sinkTimeout = 5 * time.Second

// AnalysisSink receives every analysis result of every live session.
type AnalysisSink interface {
	Record(ctx context.Context, r models.AnalysisResult) error
}

func AnalysisChannel(sessionID string) string { return "session:" + sessionID + ":analysis" }

// RedisPublisher fans results out on session:<id>:analysis.
type RedisPublisher struct {
	rdb *redis.Client
}

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

func (p *RedisPublisher) Record(ctx context.Context, r models.AnalysisResult) error {
	b, err := json.Marshal(r.Raw)
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, AnalysisChannel(r.SessionID), b).Err()
}

// JournalSink keeps results in the Mongo journal.
type JournalSink struct {
	repo mongorepo.JournalRepository
	now  func() time.Time
}

func NewJournalSink(repo mongorepo.JournalRepository) *JournalSink {
	return &JournalSink{repo: repo, now: time.Now}
}

func (s *JournalSink) Record(ctx context.Context, r models.AnalysisResult) error {
	return s.repo.Insert(ctx, &models.JournalEntry{
		SessionID:  r.SessionID,
		UserID:     r.UserID,
		Channel:    r.Channel,
		Kind:       string(r.Kind),
		Type:       r.Type,
		Payload:    r.Raw,
		ReceivedAt: s.now().UTC(),
	})
}

// fanOut returns a callback that hands r to every sink, logging failures.
// Results are stamped with the owning userID.
func fanOut(sinks []AnalysisSink, userID string, log logrus.FieldLogger) func(models.AnalysisResult) {
	log = logger.OrDiscard(log)
	return func(r models.AnalysisResult) {
		r.UserID = userID
		for _, s := range sinks {
			ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
			if err := s.Record(ctx, r); err != nil {
				log.WithError(err).WithFields(logrus.Fields{
					"session_id": r.SessionID,
					"type":       r.Type,
				}).Warn("analysis sink failed")
			}
			cancel()
		}
	}
}

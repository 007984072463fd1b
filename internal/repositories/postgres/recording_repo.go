package postgres

import (
	"context"

	"github.com/yoockh/interviewstream/internal/models"
	"gorm.io/gorm"
)

type RecordingRepository interface {
	Insert(ctx context.Context, f *models.RecordingFile) error
	ListBySession(ctx context.Context, sessionID string) ([]models.RecordingFile, error)
}

type recordingRepo struct {
	db *gorm.DB
}

func NewRecordingRepo(db *gorm.DB) RecordingRepository {
	return &recordingRepo{db: db}
}

// Migrate creates or updates the recording_files table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.RecordingFile{})
}

func (r *recordingRepo) Insert(ctx context.Context, f *models.RecordingFile) error {
	return r.db.WithContext(ctx).Create(f).Error
}

func (r *recordingRepo) ListBySession(ctx context.Context, sessionID string) ([]models.RecordingFile, error) {
	var rows []models.RecordingFile
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("upload_at DESC").
		Find(&rows).Error
	return rows, err
}

package models

import (
	"time"

	"gorm.io/datatypes"
)

type MediaKind string

const (
	MediaVideo MediaKind = "video"
	MediaAudio MediaKind = "audio"
)

// UploadAck is the backend's JSON acknowledgement of an uploaded artifact.
type UploadAck struct {
	FileName string         `json:"file_name,omitempty"`
	Location string         `json:"location,omitempty"`
	Raw      map[string]any `json:"raw,omitempty"`
}

// RecordingFile is the archive row written after a successful upload.
type RecordingFile struct {
	ID         string `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	SessionID  string `gorm:"column:session_id;type:text;index" json:"session_id"`
	ProducerID string `gorm:"column:producer_id;type:text;index" json:"producer_id"`
	Kind       string `gorm:"column:kind;type:text" json:"kind"`

	FileName    string `gorm:"column:file_name;type:text" json:"file_name"`
	Destination string `gorm:"column:destination;type:text" json:"destination"`
	Location    string `gorm:"column:location;type:text" json:"location"`
	FileSize    int64  `gorm:"column:file_size;type:bigint" json:"file_size"`
	MimeType    string `gorm:"column:mime_type;type:text" json:"mime_type"`
	ChunkCount  int    `gorm:"column:chunk_count;type:integer" json:"chunk_count"`

	Ack datatypes.JSON `gorm:"column:ack;type:jsonb" json:"ack,omitempty"`

	UploadAt time.Time `gorm:"column:upload_at;type:timestamptz" json:"upload_at"`
}

func (RecordingFile) TableName() string { return "recording_files" }

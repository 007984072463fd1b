package storage

import (
	"context"
	"io"

	"github.com/yoockh/interviewstream/internal/models"
)

// Upload is one finished recording on its way to a destination.
type Upload struct {
	SessionID   string
	ProducerID  string
	Kind        models.MediaKind
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Destination receives recording artifacts.
type Destination interface {
	Name() string
	Put(ctx context.Context, u Upload) (*models.UploadAck, error)
}

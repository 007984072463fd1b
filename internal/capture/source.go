package capture

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"sync"

	"github.com/yoockh/interviewstream/internal/utils"
)

// LatestFrame holds the most recent frame pushed by a producer.
// Snapshot returns ErrSourceNotReady until the first Update.
type LatestFrame struct {
	mu  sync.RWMutex
	img image.Image
}

func NewLatestFrame() *LatestFrame { return &LatestFrame{} }

func (l *LatestFrame) Update(img image.Image) {
	l.mu.Lock()
	l.img = img
	l.mu.Unlock()
}

func (l *LatestFrame) Snapshot(context.Context) (image.Image, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.img == nil {
		return nil, ErrSourceNotReady
	}
	return l.img, nil
}

const maxSnapshotBytes = 10 << 20

// HTTPSnapshotSource fetches one still image per Snapshot from a camera or
// screen-grab endpoint (JPEG or PNG).
type HTTPSnapshotSource struct {
	URL    string
	Client *http.Client
}

func NewHTTPSnapshotSource(url string, client *http.Client) *HTTPSnapshotSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSnapshotSource{URL: url, Client: client}
}

func (s *HTTPSnapshotSource) Snapshot(ctx context.Context) (image.Image, error) {
	const op = "HTTPSnapshotSource.Snapshot"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, "invalid snapshot url", err)
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "snapshot fetch failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, utils.E(utils.CodeUnavailable, op, fmt.Sprintf("snapshot status %d", resp.StatusCode), nil)
	}

	img, _, err := image.Decode(io.LimitReader(resp.Body, maxSnapshotBytes))
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "snapshot decode failed", err)
	}
	return img, nil
}

package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/yoockh/interviewstream/internal/models"
	"github.com/yoockh/interviewstream/internal/utils"
)

const maxErrorBody = 4 << 10

// HTTPDestination posts the artifact as multipart/form-data with the fields
// file, session_id and user_id.
type HTTPDestination struct {
	BaseURL   string
	VideoPath string
	AudioPath string
	Client    *http.Client
}

func NewHTTPDestination(baseURL string, client *http.Client) *HTTPDestination {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPDestination{
		BaseURL:   baseURL,
		VideoPath: "/media/upload/video",
		AudioPath: "/media/upload/audio",
		Client:    client,
	}
}

func (d *HTTPDestination) Name() string { return "http" }

func (d *HTTPDestination) endpoint(kind models.MediaKind) string {
	path := d.VideoPath
	if kind == models.MediaAudio {
		path = d.AudioPath
	}
	return strings.TrimRight(d.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

func (d *HTTPDestination) Put(ctx context.Context, u Upload) (*models.UploadAck, error) {
	const op = "HTTPDestination.Put"

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, u.FileName))
	h.Set("Content-Type", u.ContentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to build form", err)
	}
	if _, err := io.Copy(part, u.Body); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to copy artifact", err)
	}
	if err := w.WriteField("session_id", u.SessionID); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to build form", err)
	}
	if err := w.WriteField("user_id", u.ProducerID); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to build form", err)
	}
	if err := w.Close(); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to build form", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint(u.Kind), body)
	if err != nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, "invalid upload url", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := d.Client.Do(req)
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "upload request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, utils.E(utils.CodeUnavailable, op, "upload failed: "+errorText(resp), nil)
	}

	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil && err != io.EOF {
		return nil, utils.E(utils.CodeUnavailable, op, "invalid upload acknowledgement", err)
	}
	return &models.UploadAck{Location: location(raw), Raw: raw}, nil
}

func errorText(resp *http.Response) string {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if s := strings.TrimSpace(string(b)); s != "" {
		return s
	}
	return resp.Status
}

func location(raw map[string]any) string {
	for _, k := range []string{"location", "url", "file_url", "file_path", "path"} {
		if s, ok := raw[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

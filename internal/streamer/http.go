package streamer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/yoockh/interviewstream/config"
	"github.com/yoockh/interviewstream/internal/cache"
	"github.com/yoockh/interviewstream/internal/utils"
)

const maxResponseBody = 4 << 20

func joinURL(base, path string, segments ...string) string {
	u := strings.TrimRight(base, "/") + "/" + strings.Trim(path, "/")
	for _, s := range segments {
		u += "/" + url.PathEscape(s)
	}
	return u
}

// doJSON sends body (when non-nil) as JSON and decodes a JSON reply into dst.
func doJSON(ctx context.Context, client *http.Client, op, method, target string, body, dst any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return utils.E(utils.CodeInvalidArgument, op, "invalid request body", err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return utils.E(utils.CodeInvalidArgument, op, "invalid request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return utils.E(utils.CodeUnavailable, op, "request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return utils.E(utils.CodeUnavailable, op, "failed to read response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(raw))
		if msg == "" {
			msg = resp.Status
		}
		code := utils.CodeUnavailable
		if resp.StatusCode == http.StatusNotFound {
			code = utils.CodeNotFound
		}
		return utils.E(code, op, msg, nil)
	}
	if dst == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return utils.E(utils.CodeUnavailable, op, "invalid response body", err)
	}
	return nil
}

// SessionInsights fetches the aggregated insights of the connected session.
// Responses are cached for Analysis.InsightsTTL when a cache is configured.
func (c *Client) SessionInsights(ctx context.Context) (map[string]any, error) {
	const op = "Client.SessionInsights"

	sessionID := c.SessionID()
	if sessionID == "" {
		return nil, utils.E(utils.CodeFailedPrecondition, op, "not connected to a session", nil)
	}
	return c.Insights(ctx, sessionID)
}

// Insights fetches insights for any session id.
func (c *Client) Insights(ctx context.Context, sessionID string) (map[string]any, error) {
	const op = "Client.Insights"

	key := cache.InsightsKey(sessionID)
	if c.opts.Cache != nil {
		var cached map[string]any
		hit, err := c.opts.Cache.GetJSON(ctx, key, &cached)
		if err != nil {
			c.log.WithError(err).WithField("session_id", sessionID).Warn("insights cache read failed")
		}
		if hit {
			return cached, nil
		}
	}

	var out map[string]any
	target := joinURL(c.opts.Endpoints.HTTPBaseURL, c.opts.Endpoints.InsightsPath, sessionID)
	if err := doJSON(ctx, c.opts.HTTPClient, op, http.MethodGet, target, nil, &out); err != nil {
		return nil, err
	}

	if c.opts.Cache != nil && c.opts.Analysis.InsightsTTL > 0 {
		if err := c.opts.Cache.SetJSON(ctx, key, out, c.opts.Analysis.InsightsTTL); err != nil {
			c.log.WithError(err).WithField("session_id", sessionID).Warn("insights cache write failed")
		}
	}
	return out, nil
}

// MediaAPI wraps the backend's plain HTTP media endpoints.
type MediaAPI struct {
	endpoints config.Endpoints
	client    *http.Client
}

func NewMediaAPI(endpoints config.Endpoints, client *http.Client) *MediaAPI {
	if client == nil {
		client = http.DefaultClient
	}
	if endpoints.StreamStartPath == "" {
		endpoints.StreamStartPath = "/media/stream/start"
	}
	if endpoints.SessionFilesPath == "" {
		endpoints.SessionFilesPath = "/media/session"
	}
	return &MediaAPI{endpoints: endpoints, client: client}
}

type StartStreamRequest struct {
	SessionID  string `json:"session_id"`
	UserID     string `json:"user_id"`
	StreamType string `json:"stream_type"`
}

func (a *MediaAPI) StartStreamingSession(ctx context.Context, sessionID, userID, streamType string) (map[string]any, error) {
	const op = "MediaAPI.StartStreamingSession"

	if sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}
	if streamType == "" {
		streamType = "video"
	}

	var out map[string]any
	target := joinURL(a.endpoints.HTTPBaseURL, a.endpoints.StreamStartPath)
	err := doJSON(ctx, a.client, op, http.MethodPost, target, StartStreamRequest{
		SessionID:  sessionID,
		UserID:     userID,
		StreamType: streamType,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SessionFiles lists the files the backend stored for a session.
func (a *MediaAPI) SessionFiles(ctx context.Context, sessionID string) (map[string]any, error) {
	const op = "MediaAPI.SessionFiles"

	if sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}

	var out map[string]any
	target := joinURL(a.endpoints.HTTPBaseURL, a.endpoints.SessionFilesPath, sessionID, "files")
	if err := doJSON(ctx, a.client, op, http.MethodGet, target, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

package models

import (
	"encoding/json"
	"errors"
)

type AnalysisKind string

const (
	KindVideoAnalysis  AnalysisKind = "video_analysis"
	KindScreenAnalysis AnalysisKind = "screen_analysis"
	KindAudioAnalysis  AnalysisKind = "audio_analysis"
	KindInsight        AnalysisKind = "insight"
	KindStatus         AnalysisKind = "status"
	KindError          AnalysisKind = "error"
	KindUnknown        AnalysisKind = "unknown"
)

var knownKinds = map[string]AnalysisKind{
	string(KindVideoAnalysis):  KindVideoAnalysis,
	string(KindScreenAnalysis): KindScreenAnalysis,
	string(KindAudioAnalysis):  KindAudioAnalysis,
	string(KindInsight):        KindInsight,
	string(KindStatus):         KindStatus,
	string(KindError):          KindError,
}

// AnalysisResult is an inbound message from the analysis backend. Raw holds the
// payload verbatim; Kind is KindUnknown for types this client does not know.
type AnalysisResult struct {
	Kind      AnalysisKind   `json:"kind"`
	Type      string         `json:"type"`
	SessionID string         `json:"session_id,omitempty"`
	Channel   string         `json:"channel,omitempty"`
	Raw       map[string]any `json:"payload"`
	// UserID is the session owner, stamped before results reach sinks.
	UserID string `json:"-"`
}

var ErrNotAnObject = errors.New("analysis message is not a JSON object")

// ParseAnalysis decodes one wire message.
func ParseAnalysis(data []byte) (AnalysisResult, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return AnalysisResult{}, err
	}
	if raw == nil {
		return AnalysisResult{}, ErrNotAnObject
	}

	typ, _ := raw["type"].(string)
	kind, ok := knownKinds[typ]
	if !ok {
		kind = KindUnknown
	}
	out := AnalysisResult{Kind: kind, Type: typ, Raw: raw}
	if sid, ok := raw["session_id"].(string); ok {
		out.SessionID = sid
	}
	return out, nil
}

// Text returns a string field of the payload, or "".
func (r AnalysisResult) Text(key string) string {
	s, _ := r.Raw[key].(string)
	return s
}

package models

import (
	"encoding/json"
	"time"
)

// Outbound message types.
const (
	TypeVideoFrame  = "video_frame"
	TypeScreenShare = "screen_share"
	TypeAudioChunk  = "audio_chunk"
	TypeContext     = "context"
)

// TimestampLayout is ISO-8601 with milliseconds, UTC.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

func Timestamp(t time.Time) string { return t.UTC().Format(TimestampLayout) }

// FrameMessage is the wire shape for still frames and media chunks.
type FrameMessage struct {
	Type      string `json:"type"`
	Data      string `json:"data"` // base64, no data: prefix
	Timestamp string `json:"timestamp"`
	UserID    string `json:"user_id"`

	SaveFrame bool `json:"save_frame,omitempty"`
	SaveChunk bool `json:"save_chunk,omitempty"`
}

func NewFrameMessage(typ, data, userID string, at time.Time) FrameMessage {
	return FrameMessage{
		Type:      typ,
		Data:      data,
		Timestamp: Timestamp(at),
		UserID:    userID,
	}
}

// InterviewContext primes the remote analyzer before streaming begins.
type InterviewContext struct {
	JobTitle       string `json:"job_title,omitempty"`
	JobDescription string `json:"job_description,omitempty"`
	CompanyName    string `json:"company_name,omitempty"`
	ResumeText     string `json:"resume_text,omitempty"`
	CandidateID    string `json:"candidate_id,omitempty"`
	CandidateName  string `json:"candidate_name,omitempty"`
	InterviewType  string `json:"interview_type,omitempty"`

	// Extra is merged into the top level of the message.
	Extra map[string]any `json:"extra,omitempty"`
}

// ContextMessage is the one-shot "context" message sent on the video channel.
type ContextMessage struct {
	Context   InterviewContext
	Timestamp time.Time
}

func (m ContextMessage) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Context.Extra)+9)
	for k, v := range m.Context.Extra {
		out[k] = v
	}

	set := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	set("job_title", m.Context.JobTitle)
	set("job_description", m.Context.JobDescription)
	set("company_name", m.Context.CompanyName)
	set("resume_text", m.Context.ResumeText)
	set("candidate_id", m.Context.CandidateID)
	set("candidate_name", m.Context.CandidateName)
	set("interview_type", m.Context.InterviewType)

	out["type"] = TypeContext
	out["timestamp"] = Timestamp(m.Timestamp)
	return json.Marshal(out)
}

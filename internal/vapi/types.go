package vapi

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Flex holds a JSON scalar that Vapi sends as a string, a bool or a number
// depending on the rubric configured on the assistant.
type Flex string

// UnmarshalJSON accepts any JSON scalar and keeps its textual form
func (f *Flex) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = Flex(s)
		return nil
	}
	if string(data) == "null" {
		*f = ""
		return nil
	}
	*f = Flex(strings.TrimSpace(string(data)))
	return nil
}

// Customer is the remote party of a call
type Customer struct {
	Number string `json:"number,omitempty"`
	Name   string `json:"name,omitempty"`
}

// Analysis holds the post-call analysis Vapi attaches to ended calls
type Analysis struct {
	Summary           string `json:"summary,omitempty"`
	SuccessEvaluation Flex   `json:"successEvaluation,omitempty"`
}

// Artifact holds recordings and transcripts produced by a call
type Artifact struct {
	Transcript   string `json:"transcript,omitempty"`
	RecordingURL string `json:"recordingUrl,omitempty"`
}

// Call represents a call from the Vapi API. The duration fields only appear
// on some payloads (end-of-call reports); see LengthSeconds.
type Call struct {
	ID              string     `json:"id"`
	OrgID           string     `json:"orgId,omitempty"`
	Type            string     `json:"type,omitempty"`
	AssistantID     string     `json:"assistantId,omitempty"`
	PhoneNumberID   string     `json:"phoneNumberId,omitempty"`
	Customer        *Customer  `json:"customer,omitempty"`
	Status          string     `json:"status,omitempty"`
	EndedReason     string     `json:"endedReason,omitempty"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	EndedAt         *time.Time `json:"endedAt,omitempty"`
	CreatedAt       *time.Time `json:"createdAt,omitempty"`
	UpdatedAt       *time.Time `json:"updatedAt,omitempty"`
	Cost            float64    `json:"cost,omitempty"`
	Transcript      string     `json:"transcript,omitempty"`
	Summary         string     `json:"summary,omitempty"`
	RecordingURL    string     `json:"recordingUrl,omitempty"`
	Analysis        *Analysis  `json:"analysis,omitempty"`
	Artifact        *Artifact  `json:"artifact,omitempty"`
	DurationSeconds *float64   `json:"durationSeconds,omitempty"`
	DurationMs      *float64   `json:"durationMs,omitempty"`
	DurationMinutes *float64   `json:"durationMinutes,omitempty"`
}

// LengthSeconds returns the call length, trying each source in turn:
// durationSeconds, durationMs, durationMinutes, then endedAt - startedAt.
// Missing or negative values yield 0.
func (c *Call) LengthSeconds() float64 {
	switch {
	case c.DurationSeconds != nil && *c.DurationSeconds > 0:
		return *c.DurationSeconds
	case c.DurationMs != nil && *c.DurationMs > 0:
		return *c.DurationMs / 1000
	case c.DurationMinutes != nil && *c.DurationMinutes > 0:
		return *c.DurationMinutes * 60
	case c.StartedAt != nil && c.EndedAt != nil:
		if d := c.EndedAt.Sub(*c.StartedAt).Seconds(); d > 0 {
			return d
		}
	}
	return 0
}

// TranscriptText prefers the top-level transcript and falls back to the artifact
func (c *Call) TranscriptText() string {
	if c.Transcript != "" {
		return c.Transcript
	}
	if c.Artifact != nil {
		return c.Artifact.Transcript
	}
	return ""
}

// Recording prefers the top-level recording URL and falls back to the artifact
func (c *Call) Recording() string {
	if c.RecordingURL != "" {
		return c.RecordingURL
	}
	if c.Artifact != nil {
		return c.Artifact.RecordingURL
	}
	return ""
}

// SummaryText prefers the top-level summary and falls back to the analysis
func (c *Call) SummaryText() string {
	if c.Summary != "" {
		return c.Summary
	}
	if c.Analysis != nil {
		return c.Analysis.Summary
	}
	return ""
}

// Evaluation returns the raw success evaluation, if any
func (c *Call) Evaluation() string {
	if c.Analysis == nil {
		return ""
	}
	return string(c.Analysis.SuccessEvaluation)
}

// CustomerNumber returns the remote party's number, if known
func (c *Call) CustomerNumber() string {
	if c.Customer == nil {
		return ""
	}
	return c.Customer.Number
}

// failureReasons are substrings of endedReason values that mark a call as failed
var failureReasons = []string{"error", "failed", "fault", "no-answer", "busy", "did-not-answer", "voicemail"}

// IsSuccessful decides whether a call counts as successful. A success
// evaluation that parses as a verdict wins; otherwise an ended call whose
// ended reason is not a failure counts.
func (c *Call) IsSuccessful() bool {
	if verdict, ok := parseVerdict(c.Evaluation()); ok {
		return verdict
	}
	if c.Status != "ended" {
		return false
	}
	reason := strings.ToLower(c.EndedReason)
	for _, r := range failureReasons {
		if strings.Contains(reason, r) {
			return false
		}
	}
	return true
}

func parseVerdict(s string) (bool, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return false, false
	case "pass", "passed", "success", "successful", "yes":
		return true, true
	case "fail", "failed", "failure", "no":
		return false, true
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b, true
	}
	// numeric rubrics: 1-10 scale, 6 and above passes
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n >= 6, true
	}
	return false, false
}

// AssistantModel is the LLM configuration of an assistant
type AssistantModel struct {
	Provider string    `json:"provider,omitempty"`
	Model    string    `json:"model,omitempty"`
	Messages []Message `json:"messages,omitempty"`
}

// Message is a prompt message in an assistant model configuration
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AssistantVoice is the TTS configuration of an assistant
type AssistantVoice struct {
	Provider string `json:"provider,omitempty"`
	VoiceID  string `json:"voiceId,omitempty"`
}

// Assistant represents an assistant from the Vapi API
type Assistant struct {
	ID           string          `json:"id"`
	OrgID        string          `json:"orgId,omitempty"`
	Name         string          `json:"name"`
	FirstMessage string          `json:"firstMessage,omitempty"`
	Model        *AssistantModel `json:"model,omitempty"`
	Voice        *AssistantVoice `json:"voice,omitempty"`
	ServerURL    string          `json:"serverUrl,omitempty"`
	CreatedAt    *time.Time      `json:"createdAt,omitempty"`
	UpdatedAt    *time.Time      `json:"updatedAt,omitempty"`
}

// ModelName returns "provider/model" or whichever half is set
func (a *Assistant) ModelName() string {
	if a.Model == nil {
		return ""
	}
	if a.Model.Provider == "" {
		return a.Model.Model
	}
	if a.Model.Model == "" {
		return a.Model.Provider
	}
	return a.Model.Provider + "/" + a.Model.Model
}

// VoiceName returns "provider/voiceId" or whichever half is set
func (a *Assistant) VoiceName() string {
	if a.Voice == nil {
		return ""
	}
	if a.Voice.Provider == "" {
		return a.Voice.VoiceID
	}
	if a.Voice.VoiceID == "" {
		return a.Voice.Provider
	}
	return a.Voice.Provider + "/" + a.Voice.VoiceID
}

// AssistantRequest is the body of assistant create and update calls
type AssistantRequest struct {
	Name         string          `json:"name,omitempty"`
	FirstMessage string          `json:"firstMessage,omitempty"`
	Model        *AssistantModel `json:"model,omitempty"`
	Voice        *AssistantVoice `json:"voice,omitempty"`
	ServerURL    string          `json:"serverUrl,omitempty"`
}

// PhoneNumber represents a phone number from the Vapi API
type PhoneNumber struct {
	ID          string     `json:"id"`
	Number      string     `json:"number,omitempty"`
	Name        string     `json:"name,omitempty"`
	Provider    string     `json:"provider,omitempty"`
	AssistantID string     `json:"assistantId,omitempty"`
	Status      string     `json:"status,omitempty"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
}

// PhoneNumberRequest is the body of phone number create and update calls.
// AssistantID is a pointer so that an update can explicitly unassign.
type PhoneNumberRequest struct {
	Provider              string  `json:"provider,omitempty"`
	Number                string  `json:"number,omitempty"`
	Name                  string  `json:"name,omitempty"`
	AssistantID           *string `json:"assistantId,omitempty"`
	NumberDesiredAreaCode string  `json:"numberDesiredAreaCode,omitempty"`
	TwilioAccountSID      string  `json:"twilioAccountSid,omitempty"`
	TwilioAuthToken       string  `json:"twilioAuthToken,omitempty"`
}

// ListCallsParams filters a call listing
type ListCallsParams struct {
	AssistantID string
	Limit       int
	CreatedAtGt *time.Time
	CreatedAtLt *time.Time
}

// ServerMessage is the envelope Vapi posts to the assistant's server URL
type ServerMessage struct {
	Message struct {
		Type            string     `json:"type"`
		Call            *Call      `json:"call,omitempty"`
		EndedReason     string     `json:"endedReason,omitempty"`
		Transcript      string     `json:"transcript,omitempty"`
		Summary         string     `json:"summary,omitempty"`
		RecordingURL    string     `json:"recordingUrl,omitempty"`
		Cost            float64    `json:"cost,omitempty"`
		Analysis        *Analysis  `json:"analysis,omitempty"`
		Artifact        *Artifact  `json:"artifact,omitempty"`
		StartedAt       *time.Time `json:"startedAt,omitempty"`
		EndedAt         *time.Time `json:"endedAt,omitempty"`
		DurationSeconds *float64   `json:"durationSeconds,omitempty"`
		DurationMs      *float64   `json:"durationMs,omitempty"`
		DurationMinutes *float64   `json:"durationMinutes,omitempty"`
	} `json:"message"`
}

// EndOfCallReport is the server message type that carries a finished call
const EndOfCallReport = "end-of-call-report"

// server message types Vapi documents; anything else is reported as "other"
var messageTypes = map[string]bool{
	"assistant-request":            true,
	"conversation-update":          true,
	EndOfCallReport:                true,
	"function-call":                true,
	"hang":                         true,
	"knowledge-base-request":       true,
	"model-output":                 true,
	"phone-call-control":           true,
	"speech-update":                true,
	"status-update":                true,
	"tool-calls":                   true,
	"transcript":                   true,
	"transfer-destination-request": true,
	"transfer-update":              true,
	"user-interrupted":             true,
	"voice-input":                  true,
}

// TypeLabel is the message type when Vapi documents it, "other" otherwise.
// It keeps metric label values bounded.
func (m *ServerMessage) TypeLabel() string {
	if messageTypes[m.Message.Type] {
		return m.Message.Type
	}
	return "other"
}

// ReportedCall merges the end-of-call report fields into the embedded call so
// the result can be ingested like a call fetched from the API.
func (m *ServerMessage) ReportedCall() *Call {
	msg := m.Message
	if msg.Call == nil {
		return nil
	}
	call := *msg.Call
	if call.EndedReason == "" {
		call.EndedReason = msg.EndedReason
	}
	if call.Transcript == "" {
		call.Transcript = msg.Transcript
	}
	if call.Summary == "" {
		call.Summary = msg.Summary
	}
	if call.RecordingURL == "" {
		call.RecordingURL = msg.RecordingURL
	}
	if call.Cost == 0 {
		call.Cost = msg.Cost
	}
	if call.Analysis == nil {
		call.Analysis = msg.Analysis
	}
	if call.Artifact == nil {
		call.Artifact = msg.Artifact
	}
	if call.StartedAt == nil {
		call.StartedAt = msg.StartedAt
	}
	if call.EndedAt == nil {
		call.EndedAt = msg.EndedAt
	}
	if call.DurationSeconds == nil {
		call.DurationSeconds = msg.DurationSeconds
	}
	if call.DurationMs == nil {
		call.DurationMs = msg.DurationMs
	}
	if call.DurationMinutes == nil {
		call.DurationMinutes = msg.DurationMinutes
	}
	if call.Status == "" {
		call.Status = "ended"
	}
	return &call
}

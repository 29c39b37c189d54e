package callsync

import (
	"time"

	"mindforu/internal/analytics"
	"mindforu/internal/models"
	"mindforu/internal/vapi"
)

// ToModel converts a Vapi call into the stored document for the given assistant
func ToModel(c *vapi.Call, a *models.Assistant, syncedAt time.Time) *models.Call {
	call := &models.Call{
		VapiCallID:        c.ID,
		AssistantID:       a.ID,
		VapiAssistantID:   a.VapiAssistantID,
		UserID:            a.UserID,
		PhoneNumberID:     c.PhoneNumberID,
		CustomerNumber:    c.CustomerNumber(),
		Type:              c.Type,
		Status:            c.Status,
		EndedReason:       c.EndedReason,
		StartedAt:         utc(c.StartedAt),
		EndedAt:           utc(c.EndedAt),
		Duration:          analytics.Round2(c.LengthSeconds()),
		Cost:              c.Cost,
		Transcript:        c.TranscriptText(),
		Summary:           c.SummaryText(),
		RecordingURL:      c.Recording(),
		SuccessEvaluation: c.Evaluation(),
		Successful:        c.IsSuccessful(),
		SyncedAt:          syncedAt,
	}
	switch {
	case c.CreatedAt != nil:
		call.CreatedAt = c.CreatedAt.UTC()
	case c.StartedAt != nil:
		call.CreatedAt = c.StartedAt.UTC()
	}
	return call
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

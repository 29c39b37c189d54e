package analytics

import (
	"math"
	"time"

	"mindforu/internal/models"
	"mindforu/internal/store"
	"mindforu/internal/vapi"
)

// Summary is the headline numbers for a set of calls
type Summary struct {
	TotalCalls      int64      `json:"totalCalls"`
	SuccessfulCalls int64      `json:"successfulCalls"`
	TotalDuration   float64    `json:"totalDuration"`   // seconds
	TotalMinutes    float64    `json:"totalMinutes"`    // rounded to 2 decimals
	AverageDuration float64    `json:"averageDuration"` // seconds
	SuccessRate     float64    `json:"successRate"`     // percent
	TotalCost       float64    `json:"totalCost"`
	AverageCost     float64    `json:"averageCost"`
	LastCallAt      *time.Time `json:"lastCallAt,omitempty"`
}

// Average divides total by count, returning 0 for an empty set
func Average(total float64, count int64) float64 {
	if count <= 0 {
		return 0
	}
	return total / float64(count)
}

// Percentage returns part as a percentage of whole, 0 when whole is 0
func Percentage(part, whole int64) float64 {
	if whole <= 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}

// PercentChange is the relative change from prev to cur in percent. Growth
// from nothing counts as 100%.
func PercentChange(prev, cur float64) float64 {
	if prev == 0 {
		if cur > 0 {
			return 100
		}
		return 0
	}
	return (cur - prev) / math.Abs(prev) * 100
}

// Round2 rounds to two decimal places
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// SummaryFromTotals turns aggregation sums into display numbers
func SummaryFromTotals(t store.CallTotals) Summary {
	return Summary{
		TotalCalls:      t.Count,
		SuccessfulCalls: t.Successful,
		TotalDuration:   Round2(t.Duration),
		TotalMinutes:    Round2(t.Duration / 60),
		AverageDuration: Round2(Average(t.Duration, t.Count)),
		SuccessRate:     Round2(Percentage(t.Successful, t.Count)),
		TotalCost:       Round2(t.Cost),
		AverageCost:     Round2(Average(t.Cost, t.Count)),
		LastCallAt:      t.LastCallAt,
	}
}

// StatsFromTotals computes the statistics stored on an assistant
func StatsFromTotals(t store.CallTotals) models.AssistantStats {
	return models.AssistantStats{
		TotalCalls:      t.Count,
		TotalDuration:   Round2(t.Duration),
		AverageDuration: Round2(Average(t.Duration, t.Count)),
		SuccessfulCalls: t.Successful,
		SuccessRate:     Round2(Percentage(t.Successful, t.Count)),
		TotalCost:       Round2(t.Cost),
		LastCallAt:      t.LastCallAt,
	}
}

// TotalsFromCalls sums calls fetched straight from Vapi the same way the
// aggregation pipelines sum stored ones.
func TotalsFromCalls(calls []vapi.Call) store.CallTotals {
	var t store.CallTotals
	for i := range calls {
		c := &calls[i]
		t.Count++
		t.Duration += c.LengthSeconds()
		t.Cost += c.Cost
		if c.IsSuccessful() {
			t.Successful++
		}

		at := c.StartedAt
		if at == nil {
			at = c.CreatedAt
		}
		if at != nil && (t.LastCallAt == nil || at.After(*t.LastCallAt)) {
			v := *at
			t.LastCallAt = &v
		}
	}
	return t
}

// CountStatuses counts calls per status, grouping blanks under "unknown"
func CountStatuses(calls []vapi.Call) map[string]int64 {
	out := make(map[string]int64)
	for _, c := range calls {
		status := c.Status
		if status == "" {
			status = "unknown"
		}
		out[status]++
	}
	return out
}

// Summarize computes the headline numbers for calls fetched from Vapi
func Summarize(calls []vapi.Call) Summary {
	return SummaryFromTotals(TotalsFromCalls(calls))
}

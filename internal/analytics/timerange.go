package analytics

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"mindforu/internal/store"
)

// DefaultRange is used when a request names no range
const DefaultRange = "30d"

// Range is a half-open [From, To) reporting window. A nil From means "all time".
type Range struct {
	Label string     `json:"label"`
	From  *time.Time `json:"from,omitempty"`
	To    *time.Time `json:"to,omitempty"`
}

// ParseRange parses "all", "<n>d" or "<n>h" relative to now
func ParseRange(s string, now time.Time) (Range, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		s = DefaultRange
	}
	if s == "all" {
		return Range{Label: s}, nil
	}
	if len(s) < 2 {
		return Range{}, fmt.Errorf("invalid range %q", s)
	}

	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 || n > 3650 {
		return Range{}, fmt.Errorf("invalid range %q", s)
	}

	var from time.Time
	switch s[len(s)-1] {
	case 'd':
		from = now.AddDate(0, 0, -n)
	case 'h':
		from = now.Add(-time.Duration(n) * time.Hour)
	default:
		return Range{}, fmt.Errorf("invalid range %q", s)
	}
	to := now
	return Range{Label: s, From: &from, To: &to}, nil
}

// ExplicitRange builds a range from two dates in YYYY-MM-DD form. The end
// date is inclusive.
func ExplicitRange(fromStr, toStr string, loc *time.Location) (Range, error) {
	if loc == nil {
		loc = time.UTC
	}
	from, err := time.ParseInLocation("2006-01-02", fromStr, loc)
	if err != nil {
		return Range{}, fmt.Errorf("invalid from date: %w", err)
	}
	to, err := time.ParseInLocation("2006-01-02", toStr, loc)
	if err != nil {
		return Range{}, fmt.Errorf("invalid to date: %w", err)
	}
	to = to.AddDate(0, 0, 1)
	if !to.After(from) {
		return Range{}, fmt.Errorf("from must not be after to")
	}
	return Range{Label: "custom", From: &from, To: &to}, nil
}

// Bounded reports whether the range has a start
func (r Range) Bounded() bool {
	return r.From != nil && r.To != nil
}

// Previous returns the window of equal length immediately before r
func (r Range) Previous() (Range, bool) {
	if !r.Bounded() {
		return Range{}, false
	}
	length := r.To.Sub(*r.From)
	from := r.From.Add(-length)
	to := *r.From
	return Range{Label: "previous", From: &from, To: &to}, true
}

// Apply narrows a call filter to the range
func (r Range) Apply(f store.CallFilter) store.CallFilter {
	f.From = r.From
	f.To = r.To
	return f
}

// FillDays returns one bucket per calendar day of r in loc, keeping the
// values from buckets and zero-filling the gaps.
func FillDays(buckets []store.DayBucket, r Range, loc *time.Location) []store.DayBucket {
	if !r.Bounded() {
		return buckets
	}
	if loc == nil {
		loc = time.UTC
	}

	byDate := make(map[string]store.DayBucket, len(buckets))
	for _, b := range buckets {
		byDate[b.Date] = b
	}

	from := r.From.In(loc)
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, loc)
	end := r.To.In(loc)

	var out []store.DayBucket
	for day.Before(end) {
		key := day.Format("2006-01-02")
		if b, ok := byDate[key]; ok {
			out = append(out, b)
		} else {
			out = append(out, store.DayBucket{Date: key})
		}
		day = day.AddDate(0, 0, 1)
	}
	return out
}

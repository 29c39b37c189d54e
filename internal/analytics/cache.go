package analytics

import (
	"fmt"
	"strings"
	"time"

	"github.com/maypok86/otter"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EnableCache memoizes dashboards for ttl. Relative ranges ("30d") share an
// entry for the whole TTL, so a dashboard can lag new calls by up to ttl.
func (s *Service) EnableCache(capacity int, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if capacity <= 0 {
		capacity = 1000
	}
	cache, err := otter.MustBuilder[string, *Dashboard](capacity).
		WithTTL(ttl).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build dashboard cache: %w", err)
	}
	s.cache = &cache
	return nil
}

// Close releases the cache, if any
func (s *Service) Close() {
	if s.cache != nil {
		s.cache.Close()
	}
}

func dashboardKey(q DashboardQuery) string {
	var b strings.Builder
	fmt.Fprintf(&b, "u=%s;a=%s;s=%s;r=%s;",
		hexOrEmpty(q.Filter.UserID), hexOrEmpty(q.Filter.AssistantID), q.Filter.Status, q.Range.Label)
	if q.Range.Label == "custom" && q.Range.Bounded() {
		fmt.Fprintf(&b, "%d-%d;", q.Range.From.Unix(), q.Range.To.Unix())
	}
	if q.Location != nil {
		b.WriteString(q.Location.String())
	}
	return b.String()
}

func hexOrEmpty(id *primitive.ObjectID) string {
	if id == nil {
		return ""
	}
	return id.Hex()
}

func (s *Service) cached(q DashboardQuery) (*Dashboard, bool) {
	if s.cache == nil {
		return nil, false
	}
	return s.cache.Get(dashboardKey(q))
}

func (s *Service) remember(q DashboardQuery, d *Dashboard) {
	if s.cache != nil {
		s.cache.Set(dashboardKey(q), d)
	}
}

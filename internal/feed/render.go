package feed

import (
	"time"

	"github.com/neway-security/clocking-monitor/internal/model"
	"github.com/neway-security/clocking-monitor/internal/signals"
)

// Render projects a feed signal at now. Feed signals carry the source
// records only, so a cached one never holds labels from an earlier day.
// Signals of other kinds are returned unchanged.
func Render(s signals.Signal, now time.Time) signals.Signal {
	if s.Kind != signals.KindFeed {
		return s
	}
	records, ok := s.Data.([]model.EventRecord)
	if !ok {
		return s
	}
	s.Data = Project(records, now)
	return s
}

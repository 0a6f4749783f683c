package feed

import (
	"net/http"
	"strings"
	"time"

	"github.com/neway-security/clocking-monitor/internal/model"
)

const (
	timeLabelLayout     = "03:04:05 PM"
	dateTimeLabelLayout = "Jan 02, 2006 03:04:05 PM"
)

var dateLayouts = []string{"2006-01-02", http.TimeFormat, time.RFC1123, time.RFC3339}

// Project renders records at now. Records keep the service order.
func Project(records []model.EventRecord, now time.Time) model.EventFeedView {
	items := make([]model.FeedItem, 0, len(records))
	for _, record := range records {
		items = append(items, projectRecord(record, now))
	}
	return model.EventFeedView{Items: items}
}

func projectRecord(record model.EventRecord, now time.Time) model.FeedItem {
	item := model.FeedItem{Record: record, Badge: BadgeFor(record.Direction)}
	raw := strings.TrimSpace(record.Date + " " + record.Time)

	day, ok := recordDay(record)
	if !ok {
		item.Label = raw
		return item
	}
	y, m, d := now.Date()
	item.Today = day.Year() == y && day.Month() == m && day.Day() == d

	clock, err := time.Parse("15:04:05", strings.TrimSpace(record.Time))
	if err != nil {
		item.Label = raw
		return item
	}
	at := time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), clock.Second(), 0, now.Location())
	if item.Today {
		item.Label = "Today, " + at.Format(timeLabelLayout)
	} else {
		item.Label = at.Format(dateTimeLabelLayout)
	}
	return item
}

// BadgeFor maps a direction to its badge. Unknown values get a fallback
// badge rather than an error.
func BadgeFor(direction model.Direction) model.Badge {
	switch model.Direction(strings.ToUpper(strings.TrimSpace(string(direction)))) {
	case model.DirectionIn:
		return model.Badge{Label: "Clock In", Tone: model.ToneSuccess}
	case model.DirectionOut:
		return model.Badge{Label: "Clock Out", Tone: model.ToneNeutral}
	default:
		return model.Badge{Label: "Unknown", Tone: model.ToneUnknown}
	}
}

// recordDay parses the record's calendar date.
func recordDay(record model.EventRecord) (time.Time, bool) {
	rawDate := strings.TrimSpace(record.Date)
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, rawDate); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

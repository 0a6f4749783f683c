package model

// Direction is the attendance event direction reported by the service.
type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

// EventRecord is one recognition event as returned by /api/logs.
type EventRecord struct {
	Name      string    `json:"name"`
	Date      string    `json:"date"`
	Time      string    `json:"time"`
	Direction Direction `json:"direction"`
}

// BadgeTone selects the visual style of a direction badge.
type BadgeTone string

const (
	ToneSuccess BadgeTone = "success"
	ToneNeutral BadgeTone = "neutral"
	ToneUnknown BadgeTone = "unknown"
)

// Badge is the rendered direction marker of a feed item.
type Badge struct {
	Label string    `json:"label"`
	Tone  BadgeTone `json:"tone"`
}

// FeedItem is one display-ready row of the event feed.
type FeedItem struct {
	Record EventRecord `json:"record"`
	Label  string      `json:"label"`
	Today  bool        `json:"today"`
	Badge  Badge       `json:"badge"`
}

// EventFeedView is the projection of the feed at one render time.
type EventFeedView struct {
	Items []FeedItem `json:"items"`
}

// SummaryRow is one person's line of the daily attendance summary.
type SummaryRow struct {
	Name     string `json:"name"`
	FirstIn  string `json:"first_in"`
	LastOut  string `json:"last_out"`
	Duration string `json:"duration"`
}

// DailySummary is a decoded /api/daily_summary response.
type DailySummary struct {
	Date string       `json:"date"`
	Rows []SummaryRow `json:"rows"`
}

// Package remote talks to the attendance service's JSON API.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/neway-security/clocking-monitor/internal/model"
)

// Client is a thin JSON client for the attendance service.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a client for baseURL. An empty token sends no
// Authorization header.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	baseURL = strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "http://localhost:5000"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		token:   strings.TrimSpace(token),
		http:    &http.Client{Timeout: timeout},
	}
}

// LogQuery selects events from /api/logs.
type LogQuery struct {
	Limit     int
	StartDate string
	EndDate   string
	Name      string
}

func (q LogQuery) values() url.Values {
	v := url.Values{}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.StartDate != "" {
		v.Set("start_date", q.StartDate)
	}
	if q.EndDate != "" {
		v.Set("end_date", q.EndDate)
	}
	if q.Name != "" {
		v.Set("name", q.Name)
	}
	return v
}

type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type statusResponse struct {
	envelope
	Status  *string `json:"status"`
	Network *bool   `json:"network"`
}

// eventRow accepts both the documented lower-case keys and the
// capitalized column names older dashboards emit (Name, Date, Time, Event).
type eventRow struct {
	Name      string `json:"name"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Direction string `json:"direction"`
	Event     string `json:"event"`
}

type logsResponse struct {
	envelope
	Events *[]eventRow `json:"events"`
}

type summaryRow struct {
	Name     string `json:"Name"`
	FirstIn  string `json:"First In"`
	LastOut  string `json:"Last Out"`
	Duration string `json:"Duration"`
}

type summaryResponse struct {
	envelope
	Date    string        `json:"date"`
	Summary *[]summaryRow `json:"summary"`
}

// FetchStatus calls GET /api/status.
func (c *Client) FetchStatus(ctx context.Context) (model.StatusReport, error) {
	var payload statusResponse
	if err := c.getJSON(ctx, "/api/status", nil, &payload); err != nil {
		return model.StatusReport{}, err
	}
	if err := payload.check(); err != nil {
		return model.StatusReport{}, err
	}
	if payload.Status == nil || payload.Network == nil {
		return model.StatusReport{}, fmt.Errorf("%w: status and network are required", ErrMalformed)
	}
	system, ok := model.ParseSystemStatus(strings.ToLower(strings.TrimSpace(*payload.Status)))
	if !ok {
		return model.StatusReport{}, fmt.Errorf("%w: unknown status %q", ErrMalformed, *payload.Status)
	}
	return model.StatusReport{System: system, Network: *payload.Network}, nil
}

// FetchLogs calls GET /api/logs and keeps the service's ordering.
func (c *Client) FetchLogs(ctx context.Context, query LogQuery) ([]model.EventRecord, error) {
	var payload logsResponse
	if err := c.getJSON(ctx, "/api/logs", query.values(), &payload); err != nil {
		return nil, err
	}
	if err := payload.check(); err != nil {
		return nil, err
	}
	if payload.Events == nil {
		return nil, fmt.Errorf("%w: events are required", ErrMalformed)
	}

	rows := *payload.Events
	records := make([]model.EventRecord, 0, len(rows))
	for _, row := range rows {
		direction := strings.TrimSpace(row.Direction)
		if direction == "" {
			direction = strings.TrimSpace(row.Event)
		}
		records = append(records, model.EventRecord{
			Name:      strings.TrimSpace(row.Name),
			Date:      strings.TrimSpace(row.Date),
			Time:      strings.TrimSpace(row.Time),
			Direction: model.Direction(strings.ToUpper(direction)),
		})
	}
	// The service ignores limit and lists the month oldest first, so the
	// most recent rows are the tail.
	if query.Limit > 0 && len(records) > query.Limit {
		records = records[len(records)-query.Limit:]
	}
	return records, nil
}

// FetchDailySummary calls GET /api/daily_summary for date (local day).
func (c *Client) FetchDailySummary(ctx context.Context, date time.Time) (model.DailySummary, error) {
	params := url.Values{}
	if !date.IsZero() {
		params.Set("date", date.Format("2006-01-02"))
	}
	var payload summaryResponse
	if err := c.getJSON(ctx, "/api/daily_summary", params, &payload); err != nil {
		return model.DailySummary{}, err
	}
	if err := payload.check(); err != nil {
		return model.DailySummary{}, err
	}
	if payload.Summary == nil {
		return model.DailySummary{}, fmt.Errorf("%w: summary is required", ErrMalformed)
	}

	out := model.DailySummary{Date: payload.Date, Rows: make([]model.SummaryRow, 0, len(*payload.Summary))}
	for _, row := range *payload.Summary {
		out.Rows = append(out.Rows, model.SummaryRow{
			Name:     row.Name,
			FirstIn:  row.FirstIn,
			LastOut:  row.LastOut,
			Duration: row.Duration,
		})
	}
	return out, nil
}

func (e envelope) check() error {
	if e.Success {
		return nil
	}
	if e.Error != "" {
		return fmt.Errorf("%w: %s", ErrRejected, e.Error)
	}
	return ErrRejected
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	target := c.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return &StatusError{Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrMalformed, path, err)
	}
	return nil
}

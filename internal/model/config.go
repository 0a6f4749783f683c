package model

import (
	"net/url"
	"strings"
)

// ServiceEndpoint locates the remote attendance service and its video feed.
type ServiceEndpoint struct {
	Host      string `json:"host"`
	Token     string `json:"-"`
	StreamURL string `json:"stream_url"`
}

// BaseURL normalizes Host into scheme://host[/path] without a trailing slash.
func (e ServiceEndpoint) BaseURL() string {
	raw := strings.TrimSpace(e.Host)
	if raw == "" {
		return "http://localhost:5000"
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	parsed, err := url.Parse(raw)
	if err != nil || strings.TrimSpace(parsed.Host) == "" {
		host := strings.TrimSpace(e.Host)
		host = strings.TrimPrefix(strings.TrimPrefix(host, "http://"), "https://")
		return "http://" + strings.Trim(host, "/")
	}

	scheme := strings.TrimSpace(parsed.Scheme)
	if scheme == "" {
		scheme = "http"
	}
	path := strings.TrimSuffix(strings.TrimSpace(parsed.Path), "/")
	return scheme + "://" + parsed.Host + path
}

// Stream returns the media source URL, defaulting to the service video feed.
func (e ServiceEndpoint) Stream() string {
	if stream := strings.TrimSpace(e.StreamURL); stream != "" {
		return stream
	}
	return e.BaseURL() + "/video_feed"
}

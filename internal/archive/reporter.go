// Package archive submits recording metadata to the external
// archive-ingestion API. Submissions are best-effort: the caller logs and
// swallows failures rather than surfacing them.
package archive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout bounds an archive submission when the config does not set
// one.
const DefaultTimeout = 30 * time.Second

// Config configures the archive reporter.
type Config struct {
	// URL is the ingestion endpoint the form POST goes to.
	URL string
	// Server identifies this media server in the submission.
	Server     string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Client submits archive metadata as a single form-encoded POST per call.
type Client struct {
	url     string
	server  string
	client  *http.Client
	timeout time.Duration
}

// NewClient validates the config and returns an archive reporter.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("archive URL is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		url:     strings.TrimSpace(cfg.URL),
		server:  strings.TrimSpace(cfg.Server),
		client:  httpClient,
		timeout: timeout,
	}, nil
}

// Report sends the channel id, archive storage location, duration, and the
// ordered thumbnail references to the ingestion endpoint. On success it
// returns the remote acknowledgement body, opaque to callers. Any
// transport or non-2xx outcome is returned as an error for the caller to
// log and swallow.
func (c *Client) Report(ctx context.Context, channelID, location string, durationSeconds float64, thumbnails []string) (string, error) {
	form := url.Values{}
	form.Set("server", c.server)
	form.Set("username", channelID)
	form.Set("location", location)
	form.Set("duration", strconv.FormatFloat(durationSeconds, 'f', -1, 64))
	for _, thumbnail := range thumbnails {
		form.Add("thumbnails", thumbnail)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	return string(data), nil
}

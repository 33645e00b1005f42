package timeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultFetchTimeout = 30 * time.Second

// eventLog mirrors the event sync endpoint's JSON body.
type eventLog struct {
	PresentationLog []SlideEvent `json:"presentationLog"`
}

// Client fetches the presentation event log of a session.
type Client struct {
	HTTP *http.Client
}

// NewClient returns a Client using httpClient, or a client with a default
// timeout when httpClient is nil.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultFetchTimeout}
	}
	return &Client{HTTP: httpClient}
}

// FetchEvents GETs url and decodes its presentation log.
func (c *Client) FetchEvents(ctx context.Context, url string) ([]SlideEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build event log request: %w", err)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch event log: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("fetch event log: unexpected status %d", resp.StatusCode)
	}

	var body eventLog
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode event log: %w", err)
	}
	return body.PresentationLog, nil
}

// Load fetches the event log at url and extracts its timeline.
func (c *Client) Load(ctx context.Context, url, blankSentinel string) (Timeline, error) {
	events, err := c.FetchEvents(ctx, url)
	if err != nil {
		return Timeline{}, err
	}
	return Extract(events, blankSentinel)
}

// Package poll keeps a client's view of one session current by re-reading the
// full snapshot on a fixed interval.
package poll

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"potluck"
)

const (
	headerUserID       = "X-User-ID"
	headerPollInterval = "X-Poll-Interval"
	headerRequestID    = "X-Request-ID"
)

// Snapshot is the result of one fetch. When NotModified is set Session is empty
// and the caller's copy is still current.
type Snapshot struct {
	Session     potluck.Session
	ETag        string
	NotModified bool
	// Interval is the server's polling hint, zero when absent.
	Interval time.Duration
}

type Client struct {
	baseURL    string
	userID     string
	httpClient potluck.HTTPClient
}

// NewClient reads sessions from the API at baseURL on behalf of userID.
func NewClient(baseURL, userID string, httpClient potluck.HTTPClient) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userID:     userID,
		httpClient: httpClient,
	}
}

// Fetch performs a conditional read of the session. A non-empty etag is sent
// as If-None-Match.
func (c *Client) Fetch(ctx context.Context, id, etag string) (Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/potluck/"+url.PathEscape(id), nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(headerRequestID, uuid.NewString())
	if c.userID != "" {
		req.Header.Set(headerUserID, c.userID)
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to fetch session %s: %w", id, err)
	}
	defer resp.Body.Close()

	snap := Snapshot{
		ETag:     resp.Header.Get("ETag"),
		Interval: parseInterval(resp.Header.Get(headerPollInterval)),
	}

	switch resp.StatusCode {
	case http.StatusNotModified:
		snap.NotModified = true
		if snap.ETag == "" {
			snap.ETag = etag
		}
		return snap, nil
	case http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(&snap.Session); err != nil {
			return Snapshot{}, fmt.Errorf("failed to decode session %s: %w", id, err)
		}
		return snap, nil
	default:
		return Snapshot{}, decodeError(resp)
	}
}

// decodeError turns an API error body back into a *potluck.Error.
func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var payload struct {
		Error struct {
			Kind    potluck.Kind `json:"kind"`
			Message string       `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Error.Kind == "" {
		slog.Debug("POLL: Unrecognised error body", "status", resp.StatusCode, "body", string(body))
		return &potluck.Error{Kind: potluck.KindInternal, Message: fmt.Sprintf("unexpected status %s", resp.Status)}
	}
	return &potluck.Error{Kind: payload.Error.Kind, Message: payload.Error.Message}
}

func parseInterval(raw string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

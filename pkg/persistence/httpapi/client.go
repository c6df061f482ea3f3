// Package httpapi provides a persistence store backed by the remote
// study-assistant HTTP API.
//
// The API contract:
//
//	POST /add_lecture  {"text": ..., "title": ..., "subject": ...}
//	GET  /documents[?subject=...] → [{"metadata": {"title": ..., "subject": ...}}, ...]
//
// Subjects are derived client-side from the document listing; the API has no
// dedicated subjects endpoint.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mzajc/lektor/pkg/persistence"
)

const defaultTimeout = 30 * time.Second

// Ensure Client implements the persistence.Store interface.
var _ persistence.Store = (*Client)(nil)

// Client implements persistence.Store against the study-assistant API.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option is a functional option for Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

// New creates a Client for the study-assistant API at baseURL
// (e.g., "http://localhost:8000"). baseURL must be non-empty.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("httpapi: baseURL must not be empty")
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// lectureBody is the JSON payload for POST /add_lecture.
type lectureBody struct {
	Text    string `json:"text"`
	Title   string `json:"title"`
	Subject string `json:"subject"`
}

// Save implements persistence.Store via POST /add_lecture.
func (c *Client) Save(ctx context.Context, lecture persistence.Lecture) error {
	body, err := json.Marshal(lectureBody{
		Text:    lecture.Text,
		Title:   lecture.Title,
		Subject: lecture.Subject,
	})
	if err != nil {
		return fmt.Errorf("httpapi: encode lecture: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/add_lecture", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("httpapi: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("httpapi: save lecture: %w", err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("httpapi: save lecture: unexpected status %s", resp.Status)
	}
	return nil
}

// document mirrors one entry of the GET /documents response. Fields other
// than the metadata we need are ignored.
type document struct {
	Metadata struct {
		Title   string `json:"title"`
		Subject string `json:"subject"`
	} `json:"metadata"`
}

// List implements persistence.Store via GET /documents.
func (c *Client) List(ctx context.Context, subject string) ([]persistence.Info, error) {
	u := c.baseURL + "/documents"
	if subject != "" {
		u += "?subject=" + url.QueryEscape(subject)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("httpapi: build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpapi: list documents: %w", err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("httpapi: list documents: unexpected status %s", resp.Status)
	}

	var docs []document
	if err := json.NewDecoder(resp.Body).Decode(&docs); err != nil {
		return nil, fmt.Errorf("httpapi: decode documents: %w", err)
	}

	infos := make([]persistence.Info, 0, len(docs))
	for _, d := range docs {
		infos = append(infos, persistence.Info{
			Title:   d.Metadata.Title,
			Subject: d.Metadata.Subject,
		})
	}
	return infos, nil
}

// ListSubjects implements persistence.Store by deduplicating the subjects
// of the full document listing, preserving first-seen order.
func (c *Client) ListSubjects(ctx context.Context) ([]string, error) {
	infos, err := c.List(ctx, "")
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(infos))
	var subjects []string
	for _, info := range infos {
		if info.Subject == "" {
			continue
		}
		if _, ok := seen[info.Subject]; ok {
			continue
		}
		seen[info.Subject] = struct{}{}
		subjects = append(subjects, info.Subject)
	}
	return subjects, nil
}

// Ping reports whether the API is reachable. Used by the readiness probe.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/documents", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("httpapi: ping: %w", err)
	}
	drainAndClose(resp.Body)
	if resp.StatusCode >= 500 {
		return fmt.Errorf("httpapi: ping: unexpected status %s", resp.Status)
	}
	return nil
}

// drainAndClose discards any unread body so the connection can be reused.
func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 1<<20))
	_ = body.Close()
}

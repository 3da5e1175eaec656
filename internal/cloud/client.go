// Package cloud is the HTTP client for the inkwell sync service. It speaks
// plain JSON over the /api/v1 record API and reports every failure as one of
// the package's sentinel errors; retry policy belongs to the engine, not here.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/calder/inkwell/internal/model"
)

const (
	// pingTimeout keeps availability probes snappy; a slow health check is
	// treated the same as a down server.
	pingTimeout = 2 * time.Second
	// callTimeout bounds every data operation. There are no client-side
	// retries: a timed-out write becomes a pending record instead.
	callTimeout = 30 * time.Second

	// userHeader carries the account the request operates on.
	userHeader = "X-Inkwell-User"
)

// Client communicates with the inkwell cloud service over HTTP.
type Client struct {
	baseURL    string
	token      string
	userID     string
	httpClient *http.Client
}

// New creates a Client for the given base URL, authenticating with the bearer
// token on behalf of userID.
func New(baseURL, token, userID string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		userID:     userID,
		httpClient: &http.Client{},
	}
}

// Ping returns true if the cloud service responds to GET /api/v1/health
// with 200.
func (c *Client) Ping(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// List returns the raw JSON records of every entity of the given kind. A
// non-empty projectID narrows the listing server-side.
func (c *Client) List(ctx context.Context, kind model.Kind, projectID string) ([]json.RawMessage, error) {
	u := c.collectionURL(kind)
	if projectID != "" {
		u += "?projectId=" + url.QueryEscape(projectID)
	}
	body, err := c.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	var records []json.RawMessage
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("decoding %s list: %w", kind, err)
	}
	return records, nil
}

// ListByParent returns the raw JSON records of a folder's direct children.
func (c *Client) ListByParent(ctx context.Context, kind model.Kind, parentID string) ([]json.RawMessage, error) {
	u := c.collectionURL(kind) + "?parentId=" + url.QueryEscape(parentID)
	body, err := c.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	var records []json.RawMessage
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("decoding %s list: %w", kind, err)
	}
	return records, nil
}

// Get returns the raw JSON record for one entity, or ErrNotFound.
func (c *Client) Get(ctx context.Context, kind model.Kind, id string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, c.recordURL(kind, id), nil)
}

// Create upserts a whole record and returns the cloud's stored form. The
// operation is idempotent on the record id, so replaying a create after a
// timeout cannot produce duplicates.
func (c *Client) Create(ctx context.Context, kind model.Kind, record []byte) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, c.collectionURL(kind), record)
}

// Patch applies a partial-field update and returns the cloud's authoritative
// merged record. Fields absent from the patch keep their cloud values.
func (c *Client) Patch(ctx context.Context, kind model.Kind, id string, patch map[string]any) (json.RawMessage, error) {
	body, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("encoding %s patch: %w", kind, err)
	}
	return c.do(ctx, http.MethodPatch, c.recordURL(kind, id), body)
}

// Delete removes a record. The server cascades ownership deletes (project
// contents, folder subtrees) on its side. Deleting an already-absent record
// succeeds.
func (c *Client) Delete(ctx context.Context, kind model.Kind, id string) error {
	_, err := c.do(ctx, http.MethodDelete, c.recordURL(kind, id), nil)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

func (c *Client) collectionURL(kind model.Kind) string {
	return c.baseURL + "/api/v1/" + string(kind)
}

func (c *Client) recordURL(kind model.Kind, id string) string {
	return c.collectionURL(kind) + "/" + id
}

// do performs one authenticated request and classifies any failure into the
// package's sentinel errors.
func (c *Client) do(ctx context.Context, method, url string, body []byte) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.userID != "" {
		req.Header.Set(userHeader, c.userID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, classifyStatus(resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}

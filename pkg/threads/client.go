package threads

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

	"chatrelay/pkg/models"
)

const maxErrorBody = 1 << 20

// API is the thread-store surface the rest of the service consumes.
// *Client implements it against the external HTTP store.
type API interface {
	List(ctx context.Context, owner string) ([]models.Thread, error)
	Create(ctx context.Context, owner, name string) (*models.Thread, error)
	Messages(ctx context.Context, threadID string) ([]models.Message, error)
	Delete(ctx context.Context, threadID string) error
}

// Client is a bearer-token HTTP client for the external thread store.
// All thread operations are owner-scoped by the store.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// List fetches all threads belonging to owner, in store order.
func (c *Client) List(ctx context.Context, owner string) ([]models.Thread, error) {
	u := c.baseURL + "/threads?owner=" + url.QueryEscape(owner)
	body, err := c.do(ctx, http.MethodGet, u, nil, "threads_list")
	if err != nil {
		return nil, err
	}
	// accept both a bare array and a {"threads": [...]} wrapper
	var wrapped struct {
		Threads []models.Thread `json:"threads"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Threads != nil {
		return wrapped.Threads, nil
	}
	var list []models.Thread
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, &models.MalformedResponseError{Op: "threads_list", Shape: "neither array nor threads object"}
	}
	return list, nil
}

// Create requests a new thread for owner with the given display name and
// returns the created descriptor.
func (c *Client) Create(ctx context.Context, owner, name string) (*models.Thread, error) {
	payload, err := json.Marshal(map[string]string{"name": name, "owner": owner})
	if err != nil {
		return nil, fmt.Errorf("marshal create thread: %w", err)
	}
	body, err := c.do(ctx, http.MethodPost, c.baseURL+"/threads", payload, "thread_create")
	if err != nil {
		return nil, err
	}
	var out struct {
		models.Thread
		ThreadID string `json:"thread_id"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &models.MalformedResponseError{Op: "thread_create", Shape: "undecodable thread"}
	}
	th := out.Thread
	if th.ID == "" {
		th.ID = out.ThreadID
	}
	if th.ID == "" {
		return nil, &models.MalformedResponseError{Op: "thread_create", Shape: "missing thread id"}
	}
	if th.Name == "" {
		th.Name = name
	}
	if th.Owner == "" {
		th.Owner = owner
	}
	if th.CreatedTS == 0 {
		th.CreatedTS = time.Now().UTC().UnixNano()
	}
	if th.UpdatedTS == 0 {
		th.UpdatedTS = th.CreatedTS
	}
	return &th, nil
}

// Messages fetches the full message sequence for a thread, normalized
// into the canonical ordered form.
func (c *Client) Messages(ctx context.Context, threadID string) ([]models.Message, error) {
	u := c.baseURL + "/threads/" + url.PathEscape(threadID) + "/messages"
	body, err := c.do(ctx, http.MethodGet, u, nil, "messages_fetch")
	if err != nil {
		return nil, err
	}
	return NormalizeMessages(body)
}

// Delete removes a thread by id.
func (c *Client) Delete(ctx context.Context, threadID string) error {
	u := c.baseURL + "/threads/" + url.PathEscape(threadID)
	_, err := c.do(ctx, http.MethodDelete, u, nil, "thread_delete")
	return err
}

func (c *Client) do(ctx context.Context, method, u string, payload []byte, op string) ([]byte, error) {
	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", op, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &models.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return nil, &models.TransportError{Op: op, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &models.TransportError{Op: op, Status: resp.StatusCode, Detail: strings.TrimSpace(string(body))}
	}
	return body, nil
}

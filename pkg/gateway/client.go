package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"chatrelay/pkg/logger"
	"chatrelay/pkg/models"
)

// maxErrorBody bounds how much of an upstream error body is read back.
const maxErrorBody = 1 << 20

// Client talks to the inference gateway. Send replies are either a single
// JSON object or a chunked text stream; the client exposes both without
// deciding for the caller.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New returns a gateway client. headerTimeout bounds the wait for response
// headers only; reply streams are never cut off by the client itself, the
// caller's context governs them.
func New(baseURL string, token string, headerTimeout time.Duration) *Client {
	// keep the default transport's proxy, dialer and keep-alive
	// settings, only the header wait changes
	tr, ok := http.DefaultTransport.(*http.Transport)
	if ok {
		tr = tr.Clone()
	} else {
		tr = &http.Transport{}
	}
	if headerTimeout > 0 {
		tr.ResponseHeaderTimeout = headerTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Transport: tr},
	}
}

// SendRequest is the body of POST /chat/send.
type SendRequest struct {
	ThreadID string              `json:"thread_id"`
	Message  string              `json:"message"`
	Features models.FeatureFlags `json:"features"`
}

// SendResult is either a completed single-shot reply (Stream nil) or an
// open stream the caller must drain and close. HasReply is false when a
// JSON response lacked the reply field.
type SendResult struct {
	Reply    string
	HasReply bool
	Stream   *Stream
}

// Send posts a message for a thread. A JSON response is decoded in full;
// any other content type is returned as a live Stream.
func (c *Client) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal send request: %w", err)
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/send", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create send request: %w", err)
	}
	hreq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		hreq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(hreq)
	if err != nil {
		return nil, &models.TransportError{Op: "send", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := readErrorBody(resp.Body)
		resp.Body.Close()
		return nil, &models.TransportError{Op: "send", Status: resp.StatusCode, Detail: detail}
	}

	ct := resp.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/json") {
		defer resp.Body.Close()
		var body struct {
			Reply *string `json:"reply"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, &models.MalformedResponseError{Op: "send", Shape: "undecodable json"}
		}
		if body.Reply == nil {
			logger.Warn("send_reply_missing", "thread", req.ThreadID)
			return &SendResult{}, nil
		}
		return &SendResult{Reply: *body.Reply, HasReply: true}, nil
	}
	return &SendResult{Stream: NewStream(resp.Body)}, nil
}

// File is one document to ingest.
type File struct {
	Name    string
	Content io.Reader
}

// Upload posts documents for a thread to the ingestion endpoint as a
// multipart form with fields "files" and "thread_id". The raw response
// body is returned for pass-through; a non-2xx body is surfaced verbatim
// as the error detail.
func (c *Client) Upload(ctx context.Context, threadID string, files []File) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		part, err := mw.CreateFormFile("files", f.Name)
		if err != nil {
			return nil, fmt.Errorf("create form file: %w", err)
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return nil, fmt.Errorf("copy file %s: %w", f.Name, err)
		}
	}
	if err := mw.WriteField("thread_id", threadID); err != nil {
		return nil, fmt.Errorf("write thread_id field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("finalize multipart body: %w", err)
	}

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/documents/upload", &buf)
	if err != nil {
		return nil, fmt.Errorf("create upload request: %w", err)
	}
	hreq.Header.Set("Content-Type", mw.FormDataContentType())
	if c.token != "" {
		hreq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(hreq)
	if err != nil {
		return nil, &models.TransportError{Op: "upload", Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return nil, &models.TransportError{Op: "upload", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &models.TransportError{Op: "upload", Status: resp.StatusCode, Detail: strings.TrimSpace(string(body))}
	}
	return body, nil
}

func readErrorBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return strings.TrimSpace(string(b))
}

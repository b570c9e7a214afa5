package syncq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPRemote delivers annotations to a remote store over HTTP: POST
// <base>/annotations with a JSON body, expecting {"ref": "..."} back.
// Any transport error or non-2xx status is retryable — the caller leaves
// the record pending.
type HTTPRemote struct {
	baseURL string
	token   string
	client  *http.Client
}

// HTTPOption customises the remote client.
type HTTPOption func(*HTTPRemote)

// WithHTTPClient overrides the default client (15s timeout).
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(r *HTTPRemote) { r.client = c }
}

// NewHTTPRemote creates the client. token may be empty for unauthenticated
// remotes.
func NewHTTPRemote(baseURL, token string, opts ...HTTPOption) *HTTPRemote {
	r := &HTTPRemote{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Deliver implements Remote.
func (r *HTTPRemote) Deliver(ctx context.Context, d Delivery) (string, error) {
	body, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("syncq: encode delivery: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.baseURL+"/annotations", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("syncq: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("syncq: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("syncq: remote returned status %d", resp.StatusCode)
	}

	var out struct {
		Ref string `json:"ref"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("syncq: decode response: %w", err)
	}
	if out.Ref == "" {
		return "", fmt.Errorf("syncq: remote returned empty ref")
	}
	return out.Ref, nil
}

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/schererja/drovah/internal/daemon"
	"github.com/schererja/drovah/internal/webhook"
)

// Client talks to a running drovah server over HTTP
type Client struct {
	baseURL *url.URL
	secret  []byte
	http    *http.Client
}

// StatusError is returned for any non-2xx response
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("server returned %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Body)
}

// NewClient creates a client for the server at address, e.g.
// "127.0.0.1:8000" or "https://ci.example.com". secret signs webhook
// triggers and may be empty.
func NewClient(address string, secret []byte) (*Client, error) {
	if !strings.Contains(address, "://") {
		address = "http://" + address
	}
	u, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("invalid server address %q: %w", address, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid server address %q: missing host", address)
	}
	return &Client{
		baseURL: u,
		secret:  secret,
		http:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Trigger sends a push webhook for project, signed when a secret is set
func (c *Client) Trigger(ctx context.Context, project string) error {
	body, err := webhook.NewPayload(project)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("webhook"), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", "push")
	if len(c.secret) > 0 {
		req.Header.Set("X-Hub-Signature-256", webhook.Sign(c.secret, body))
	}

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Projects fetches every project with its recent builds
func (c *Client) Projects(ctx context.Context) (*daemon.ProjectsResponse, error) {
	var out daemon.ProjectsResponse
	if err := c.getJSON(ctx, c.endpoint("projects"), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Active fetches the builds currently running
func (c *Client) Active(ctx context.Context) (*daemon.ActiveResponse, error) {
	var out daemon.ActiveResponse
	if err := c.getJSON(ctx, c.endpoint("active"), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Download writes an archived file to w. buildNumber 0 fetches the latest
// artifact of the project, ignoring file.
func (c *Client) Download(ctx context.Context, project string, buildNumber int, file string, w io.Writer) error {
	endpoint := c.endpoint(project, "latest")
	if buildNumber > 0 {
		endpoint = c.endpoint(project, strconv.Itoa(buildNumber), file)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("failed to download: %w", err)
	}
	return nil
}

func (c *Client) endpoint(segments ...string) string {
	return c.baseURL.JoinPath(append([]string{"api", "v1"}, segments...)...).String()
}

func (c *Client) getJSON(ctx context.Context, endpoint string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach server at %s: %w", c.baseURL.Host, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return resp, nil
}

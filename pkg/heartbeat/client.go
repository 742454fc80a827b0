package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrEmptyName indicates Send was called without an identifier.
	ErrEmptyName = errors.New("heartbeat name must not be empty")
	// ErrRejected indicates the server answered with a non-200 status.
	ErrRejected = errors.New("heartbeat rejected")
)

// DefaultURL is the base URL of a server listening on DefaultAddr.
const DefaultURL = "http://" + DefaultAddr

// Client sends heartbeats to a heartbeat server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new heartbeat client with sane defaults.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Send announces that name is alive.
func (c *Client) Send(ctx context.Context, name string) error {
	if name == "" {
		return ErrEmptyName
	}

	body := "name=" + EncodeName(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/", strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("create heartbeat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send heartbeat: %w", err)
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %d %s", ErrRejected, resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	return nil
}

// EncodeName percent-encodes name for a heartbeat body. Spaces become %20
// because the server does not treat '+' as a space.
func EncodeName(name string) string {
	return strings.ReplaceAll(url.QueryEscape(name), "+", "%20")
}

package convai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrOriginNotAllowed is returned when the server rejects the caller origin.
var ErrOriginNotAllowed = errors.New("origin not allowed")

// SignedURLResponse is the body of GET /convai/signed-url.
type SignedURLResponse struct {
	OK           bool      `json:"ok"`
	URL          string    `json:"url"`
	SignedURL    string    `json:"signed_url,omitempty"`
	ExpiresAt    time.Time `json:"expiresAt"`
	ChallengeDay *int      `json:"challenge_day"`
	Error        string    `json:"error,omitempty"`
}

// Client fetches signed URLs from a calm server.
type Client struct {
	http   *resty.Client
	userID string
	origin string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithUserID sends userID in the identity header.
func WithUserID(userID string) ClientOption {
	return func(c *Client) { c.userID = userID }
}

// WithOrigin sends origin as the Origin header.
func WithOrigin(origin string) ClientOption {
	return func(c *Client) { c.origin = origin }
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetHeader("Accept", "application/json").
			SetTimeout(10 * time.Second),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchSignedURL asks the server for a signed URL. A nil day is sent as no
// challenge_day parameter. Cancelling ctx aborts the request.
func (c *Client) FetchSignedURL(ctx context.Context, day *int) (SignedURLResponse, error) {
	req := c.http.R().SetContext(ctx)
	if day != nil {
		req.SetQueryParam("challenge_day", strconv.Itoa(*day))
	}
	if c.userID != "" {
		req.SetHeader("X-User-ID", c.userID)
	}
	if c.origin != "" {
		req.SetHeader("Origin", c.origin)
	}

	resp, err := req.Get("/convai/signed-url")
	if err != nil {
		return SignedURLResponse{}, fmt.Errorf("signed url request: %w", err)
	}

	var out SignedURLResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return SignedURLResponse{}, fmt.Errorf("decode signed url response (status %d): %w", resp.StatusCode(), err)
	}

	switch {
	case resp.StatusCode() == http.StatusForbidden:
		return out, ErrOriginNotAllowed
	case resp.StatusCode() != http.StatusOK || !out.OK:
		return out, fmt.Errorf("signed url status %d: %s", resp.StatusCode(), out.Error)
	}
	return out, nil
}

// Package webhook pushes outbound chat messages to the relay service that
// owns the actual chat channel.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/requestline/intake-bot/internal/transport"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ transport.Transport = (*Client)(nil)

// NewClient returns a Transport that POSTs messages to baseURL. The token,
// when set, is attached as a bearer Authorization header on every request.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if token != "" {
		httpClient = &http.Client{
			Transport: &bearerRoundTripper{
				token: token,
				next:  transportOrDefault(httpClient.Transport),
			},
			Timeout: httpClient.Timeout,
		}
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

type outboundMessage struct {
	RecipientID string `json:"recipient_id"`
	Text        string `json:"text"`
}

func (c *Client) Send(ctx context.Context, recipientID, text string) error {
	body, err := json.Marshal(outboundMessage{RecipientID: recipientID, Text: text})
	if err != nil {
		return fmt.Errorf("marshaling outbound message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("message push failed with status: %d", resp.StatusCode)
	}

	return nil
}

type bearerRoundTripper struct {
	token string
	next  http.RoundTripper
}

func (t *bearerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+t.token)

	return t.next.RoundTrip(req)
}

func transportOrDefault(rt http.RoundTripper) http.RoundTripper {
	if rt == nil {
		return http.DefaultTransport
	}

	return rt
}

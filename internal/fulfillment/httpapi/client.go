// Package httpapi implements the fulfillment submission collaborator
// against the downstream request service's HTTP API.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/requestline/intake-bot/internal/fulfillment"
)

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ fulfillment.Submitter = (*Client)(nil)

func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

func (c *Client) Submit(ctx context.Context, req fulfillment.Request) error {
	// Submissions need the catalog's remote identifier to resolve the
	// title downstream. Catching this here turns a guaranteed 4xx into a
	// clear failure message.
	if req.Candidate.RemoteID == "" {
		return errors.New("candidate has no remote identifier for its kind")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/requests", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		var errBody struct {
			Error string `json:"error"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&errBody); decodeErr == nil && errBody.Error != "" {
			return fmt.Errorf("submission rejected: %s", errBody.Error)
		}

		return fmt.Errorf("submission failed with status: %d", resp.StatusCode)
	}

	return nil
}

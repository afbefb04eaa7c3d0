// Package attest is the client for the attestation registry: a service where
// TLS relays publish signed transcripts of responses they fetched from
// external data sources. The engine verifies a transcript's signer and server
// identity instead of trusting the caller who points at it.
package attest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is the REST client for the attestation registry.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new registry client.
//
// baseURL is the API root, e.g. "https://registry.attest.example/v1".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// GetAttestation fetches a published attestation record by id.
func (c *Client) GetAttestation(ctx context.Context, id uint64) (Record, error) {
	url := fmt.Sprintf("%s/attestations/%d", c.baseURL, id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Record{}, fmt.Errorf("attest: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Record{}, fmt.Errorf("attest: get attestation %d: %w", id, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Record{}, fmt.Errorf("attest: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr errorResponse
		_ = json.Unmarshal(body, &apiErr)
		if resp.StatusCode == http.StatusNotFound {
			return Record{}, fmt.Errorf("attest: attestation %d not found: %s", id, apiErr.Message)
		}
		return Record{}, fmt.Errorf("attest: HTTP %d: %s (%s)", resp.StatusCode, apiErr.Message, apiErr.Code)
	}

	var rec Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return Record{}, fmt.Errorf("attest: decode attestation: %w", err)
	}
	return rec, nil
}

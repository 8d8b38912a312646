package responder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zen-systems/finroute/pkg/adapter"
	"github.com/zen-systems/finroute/pkg/answer"
)

// RemoteClient invokes responders that run as separate HTTP services.
// The service accepts POST <endpoint>/invoke with a remoteRequest body.
type RemoteClient struct {
	httpClient *http.Client
}

type remoteRequest struct {
	Query        string `json:"query"`
	Jurisdiction string `json:"jurisdiction,omitempty"`
	Language     string `json:"language"`
	Model        string `json:"model,omitempty"`
}

type remoteResponse struct {
	Answer  string          `json:"answer"`
	Model   string          `json:"model,omitempty"`
	Sources []answer.Source `json:"sources,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// NewRemoteClient creates a client with the given per-request timeout.
func NewRemoteClient(timeout time.Duration) *RemoteClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &RemoteClient{httpClient: &http.Client{Timeout: timeout}}
}

// Invoke sends q to the responder's endpoint.
func (c *RemoteClient) Invoke(ctx context.Context, d Descriptor, q Query) (*answer.Answer, error) {
	if d.Endpoint == "" {
		return nil, fmt.Errorf("responder %s has no endpoint", d.ID)
	}

	jsonBody, err := json.Marshal(remoteRequest{
		Query:        q.Text,
		Jurisdiction: q.Jurisdiction,
		Language:     q.Language,
		Model:        q.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := strings.TrimRight(d.Endpoint, "/") + "/invoke"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("responder %s request failed: %w", d.ID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, adapter.StatusError(d.ID, resp.StatusCode, string(body))
	}

	var remoteResp remoteResponse
	if err := json.Unmarshal(body, &remoteResp); err != nil {
		return nil, fmt.Errorf("failed to parse response from %s: %w", d.ID, err)
	}
	if remoteResp.Error != "" {
		return nil, fmt.Errorf("responder %s error: %s", d.ID, remoteResp.Error)
	}

	a := answer.New(d.ID, remoteResp.Answer, remoteResp.Model, remoteResp.Sources)
	a.Language = q.Language
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

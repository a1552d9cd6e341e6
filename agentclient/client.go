// Package agentclient provides the HTTP client for dispatching task
// envelopes to external agents.
package agentclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/taskfleet/supervisor/domain"
)

// Client is an HTTP client for sending tasks to agents.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a new agent client. Agents may run long tasks, so the
// timeout should be generous.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// NewTaskEnvelope builds an envelope with a fresh message id.
func NewTaskEnvelope(sender, recipient string, task domain.TaskSpec) *domain.TaskEnvelope {
	return &domain.TaskEnvelope{
		MessageID: uuid.NewString(),
		Sender:    sender,
		Recipient: recipient,
		Task:      task,
	}
}

// Process sends a task envelope to an agent's /process endpoint and returns
// its completion report.
func (c *Client) Process(ctx context.Context, endpoint string, env *domain.TaskEnvelope) (*domain.CompletionReport, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}

	url := strings.TrimSuffix(endpoint, "/") + "/process"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to reach agent: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("agent returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var report domain.CompletionReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("failed to parse completion report: %w", err)
	}
	return &report, nil
}

package registry

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/taskfleet/supervisor/domain"
)

// maxHealthBody bounds how much of a health response is read.
const maxHealthBody = 1 << 20

// Prober performs single liveness probes against agent health endpoints.
//
// An agent counts as healthy only when it answers 2xx with a JSON body whose
// status field is the literal "healthy". A bare 2xx is not evidence of
// health: an agent that cannot self-report a well-formed health payload is
// classified offline. Probe outcomes are ordinary data, never errors, and a
// single probe never retries.
type Prober struct {
	httpClient *http.Client
}

// NewProber creates a prober whose probes time out after the given duration.
func NewProber(timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Prober{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Probe checks the agent at baseURL once and classifies the outcome.
func (p *Prober) Probe(ctx context.Context, baseURL string) domain.AgentStatus {
	url := strings.TrimSuffix(baseURL, "/") + "/health"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.StatusOffline
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return domain.StatusOffline
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.StatusOffline
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxHealthBody))
	if err != nil {
		return domain.StatusOffline
	}
	if !gjson.ValidBytes(body) {
		return domain.StatusOffline
	}
	if gjson.GetBytes(body, "status").Str == "healthy" {
		return domain.StatusHealthy
	}
	return domain.StatusOffline
}

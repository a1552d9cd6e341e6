// Package domain defines the core domain models for the supervisor.
package domain

import (
	"encoding/json"
	"time"
)

// AgentStatus is the last-observed liveness of a registered agent.
type AgentStatus string

const (
	StatusHealthy AgentStatus = "healthy"
	StatusOffline AgentStatus = "offline"
	StatusUnknown AgentStatus = "unknown"

	// StatusNotFound is returned by live queries for ids that are not in the
	// registry. It is never stored on a record.
	StatusNotFound AgentStatus = "not_found"
)

// StatusChange is one observed transition of an agent's liveness.
type StatusChange struct {
	ID         string      `json:"id"`
	AgentID    string      `json:"agent_id"`
	From       AgentStatus `json:"from"`
	To         AgentStatus `json:"to"`
	ObservedAt time.Time   `json:"observed_at"`
}

// Dispatch is the record of one task envelope sent to an agent.
type Dispatch struct {
	MessageID string          `json:"message_id"`
	AgentID   string          `json:"agent_id"`
	Task      json.RawMessage `json:"task,omitempty"`
	Status    DispatchStatus  `json:"status"`
	Results   json.RawMessage `json:"results,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

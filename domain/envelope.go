package domain

import "encoding/json"

// DispatchStatus is the outcome reported by an agent for one task.
type DispatchStatus string

const (
	DispatchSuccess DispatchStatus = "SUCCESS"
	DispatchFailure DispatchStatus = "FAILURE"
)

// TaskSpec describes the work a task envelope asks an agent to perform.
// Parameters are opaque to the supervisor; each agent defines its own shape.
type TaskSpec struct {
	Name       string          `json:"name,omitempty"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
}

// TaskEnvelope is the message sent to an agent's /process endpoint.
type TaskEnvelope struct {
	MessageID string   `json:"message_id"`
	Sender    string   `json:"sender"`
	Recipient string   `json:"recipient"`
	Task      TaskSpec `json:"task"`
}

// CompletionReport is the reply an agent returns for a task envelope.
// RelatedMessageID references the envelope's MessageID.
type CompletionReport struct {
	MessageID        string          `json:"message_id"`
	Sender           string          `json:"sender"`
	Recipient        string          `json:"recipient"`
	RelatedMessageID string          `json:"related_message_id"`
	Status           DispatchStatus  `json:"status"`
	Results          json.RawMessage `json:"results,omitempty"`
}

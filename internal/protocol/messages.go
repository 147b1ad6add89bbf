// Package protocol defines the message types for the realtime channel
// between the server and dashboard clients. Messages flow over WebSocket
// connections wrapped in a type-discriminated envelope.
package protocol

import (
	"encoding/json"

	"github.com/verigrid/questad/internal/domain"
)

// Envelope wraps all messages with a type discriminator.
// When marshaling, Payload can be any message struct.
// When unmarshaling, use EnvelopeRaw for type-based dispatch.
type Envelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// EnvelopeRaw is used for receiving messages where the payload
// needs to be unmarshaled based on the message type.
type EnvelopeRaw struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MarshalEnvelope creates an envelope with the given type and payload
func MarshalEnvelope(msgType string, payload interface{}) ([]byte, error) {
	return json.Marshal(Envelope{Type: msgType, Payload: payload})
}

// Client -> server messages

const (
	TypeSubscribeJob   = "subscribe-job"
	TypeUnsubscribeJob = "unsubscribe-job"
)

// SubscribeMessage opts a client in or out of one job's event stream.
type SubscribeMessage struct {
	JobID string `json:"jobId"`
}

// Server -> client messages

const (
	TypeJobProgress   = "job-progress"
	TypeJobStatus     = "job-status"
	TypeJobLogs       = "job-logs"
	TypeLicenseStatus = "license-status-changed"
	TypeSystemStatus  = "system-status-changed"
)

// JobProgressMessage reports the overall percentage and current pipeline
// step for a running job.
type JobProgressMessage struct {
	JobID       string `json:"jobId"`
	Progress    int    `json:"progress"`
	Status      string `json:"status"`
	CurrentStep string `json:"currentStep,omitempty"`
}

// JobStatusMessage reports a lifecycle transition.
type JobStatusMessage struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

// JobLogsMessage carries one captured output line or a log-metadata
// refresh for files the tools write directly.
type JobLogsMessage struct {
	JobID  string   `json:"jobId"`
	Stage  string   `json:"stage,omitempty"`
	Line   string   `json:"line,omitempty"`
	Stderr bool     `json:"stderr,omitempty"`
	Files  []string `json:"files,omitempty"`
}

// LicenseStatusMessage broadcasts the refreshed license snapshot.
type LicenseStatusMessage struct {
	License domain.LicenseStatus `json:"license"`
}

// SystemStatusMessage broadcasts the process-wide status snapshot.
type SystemStatusMessage struct {
	System domain.SystemStatus `json:"system"`
}

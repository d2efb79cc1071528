package amqp

import (
	"encoding/json"
	"time"

	"fintrack/internal/core"
)

// Message operations, mirroring the durable queue.
const (
	OperationSync   = "sync"
	OperationDelete = "delete"
)

// RecordMessage tells the worker that a record needs remote submission.
// Sync messages carry only the identifiers; the worker reads the full
// record from local storage. Delete messages carry the record snapshot
// in Payload because the record is already gone locally.
type RecordMessage struct {
	TraceID   string          `json:"trace_id"`
	Kind      core.Kind       `json:"kind"`
	LocalID   string          `json:"local_id"`
	Operation string          `json:"operation"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewRecordSyncMessage creates a sync message for a locally saved record.
func NewRecordSyncMessage(traceID string, kind core.Kind, localID string) *RecordMessage {
	return &RecordMessage{
		TraceID:   traceID,
		Kind:      kind,
		LocalID:   localID,
		Operation: OperationSync,
		Timestamp: time.Now(),
	}
}

// NewRecordDeleteMessage creates a delete message carrying the record
// snapshot taken before local deletion.
func NewRecordDeleteMessage(traceID string, kind core.Kind, localID string, payload json.RawMessage) *RecordMessage {
	return &RecordMessage{
		TraceID:   traceID,
		Kind:      kind,
		LocalID:   localID,
		Operation: OperationDelete,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes.
func (m *RecordMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RecordMessageFromJSON creates a message from JSON bytes.
func RecordMessageFromJSON(data []byte) (*RecordMessage, error) {
	var msg RecordMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

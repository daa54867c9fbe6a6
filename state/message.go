package state

import (
	"encoding/json"

	"github.com/jilio/statemap"
)

// Operation represents the type of change operation.
type Operation string

const (
	// OperationInsert indicates a new entry is being created.
	OperationInsert Operation = "insert"
	// OperationUpdate indicates an existing entry is being replaced.
	OperationUpdate Operation = "update"
	// OperationDelete indicates an entry is being removed.
	OperationDelete Operation = "delete"
)

// Control represents the type of control message.
type Control string

const (
	// ControlSnapshotStart marks the beginning of a snapshot.
	ControlSnapshotStart Control = "snapshot-start"
	// ControlSnapshotEnd marks the end of a snapshot.
	ControlSnapshotEnd Control = "snapshot-end"
	// ControlReset signals that all state should be cleared.
	ControlReset Control = "reset"
)

// Headers contains metadata for change messages.
type Headers struct {
	Operation Operation `json:"operation"`
	// TxID is an optional transaction identifier for grouping related changes.
	TxID string `json:"txid,omitempty"`
	// Timestamp is an optional RFC 3339 formatted timestamp.
	Timestamp string `json:"timestamp,omitempty"`
}

// ControlHeaders contains metadata for control messages.
type ControlHeaders struct {
	Control Control `json:"control"`
	// Offset is an optional reference to a stream position.
	Offset string `json:"offset,omitempty"`
}

// ChangeMessage is a mutation of a single room state entry.
type ChangeMessage struct {
	// Type is the event type, e.g. "m.room.member".
	Type string `json:"type"`
	// StateKey may be empty.
	StateKey string `json:"key"`
	// Value contains the entry data (required for insert/update).
	Value json.RawMessage `json:"value,omitempty"`
	// OldValue is the value the sender expects to replace.
	OldValue json.RawMessage `json:"old_value,omitempty"`
	Headers  Headers         `json:"headers"`
}

// Key returns the state map key the message applies to.
func (m *ChangeMessage) Key() statemap.Key {
	return statemap.Key{Type: m.Type, StateKey: m.StateKey}
}

// ControlMessage manages stream lifecycle (snapshots, resets).
type ControlMessage struct {
	Headers ControlHeaders `json:"headers"`
}

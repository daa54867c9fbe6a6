package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var errEmptyType = errors.New("state: type cannot be empty")

// Insert creates an insert change message.
//
// Example:
//
//	msg, err := state.Insert(statemap.TypeCreate, "", "$create")
func Insert[T any](eventType, stateKey string, value T, opts ...ChangeOption) (*ChangeMessage, error) {
	return newChangeMessage(OperationInsert, eventType, stateKey, &value, nil, opts...)
}

// Update creates an update change message.
func Update[T any](eventType, stateKey string, value T, opts ...ChangeOption) (*ChangeMessage, error) {
	return newChangeMessage(OperationUpdate, eventType, stateKey, &value, nil, opts...)
}

// UpdateWithOldValue creates an update change message carrying the value it
// expects to replace, for conflict detection.
func UpdateWithOldValue[T any](eventType, stateKey string, value, oldValue T, opts ...ChangeOption) (*ChangeMessage, error) {
	return newChangeMessage(OperationUpdate, eventType, stateKey, &value, &oldValue, opts...)
}

// Delete creates a delete change message.
func Delete(eventType, stateKey string, opts ...ChangeOption) (*ChangeMessage, error) {
	return newChangeMessage[any](OperationDelete, eventType, stateKey, nil, nil, opts...)
}

// DeleteWithOldValue creates a delete change message carrying the value it
// expects to remove.
func DeleteWithOldValue[T any](eventType, stateKey string, oldValue T, opts ...ChangeOption) (*ChangeMessage, error) {
	return newChangeMessage(OperationDelete, eventType, stateKey, nil, &oldValue, opts...)
}

func newChangeMessage[T any](op Operation, eventType, stateKey string, value, oldValue *T, opts ...ChangeOption) (*ChangeMessage, error) {
	if eventType == "" {
		return nil, errEmptyType
	}

	cfg := &changeConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	msg := &ChangeMessage{
		Type:     eventType,
		StateKey: stateKey,
		Headers: Headers{
			Operation: op,
			TxID:      cfg.txID,
		},
	}

	if cfg.timestamp != nil {
		msg.Headers.Timestamp = cfg.timestamp.Format(time.RFC3339Nano)
	} else if cfg.autoTimestamp {
		msg.Headers.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}

	if value != nil {
		data, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("state: marshal value: %w", err)
		}
		msg.Value = data
	}

	if oldValue != nil {
		data, err := json.Marshal(oldValue)
		if err != nil {
			return nil, fmt.Errorf("state: marshal old_value: %w", err)
		}
		msg.OldValue = data
	}

	return msg, nil
}

// SnapshotStart creates a snapshot-start control message.
func SnapshotStart(offset string) *ControlMessage {
	return &ControlMessage{
		Headers: ControlHeaders{
			Control: ControlSnapshotStart,
			Offset:  offset,
		},
	}
}

// SnapshotEnd creates a snapshot-end control message.
func SnapshotEnd(offset string) *ControlMessage {
	return &ControlMessage{
		Headers: ControlHeaders{
			Control: ControlSnapshotEnd,
			Offset:  offset,
		},
	}
}

// Reset creates a reset control message.
// This signals that all state should be cleared and rebuilt from subsequent messages.
func Reset(offset string) *ControlMessage {
	return &ControlMessage{
		Headers: ControlHeaders{
			Control: ControlReset,
			Offset:  offset,
		},
	}
}

package state

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/jilio/statemap"
)

var (
	// ErrConflict is returned when an old_value does not match the stored value.
	ErrConflict = errors.New("state: conflicting old_value")
	// ErrUnknownType is returned for types rejected by WithAllowedTypes.
	ErrUnknownType = errors.New("state: unknown event type")
	// ErrUnknownOperation is returned for change messages with an unsupported operation.
	ErrUnknownOperation = errors.New("state: unknown operation")
)

const maxLineSize = 1 << 20

// Materializer applies change and control messages to a StateMap.
// It is safe for concurrent use.
type Materializer[E comparable] struct {
	state      *statemap.StateMap[E]
	cfg        *materializerConfig
	mu         sync.RWMutex
	applied    int
	changed    bool
	lastOffset string
}

// NewMaterializer creates a Materializer with an empty state.
func NewMaterializer[E comparable](opts ...MaterializerOption) *Materializer[E] {
	cfg := &materializerConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	return &Materializer[E]{
		state: statemap.New[E](),
		cfg:   cfg,
	}
}

// NewMaterializerFrom creates a Materializer whose state starts as a copy of
// initial. A reset message still clears it completely unless WithKeepInitial
// is given.
func NewMaterializerFrom[E comparable](initial *statemap.StateMap[E], opts ...MaterializerOption) *Materializer[E] {
	m := NewMaterializer[E](opts...)
	if initial != nil {
		m.state = initial.Clone()
	}
	return m
}

// Apply processes a JSON encoded change or control message.
func (m *Materializer[E]) Apply(data []byte) error {
	var raw struct {
		Headers json.RawMessage `json:"headers"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("state: unmarshal message: %w", err)
	}

	var ctrlHeaders ControlHeaders
	if json.Unmarshal(raw.Headers, &ctrlHeaders) == nil && ctrlHeaders.Control != "" {
		m.ApplyControlMessage(&ControlMessage{Headers: ctrlHeaders})
		return nil
	}

	var changeMsg ChangeMessage
	if err := json.Unmarshal(data, &changeMsg); err != nil {
		return fmt.Errorf("state: unmarshal change message: %w", err)
	}
	return m.ApplyChangeMessage(&changeMsg)
}

// ApplyAll reads newline delimited JSON messages from r and applies them in
// order. Blank lines are skipped. It stops at the first error and returns the
// number of messages applied.
func (m *Materializer[E]) ApplyAll(ctx context.Context, r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	n, line := 0, 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return n, err
		}
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		if err := m.Apply(data); err != nil {
			return n, fmt.Errorf("line %d: %w", line, err)
		}
		n++
	}
	if err := scanner.Err(); err != nil {
		return n, fmt.Errorf("state: read messages: %w", err)
	}
	return n, nil
}

// ApplyChangeMessage applies a single change message.
func (m *Materializer[E]) ApplyChangeMessage(msg *ChangeMessage) error {
	m.mu.Lock()
	err := m.applyChange(msg)
	if err == nil {
		m.applied++
		m.changed = true
	}
	m.mu.Unlock()

	if err != nil && m.cfg.onError != nil {
		m.cfg.onError(err)
	}
	return err
}

// ApplyControlMessage applies a single control message.
func (m *Materializer[E]) ApplyControlMessage(msg *ControlMessage) {
	m.mu.Lock()
	reset := msg.Headers.Control == ControlReset && (m.changed || !m.cfg.keepInitial)
	if reset {
		m.state = statemap.New[E]()
	}
	if msg.Headers.Offset != "" {
		m.lastOffset = msg.Headers.Offset
	}
	m.applied++
	m.mu.Unlock()

	switch msg.Headers.Control {
	case ControlReset:
		if reset && m.cfg.onReset != nil {
			m.cfg.onReset()
		}
	case ControlSnapshotStart:
		if m.cfg.onSnapshot != nil {
			m.cfg.onSnapshot(true)
		}
	case ControlSnapshotEnd:
		if m.cfg.onSnapshot != nil {
			m.cfg.onSnapshot(false)
		}
	}
}

// applyChange must be called with m.mu held.
func (m *Materializer[E]) applyChange(msg *ChangeMessage) error {
	if msg.Type == "" {
		return errEmptyType
	}
	if m.cfg.allowedTypes != nil {
		if _, ok := m.cfg.allowedTypes[msg.Type]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownType, msg.Type)
		}
	}

	switch msg.Headers.Operation {
	case OperationInsert, OperationUpdate:
		var value E
		if err := json.Unmarshal(msg.Value, &value); err != nil {
			return fmt.Errorf("state: unmarshal value for %s: %w", msg.Key(), err)
		}
		if err := m.checkOldValue(msg); err != nil {
			return err
		}
		m.state.Insert(msg.Type, msg.StateKey, value)

	case OperationDelete:
		if err := m.checkOldValue(msg); err != nil {
			return err
		}
		if m.state.ContainsKey(msg.Type, msg.StateKey) {
			m.state = without(m.state, msg.Key())
		}

	default:
		return fmt.Errorf("%w: %q", ErrUnknownOperation, msg.Headers.Operation)
	}

	return nil
}

// checkOldValue clears the entry and returns ErrConflict when the message
// asserts an old value that differs from the stored one.
func (m *Materializer[E]) checkOldValue(msg *ChangeMessage) error {
	if !m.cfg.conflictCheck || len(msg.OldValue) == 0 {
		return nil
	}
	if _, ok := m.state.Get(msg.Type, msg.StateKey); !ok {
		return nil
	}

	var old E
	if err := json.Unmarshal(msg.OldValue, &old); err != nil {
		return fmt.Errorf("state: unmarshal old_value for %s: %w", msg.Key(), err)
	}
	if _, conflict := statemap.AddOrRemove(m.state, msg.Type, msg.StateKey, old); conflict {
		return fmt.Errorf("%w: %s", ErrConflict, msg.Key())
	}
	return nil
}

// without rebuilds s omitting key; StateMap has no single-entry removal.
func without[E any](s *statemap.StateMap[E], key statemap.Key) *statemap.StateMap[E] {
	return statemap.FromSeq[E](func(yield func(statemap.Key, E) bool) {
		for k, v := range s.All() {
			if k == key {
				continue
			}
			if !yield(k, v) {
				return
			}
		}
	})
}

// State returns a copy of the current state.
func (m *Materializer[E]) State() *statemap.StateMap[E] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Clone()
}

// View calls fn with the current state while holding a read lock. fn must not
// retain or modify the map.
func (m *Materializer[E]) View(fn func(s *statemap.StateMap[E])) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fn(m.state)
}

// Applied returns the number of messages applied successfully.
func (m *Materializer[E]) Applied() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.applied
}

// LastOffset returns the offset of the last control message that carried one.
func (m *Materializer[E]) LastOffset() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastOffset
}

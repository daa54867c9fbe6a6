package state

import "time"

// ChangeOption configures a change message.
type ChangeOption func(*changeConfig)

type changeConfig struct {
	txID          string
	timestamp     *time.Time
	autoTimestamp bool
}

// WithTxID sets the transaction ID for grouping related changes.
func WithTxID(txID string) ChangeOption {
	return func(c *changeConfig) {
		c.txID = txID
	}
}

// WithTimestamp sets an explicit timestamp for the change message.
// The timestamp will be formatted as RFC 3339.
func WithTimestamp(t time.Time) ChangeOption {
	return func(c *changeConfig) {
		c.timestamp = &t
	}
}

// WithAutoTimestamp automatically sets the timestamp to the current time.
func WithAutoTimestamp() ChangeOption {
	return func(c *changeConfig) {
		c.autoTimestamp = true
	}
}

// MaterializerOption configures a Materializer.
type MaterializerOption func(*materializerConfig)

type materializerConfig struct {
	onReset       func()
	onSnapshot    func(start bool)
	onError       func(error)
	allowedTypes  map[string]struct{}
	conflictCheck bool
	keepInitial   bool
}

// WithOnReset sets a callback invoked after a reset control message has
// cleared the state.
func WithOnReset(fn func()) MaterializerOption {
	return func(c *materializerConfig) {
		c.onReset = fn
	}
}

// WithOnSnapshot sets a callback invoked on snapshot-start/end messages.
// The boolean parameter is true for snapshot-start, false for snapshot-end.
func WithOnSnapshot(fn func(start bool)) MaterializerOption {
	return func(c *materializerConfig) {
		c.onSnapshot = fn
	}
}

// WithOnError sets a handler called when applying a change message fails.
func WithOnError(fn func(error)) MaterializerOption {
	return func(c *materializerConfig) {
		c.onError = fn
	}
}

// WithAllowedTypes restricts the event types the materializer accepts.
// Change messages for other types fail with ErrUnknownType. By default every
// type is accepted.
func WithAllowedTypes(types ...string) MaterializerOption {
	return func(c *materializerConfig) {
		if c.allowedTypes == nil {
			c.allowedTypes = make(map[string]struct{}, len(types))
		}
		for _, t := range types {
			c.allowedTypes[t] = struct{}{}
		}
	}
}

// WithConflictCheck makes updates and deletes that carry an old_value fail
// with ErrConflict when the stored value differs from it.
func WithConflictCheck() MaterializerOption {
	return func(c *materializerConfig) {
		c.conflictCheck = true
	}
}

// WithKeepInitial ignores reset messages that arrive before the first change
// message, so a replayed snapshot lands on top of the initial state given to
// NewMaterializerFrom. Later resets still clear the state.
func WithKeepInitial() MaterializerOption {
	return func(c *materializerConfig) {
		c.keepInitial = true
	}
}

// Package durablestream carries room state change messages over
// durable-streams servers (https://github.com/durable-streams/durable-streams).
//
// Durable-streams is an HTTP protocol for append-only streams with opaque
// string offsets. A Stream publishes change and control messages from the
// state package as JSON and replays them into a materializer, so a room's
// state can be rebuilt from any offset.
package durablestream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/jilio/statemap/state"
)

// OffsetOldest is the sentinel offset for the start of a stream.
const OffsetOldest = "-1"

// Applier consumes encoded messages. *state.Materializer satisfies it.
type Applier interface {
	Apply(data []byte) error
}

// Stream publishes and replays the state messages of one durable stream.
type Stream struct {
	client *client
	cfg    *config
}

// New connects to the stream at streamURL, creating it if needed, e.g.
// "https://server.example.com/v1/stream/rooms/!abc:example.org".
func New(streamURL string, opts ...Option) (*Stream, error) {
	return NewWithContext(context.Background(), streamURL, opts...)
}

// NewWithContext is New with a context for the create request.
func NewWithContext(ctx context.Context, streamURL string, opts ...Option) (*Stream, error) {
	if streamURL == "" {
		return nil, fmt.Errorf("durablestream: stream URL is required")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	c := newClient(streamURL, cfg)
	if err := c.create(ctx); err != nil {
		return nil, fmt.Errorf("durablestream: %w", err)
	}
	return &Stream{client: c, cfg: cfg}, nil
}

// URL returns the stream URL.
func (s *Stream) URL() string {
	return s.client.streamURL
}

// Publish appends change messages in batches and returns the offset after
// the last batch.
func (s *Stream) Publish(ctx context.Context, msgs ...*state.ChangeMessage) (string, error) {
	var next string
	for start := 0; start < len(msgs); start += s.cfg.batchSize {
		end := min(start+s.cfg.batchSize, len(msgs))
		data, err := json.Marshal(msgs[start:end])
		if err != nil {
			return next, fmt.Errorf("durablestream: marshal changes: %w", err)
		}
		if next, err = s.client.append(ctx, data); err != nil {
			return next, fmt.Errorf("durablestream: append: %w", err)
		}
		if s.cfg.logger != nil {
			s.cfg.logger.Debug("published changes", "stream", s.URL(), "count", end-start, "offset", next)
		}
	}
	return next, nil
}

// PublishControl appends a control message such as state.Reset().
func (s *Stream) PublishControl(ctx context.Context, msg *state.ControlMessage) (string, error) {
	data, err := json.Marshal([]*state.ControlMessage{msg})
	if err != nil {
		return "", fmt.Errorf("durablestream: marshal control: %w", err)
	}
	next, err := s.client.append(ctx, data)
	if err != nil {
		return "", fmt.Errorf("durablestream: append: %w", err)
	}
	return next, nil
}

// Read returns the messages available from offset and the offset to resume
// from. Elements that are not JSON objects are skipped.
func (s *Stream) Read(ctx context.Context, from string) (msgs []json.RawMessage, next string, upToDate bool, err error) {
	if from == "" {
		from = OffsetOldest
	}

	c, err := s.client.read(ctx, from)
	if err != nil {
		return nil, from, false, fmt.Errorf("durablestream: read: %w", err)
	}
	next = c.nextOffset
	if next == "" {
		next = from
	}

	body := bytes.TrimSpace(c.body)
	if len(body) == 0 {
		return nil, next, c.upToDate, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, from, false, fmt.Errorf("durablestream: unmarshal response: %w", err)
	}

	msgs = raw[:0]
	for i, m := range raw {
		if t := bytes.TrimSpace(m); len(t) == 0 || t[0] != '{' {
			if s.cfg.logger != nil {
				s.cfg.logger.Error("skipping malformed message", "stream", s.URL(), "offset", from, "index", i)
			}
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, next, c.upToDate, nil
}

// Sync applies every message from offset until the stream is caught up. It
// returns the offset to resume from and the number of messages applied. On
// an apply error the returned offset is the start of the failing read.
func (s *Stream) Sync(ctx context.Context, a Applier, from string) (string, int, error) {
	if from == "" {
		from = OffsetOldest
	}

	offset, n := from, 0
	for {
		if err := ctx.Err(); err != nil {
			return offset, n, err
		}

		msgs, next, upToDate, err := s.Read(ctx, offset)
		if err != nil {
			return offset, n, err
		}
		for i, m := range msgs {
			if err := a.Apply(m); err != nil {
				return offset, n, fmt.Errorf("durablestream: apply message %d at offset %s: %w", i, offset, err)
			}
			n++
		}

		done := upToDate || len(msgs) == 0 || next == offset
		offset = next
		if done {
			if s.cfg.logger != nil {
				s.cfg.logger.Debug("stream synced", "stream", s.URL(), "applied", n, "offset", offset)
			}
			return offset, n, nil
		}
	}
}

// Close is a no-op; the stream holds no connections of its own.
func (s *Stream) Close() error {
	return nil
}

package durablestream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Protocol headers.
const (
	headerNextOffset = "Stream-Next-Offset"
	headerUpToDate   = "Stream-Up-To-Date"
	contentTypeJSON  = "application/json"
)

// ErrStreamNotFound is returned when reading a stream that does not exist.
var ErrStreamNotFound = errors.New("durablestream: stream not found")

// client speaks the durable-streams HTTP protocol for a single stream URL.
type client struct {
	streamURL  string
	httpClient *http.Client
	cfg        *config
}

func newClient(streamURL string, cfg *config) *client {
	return &client{
		streamURL:  streamURL,
		httpClient: cfg.httpClient,
		cfg:        cfg,
	}
}

// chunk is one read from the stream.
type chunk struct {
	nextOffset string
	body       []byte
	upToDate   bool
}

// create creates the stream in JSON mode. Creating an existing stream is not
// an error.
func (c *client) create(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.streamURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentTypeJSON)

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusOK, http.StatusNoContent:
		return nil
	default:
		return statusError("create stream", resp)
	}
}

// append posts a JSON array and returns the stream's next offset.
func (c *client) append(ctx context.Context, data []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.streamURL, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentTypeJSON)

	resp, err := c.do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return "", statusError("append", resp)
	}
	return resp.Header.Get(headerNextOffset), nil
}

// read fetches the stream from offset.
func (c *client) read(ctx context.Context, offset string) (*chunk, error) {
	u, err := url.Parse(c.streamURL)
	if err != nil {
		return nil, fmt.Errorf("parse URL: %w", err)
	}
	return c.readURL(ctx, u, offset)
}

func (c *client) readURL(ctx context.Context, u *url.URL, offset string) (*chunk, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.timeout)
	defer cancel()

	q := u.Query()
	q.Set("offset", offset)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
	case http.StatusNotFound:
		return nil, ErrStreamNotFound
	default:
		return nil, statusError("read", resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	upToDate, _ := strconv.ParseBool(resp.Header.Get(headerUpToDate))
	return &chunk{
		nextOffset: resp.Header.Get(headerNextOffset),
		body:       body,
		upToDate:   upToDate,
	}, nil
}

// do executes req, retrying transport errors and 5xx responses with a linear
// backoff.
func (c *client) do(req *http.Request) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.cfg.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(c.cfg.retryBackoff * time.Duration(attempt)):
			}
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("rewind body: %w", err)
				}
				req.Body = body
			}
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= 500 && attempt < c.cfg.retryAttempts {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			continue
		}
		return resp, nil
	}

	return nil, fmt.Errorf("after %d retries: %w", c.cfg.retryAttempts, lastErr)
}

func statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
	return fmt.Errorf("%s: status %d: %s", op, resp.StatusCode, bytes.TrimSpace(body))
}

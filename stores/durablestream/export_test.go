package durablestream

import (
	"context"
	"net/url"
)

// ReadURL exposes readURL for error paths unreachable through a valid
// stream URL.
func (s *Stream) ReadURL(ctx context.Context, u *url.URL, offset string) error {
	_, err := s.client.readURL(ctx, u, offset)
	return err
}

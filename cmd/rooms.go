package cmd

import (
	"context"
	"log/slog"

	"github.com/jilio/statemap/stores"
)

// RoomsCmd lists every stored room.
type RoomsCmd struct{}

func (c *RoomsCmd) Execute(_ []string) error {
	return withStore(func(ctx context.Context, s *session, store stores.RoomStore, _ *slog.Logger) error {
		rooms, err := store.Rooms(ctx)
		if err != nil {
			return err
		}
		if rooms == nil {
			rooms = []string{}
		}
		return s.printYAML(rooms)
	})
}

// DeleteCmd removes a room's stored state.
type DeleteCmd struct {
	Room string `short:"r" long:"room" required:"true" description:"Room ID"`
}

func (c *DeleteCmd) Execute(_ []string) error {
	return withStore(func(ctx context.Context, _ *session, store stores.RoomStore, _ *slog.Logger) error {
		return store.Delete(ctx, c.Room)
	})
}

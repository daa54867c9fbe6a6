package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/viant/afs"

	"github.com/jilio/statemap"
	"github.com/jilio/statemap/state"
	"github.com/jilio/statemap/stores"
)

// LoadCmd materializes change messages into a room's stored state.
type LoadCmd struct {
	Room          string `short:"r" long:"room" required:"true" description:"Room ID"`
	Merge         bool   `short:"m" long:"merge" description:"Apply on top of the stored state instead of starting empty"`
	ConflictCheck bool   `long:"conflict-check" description:"Fail when an old_value does not match the stored value"`

	Args struct {
		File string `positional-arg-name:"FILE" description:"Newline delimited JSON messages as a path or URL, '-' for stdin"`
	} `positional-args:"yes" required:"yes"`
}

type loadResult struct {
	Room     string         `yaml:"room"`
	Messages int            `yaml:"messages"`
	Entries  int            `yaml:"entries"`
	Buckets  statemap.Stats `yaml:"buckets"`
}

func (c *LoadCmd) Execute(_ []string) error {
	return withStore(func(ctx context.Context, s *session, store stores.RoomStore, logger *slog.Logger) error {
		var initial *statemap.StateMap[string]
		if c.Merge {
			stored, err := store.Load(ctx, c.Room)
			switch {
			case errors.Is(err, stores.ErrRoomNotFound):
				logger.Debug("no stored state to merge with", "room", c.Room)
			case err != nil:
				return err
			default:
				initial = stored
			}
		}

		var opts []state.MaterializerOption
		if c.ConflictCheck {
			opts = append(opts, state.WithConflictCheck())
		}
		opts = append(opts,
			state.WithOnReset(func() { logger.Info("state reset", "room", c.Room) }),
			state.WithOnError(func(err error) { logger.Debug("change rejected", "room", c.Room, "error", err) }),
		)
		mat := state.NewMaterializerFrom(initial, opts...)

		in, err := c.input(ctx)
		if err != nil {
			return err
		}

		n, err := mat.ApplyAll(ctx, in)
		if err != nil {
			return fmt.Errorf("load %s: %w", c.Args.File, err)
		}

		result := mat.State()
		if err := store.Save(ctx, c.Room, result); err != nil {
			return err
		}
		logger.Info("loaded room state", "room", c.Room, "messages", n, "entries", result.Len())

		return s.printYAML(loadResult{
			Room:     c.Room,
			Messages: n,
			Entries:  result.Len(),
			Buckets:  result.Stats(),
		})
	})
}

// input opens the messages to apply. Anything but '-' is fetched through afs,
// so local paths and file:// or mem:// URLs all work.
func (c *LoadCmd) input(ctx context.Context) (io.Reader, error) {
	if c.Args.File == "-" {
		return os.Stdin, nil
	}
	data, err := afs.New().DownloadWithURL(ctx, c.Args.File)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", c.Args.File, err)
	}
	return bytes.NewReader(data), nil
}

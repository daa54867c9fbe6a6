package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jilio/statemap"
	"github.com/jilio/statemap/resolve"
	"github.com/jilio/statemap/stores"
)

// ResolveCmd partitions the state of several rooms (typically forks of one
// room) and resolves conflicts by a fixed preference.
type ResolveCmd struct {
	Prefer string `long:"prefer" choice:"first" choice:"last" choice:"none" default:"first" description:"Candidate to keep for a conflicted key"`
	SaveAs string `long:"save-as" description:"Store the resolved state under this room ID"`

	Args struct {
		Rooms []string `positional-arg-name:"ROOM" required:"2" description:"Rooms to resolve"`
	} `positional-args:"yes" required:"yes"`
}

type conflictView struct {
	Type       string   `yaml:"type"`
	StateKey   string   `yaml:"state_key"`
	Candidates []string `yaml:"candidates"`
	Chosen     string   `yaml:"chosen,omitempty"`
}

type resolveResult struct {
	Rooms        []string       `yaml:"rooms"`
	Unconflicted int            `yaml:"unconflicted"`
	Conflicts    []conflictView `yaml:"conflicts"`
	Entries      int            `yaml:"entries"`
	SavedAs      string         `yaml:"saved_as,omitempty"`
}

func (c *ResolveCmd) Execute(_ []string) error {
	if len(c.Args.Rooms) < 2 {
		return errors.New("resolve: at least two rooms are required")
	}

	return withStore(func(ctx context.Context, s *session, store stores.RoomStore, logger *slog.Logger) error {
		maps := make([]*statemap.StateMap[string], 0, len(c.Args.Rooms))
		for _, room := range c.Args.Rooms {
			m, err := store.Load(ctx, room)
			if err != nil {
				return err
			}
			maps = append(maps, m)
		}

		chosen := make(map[statemap.Key]string)
		var conflicts []conflictView
		resolved, err := resolve.Resolve(ctx, maps,
			func(_ context.Context, k statemap.Key, candidates []string) (string, bool, error) {
				view := conflictView{Type: k.Type, StateKey: k.StateKey, Candidates: candidates}
				defer func() { conflicts = append(conflicts, view) }()

				switch c.Prefer {
				case "none":
					return "", false, nil
				case "last":
					view.Chosen = candidates[len(candidates)-1]
				default:
					view.Chosen = candidates[0]
				}
				chosen[k] = view.Chosen
				return view.Chosen, true, nil
			},
			s.resolveOptions(logger)...,
		)
		if err != nil {
			return err
		}

		result := resolveResult{
			Rooms:        c.Args.Rooms,
			Unconflicted: resolved.Len() - len(chosen),
			Conflicts:    conflicts,
			Entries:      resolved.Len(),
		}

		if c.SaveAs != "" {
			if err := store.Save(ctx, c.SaveAs, resolved); err != nil {
				return fmt.Errorf("save resolved state: %w", err)
			}
			result.SavedAs = c.SaveAs
		}

		return s.printYAML(result)
	})
}

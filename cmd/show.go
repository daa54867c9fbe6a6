package cmd

import (
	"context"
	"iter"
	"log/slog"
	"sort"

	"github.com/jilio/statemap"
	"github.com/jilio/statemap/stores"
)

// ShowCmd prints a room's stored state as YAML.
type ShowCmd struct {
	Room    string `short:"r" long:"room" required:"true" description:"Room ID"`
	Members bool   `long:"members" description:"Include m.room.member entries"`
}

type entryView struct {
	Type     string `yaml:"type"`
	StateKey string `yaml:"state_key"`
	Value    string `yaml:"value"`
}

type memberView struct {
	User  string `yaml:"user"`
	Value string `yaml:"value"`
}

type showResult struct {
	Room      string         `yaml:"room"`
	Entries   int            `yaml:"entries"`
	Buckets   statemap.Stats `yaml:"buckets"`
	State     []entryView    `yaml:"state"`
	JoinRules []entryView    `yaml:"join_rules,omitempty"`
	Members   []memberView   `yaml:"members,omitempty"`
}

func (c *ShowCmd) Execute(_ []string) error {
	return withStore(func(ctx context.Context, s *session, store stores.RoomStore, _ *slog.Logger) error {
		m, err := store.Load(ctx, c.Room)
		if err != nil {
			return err
		}
		if s.obs != nil {
			// Collected once more when telemetry shuts down.
			if _, err := s.obs.ObserveStats(c.Room, m.Stats); err != nil {
				return err
			}
		}
		if s.metrics != nil {
			s.metrics.Track(c.Room, m.Stats)
		}

		result := showResult{
			Room:    c.Room,
			Entries: m.Len(),
			Buckets: m.Stats(),
			State:   entryViews(m.NonMembers()),
		}
		for stateKey, v := range m.JoinRules() {
			result.JoinRules = append(result.JoinRules, entryView{Type: statemap.TypeJoinRules, StateKey: stateKey, Value: v})
		}
		sort.Slice(result.JoinRules, func(i, j int) bool { return result.JoinRules[i].StateKey < result.JoinRules[j].StateKey })

		if c.Members {
			for user, v := range m.Members() {
				result.Members = append(result.Members, memberView{User: user, Value: v})
			}
			sort.Slice(result.Members, func(i, j int) bool { return result.Members[i].User < result.Members[j].User })
		}

		return s.printYAML(result)
	})
}

// entryViews collects seq sorted by type and state key for deterministic output.
func entryViews(seq iter.Seq2[statemap.Key, string]) []entryView {
	var keys []statemap.Key
	values := make(map[statemap.Key]string)
	for k, v := range seq {
		keys = append(keys, k)
		values[k] = v
	}
	statemap.SortKeys(keys)

	views := make([]entryView, 0, len(keys))
	for _, k := range keys {
		views = append(views, entryView{Type: k.Type, StateKey: k.StateKey, Value: values[k]})
	}
	return views
}

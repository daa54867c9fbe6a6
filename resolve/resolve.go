package resolve

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/jilio/statemap"
)

// ErrNoStates is returned by Resolve when no state maps are given.
var ErrNoStates = errors.New("resolve: no state maps given")

// ErrNoChooser is returned by Resolve when the input has conflicts and no
// chooser was given. A nil chooser is fine for conflict-free input.
var ErrNoChooser = errors.New("resolve: chooser is required")

// Chooser picks the value for a conflicted key. Candidates are the distinct
// values seen for the key, in input order. Returning false leaves the key out
// of the resolved state.
type Chooser[E any] func(ctx context.Context, key statemap.Key, candidates []E) (E, bool, error)

// Partition splits the entries of maps into those every map agrees on and
// those that conflict.
//
// A key is unconflicted when every map holds it with the same value. A key
// that differs between maps, or is missing from some of them, is conflicted;
// its distinct values are returned in the order they were first seen. Nil maps
// are treated as empty.
func Partition[E comparable](maps ...*statemap.StateMap[E]) (*statemap.StateMap[E], map[statemap.Key][]E) {
	unconflicted := statemap.New[E]()
	conflicted := make(map[statemap.Key][]E)

	for _, m := range maps {
		if m == nil {
			continue
		}
		for k, v := range m.All() {
			if values, ok := conflicted[k]; ok {
				if !slices.Contains(values, v) {
					conflicted[k] = append(values, v)
				}
				continue
			}
			if prev, conflict := statemap.AddOrRemove(unconflicted, k.Type, k.StateKey, v); conflict {
				conflicted[k] = []E{prev, v}
			}
		}
	}

	var missing []statemap.Key
	for k := range unconflicted.Keys() {
		for _, m := range maps {
			if m == nil || !m.ContainsKey(k.Type, k.StateKey) {
				missing = append(missing, k)
				break
			}
		}
	}
	if len(missing) == 0 {
		return unconflicted, conflicted
	}

	for _, k := range missing {
		v, _ := unconflicted.Get(k.Type, k.StateKey)
		conflicted[k] = []E{v}
	}
	// StateMap has no remove; rebuild without the partially present keys.
	kept := statemap.New[E]()
	for k, v := range unconflicted.All() {
		if _, ok := conflicted[k]; !ok {
			kept.Insert(k.Type, k.StateKey, v)
		}
	}
	return kept, conflicted
}

// Resolve partitions maps and asks choose for the value of every conflicted
// key. Keys are resolved power levels first, then join rules, then
// memberships, then everything else sorted by type and state key.
func Resolve[E comparable](ctx context.Context, maps []*statemap.StateMap[E], choose Chooser[E], opts ...Option) (state *statemap.StateMap[E], err error) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	result := Result{States: len(maps)}
	start := time.Now()
	for _, o := range cfg.observers {
		octx := o.OnResolveStart(ctx, len(maps))
		ctx = octx
		defer func() {
			o.OnResolveComplete(octx, result, time.Since(start), err)
		}()
	}

	if len(maps) == 0 {
		return nil, ErrNoStates
	}

	state, conflicted := Partition(maps...)
	result.Unconflicted = state.Len()
	result.Conflicted = len(conflicted)
	if choose == nil && len(conflicted) > 0 {
		return nil, ErrNoChooser
	}

	if cfg.logger != nil {
		cfg.logger.Debug("partitioned state",
			"states", len(maps),
			"unconflicted", result.Unconflicted,
			"conflicted", result.Conflicted)
	}

	for _, k := range ConflictOrder(conflicted) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, ok, err := choose(ctx, k, conflicted[k])
		if err != nil {
			if cfg.logger != nil {
				cfg.logger.Error("chooser failed", "type", k.Type, "state_key", k.StateKey, "error", err)
			}
			return nil, fmt.Errorf("resolve: choose %s: %w", k, err)
		}
		if !ok {
			continue
		}
		state.Insert(k.Type, k.StateKey, v)
		result.Resolved++
	}

	return state, nil
}

// ConflictOrder returns the keys of conflicted in resolution order.
func ConflictOrder[E any](conflicted map[statemap.Key][]E) []statemap.Key {
	keys := make([]statemap.Key, 0, len(conflicted))
	for k := range conflicted {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ri, rj := rank(keys[i]), rank(keys[j])
		if ri != rj {
			return ri < rj
		}
		if keys[i].Type != keys[j].Type {
			return keys[i].Type < keys[j].Type
		}
		return keys[i].StateKey < keys[j].StateKey
	})
	return keys
}

func rank(k statemap.Key) int {
	switch {
	case k.Type == statemap.TypePowerLevels && k.StateKey == "":
		return 0
	case k.Type == statemap.TypeJoinRules:
		return 1
	case k.Type == statemap.TypeMembership:
		return 2
	}
	return 3
}

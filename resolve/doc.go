// Package resolve splits several room state maps into the entries they agree
// on and the entries they conflict on, and resolves the conflicts with a
// caller supplied function.
//
//	unconflicted, conflicted := resolve.Partition(a, b)
//
//	state, err := resolve.Resolve(ctx, []*statemap.StateMap[string]{a, b},
//	    func(ctx context.Context, key statemap.Key, ids []string) (string, bool, error) {
//	        return ids[0], true, nil
//	    },
//	)
//
// Deciding which event wins is the caller's business; this package only
// handles the bookkeeping.
package resolve

// Package state applies a stream of room state change messages to a
// statemap.StateMap.
//
// # Change Messages
//
// A change message carries an event type, a state key and a JSON value:
//
//	// Set the room topic event
//	msg, _ := state.Insert(statemap.TypeTopic, "", "$topic")
//
//	// Replace a membership, asserting the previous event
//	msg, _ := state.UpdateWithOldValue(statemap.TypeMembership, "@alice:example.org", "$leave", "$join")
//
//	// Remove an entry
//	msg, _ := state.Delete("org.example.custom", "k")
//
// Change messages can be configured with options:
//
//	msg, _ := state.Insert(statemap.TypeName, "", "$name",
//	    state.WithTxID("tx-001"),
//	    state.WithAutoTimestamp(),
//	)
//
// # Control Messages
//
//	state.SnapshotStart("offset")  // Begin snapshot
//	state.SnapshotEnd("offset")    // End snapshot
//	state.Reset("offset")          // Clear and restart
//
// # Materialization
//
//	mat := state.NewMaterializer[string](
//	    state.WithOnReset(func() { log.Println("state reset") }),
//	    state.WithConflictCheck(),
//	)
//	n, err := mat.ApplyAll(ctx, file) // newline delimited JSON
//
//	snapshot := mat.State()
//
// With WithConflictCheck, an update or delete whose old_value does not match
// the stored value clears the entry and fails with ErrConflict, following the
// statemap.AddOrRemove policy.
//
// The wire format matches the Durable Streams State Protocol, with the state
// key carried in the "key" field.
package state

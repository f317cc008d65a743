// Package graph provides the property-graph model the rewrite engine operates
// on: immutable snapshots, patches describing transitions between snapshots,
// and an in-memory store that owns the current snapshot.
//
// # Snapshots
//
// A Snapshot is an immutable view of a labelled property graph. Reads never
// block and never observe partial writes. Applying a Patch produces a new
// Snapshot that shares structure with its parent, so taking and holding
// snapshots is cheap:
//
//	snap := store.Snapshot()
//	next, err := snap.Apply(patch)
//	if err != nil {
//	    return err
//	}
//
// # Patches
//
// A Patch is a declarative delta: vertices and edges to delete, vertices and
// edges to add, and property updates on surviving vertices. Patches validate
// against the snapshot they are applied to; a patch that deletes a missing
// vertex, adds a duplicate id, or leaves an edge dangling is rejected with an
// invalid-class error and the snapshot is unchanged.
//
// Patches with disjoint footprints merge associatively and commutatively via
// Merge, which is what allows independent rewrites to be batched.
package graph

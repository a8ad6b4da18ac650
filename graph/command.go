package graph

// Command lets a node override both its state update and the graph's
// routing decision in one return value. Returning a *Command instead of a
// plain state value skips whatever static or conditional edge would
// otherwise fire: Goto is taken as-is.
//
// Update, when non-nil, must be assignable to the graph's state type S;
// a node that only wants to redirect control flow without changing state
// can leave it nil.
type Command struct {
	// Update is merged into the graph state the same way a plain node
	// return value would be (via the schema, state merger, or overwrite).
	Update any

	// Goto is either a single node name (string) or a list of node names
	// ([]string) to run next, bypassing the graph's declared edges.
	Goto any
}

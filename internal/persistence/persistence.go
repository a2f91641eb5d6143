package persistence

// Persistence bundles the store interfaces so the executor can depend on
// a single abstraction.
type Persistence struct {
	Snapshots SnapshotStore
	Events    EventStore
}

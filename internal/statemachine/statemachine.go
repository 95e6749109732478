// Package statemachine holds the public StateMachine/Snapshot contract a
// Group drives (spec.md §6). It mirrors internal/engine's interfaces of
// the identical name field-for-field: Go interface satisfaction is
// structural, so any type built against this package also satisfies
// internal/engine.StateMachine without an import cycle between the two.
package statemachine

// StateMachine is the pluggable application hook: apply a committed
// entry, absorb an inbound snapshot, and produce an outbound one.
type StateMachine interface {
	// Exec applies one committed log entry in index order and returns the
	// result delivered back to the original proposer.
	Exec(index uint64, term uint32, input []byte) (output []byte, err error)

	// InstallSnapshot feeds one chunk of an inbound snapshot at offset;
	// done marks the final chunk.
	InstallSnapshot(index uint64, term uint32, offset int64, done bool, chunk []byte) error

	// TakeSnapshot begins producing an outbound snapshot as of the state
	// machine's current applied index.
	TakeSnapshot() (Snapshot, error)

	// Close releases any resources the state machine holds.
	Close() error
}

// Snapshot is the iterable handle TakeSnapshot returns: ReadNext yields
// successive chunks until done, after which the snapshot is exhausted.
type Snapshot interface {
	LastIncludedIndex() uint64
	LastIncludedTerm() uint32
	ReadNext() (chunk []byte, done bool, err error)
}

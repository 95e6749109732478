package engine

// Snapshot is the iterable handle returned by StateMachine.TakeSnapshot:
// ReadNext yields successive chunks until it returns done=true, after
// which the snapshot is exhausted (spec.md §6).
type Snapshot interface {
	LastIncludedIndex() uint64
	LastIncludedTerm() uint32
	ReadNext() (chunk []byte, done bool, err error)
}

// StateMachine is the contract ApplyManager and SnapshotManager drive
// (spec.md §6). The root package's public StateMachine interface has the
// identical method set; any type satisfying one satisfies the other,
// since Go interface satisfaction is structural.
type StateMachine interface {
	// Exec applies one committed entry in index order and returns its
	// result, which is delivered back to the proposer via TailCache.
	Exec(index uint64, term uint32, input []byte) (output []byte, err error)

	// InstallSnapshot feeds one chunk of an inbound snapshot at the given
	// byte offset; done marks the final chunk.
	InstallSnapshot(index uint64, term uint32, offset int64, done bool, chunk []byte) error

	// TakeSnapshot begins producing an outbound snapshot as of the state
	// machine's current applied index.
	TakeSnapshot() (Snapshot, error)

	// Close releases any resources the state machine holds.
	Close() error
}

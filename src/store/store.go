package store

// Store is an interface for round history backends.
type Store interface {
	// CacheSize is the number of rounds kept in memory.
	CacheSize() int
	// GetRound returns the record of a round by sequence number.
	GetRound(seq int64) (*RoundRecord, error)
	// SetRound stores the record of a round. Sequence numbers must be
	// consecutive.
	SetRound(rec *RoundRecord) error
	// LastRound returns the sequence number of the last stored round, or -1.
	LastRound() int64
	// RoundsSince returns the cached records with a sequence number greater
	// than skip.
	RoundsSince(skip int64) ([]*RoundRecord, error)
	// Close closes the underlying database.
	Close() error
	// StorePath returns the filepath of the underlying database.
	StorePath() string
}

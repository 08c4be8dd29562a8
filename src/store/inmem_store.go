package store

import (
	"strconv"
	"sync"

	cm "github.com/mosaicnetworks/chaos/src/common"
)

// InmemStore implements the Store interface with a rolling window of rounds.
// Older rounds are evicted when the window is full. It is safe for concurrent
// use: the round loop writes while the service reads.
type InmemStore struct {
	sync.RWMutex
	cacheSize int
	rounds    *cm.RollingIndex[*RoundRecord]
}

// NewInmemStore creates a new InmemStore holding at least cacheSize rounds.
func NewInmemStore(cacheSize int) *InmemStore {
	return &InmemStore{
		cacheSize: cacheSize,
		rounds:    cm.NewRollingIndex[*RoundRecord]("Round", cacheSize),
	}
}

// CacheSize implements the Store interface.
func (s *InmemStore) CacheSize() int {
	return s.cacheSize
}

// GetRound implements the Store interface.
func (s *InmemStore) GetRound(seq int64) (*RoundRecord, error) {
	s.RLock()
	defer s.RUnlock()

	if s.rounds.LastIndex() < 0 {
		return nil, cm.NewStoreErr("Round", cm.Empty, strconv.FormatInt(seq, 10))
	}
	return s.rounds.GetItem(seq)
}

// SetRound implements the Store interface.
func (s *InmemStore) SetRound(rec *RoundRecord) error {
	s.Lock()
	defer s.Unlock()

	return s.rounds.Set(rec, rec.Seq)
}

// LastRound implements the Store interface.
func (s *InmemStore) LastRound() int64 {
	s.RLock()
	defer s.RUnlock()

	return s.rounds.LastIndex()
}

// RoundsSince implements the Store interface.
func (s *InmemStore) RoundsSince(skip int64) ([]*RoundRecord, error) {
	s.RLock()
	defer s.RUnlock()

	return s.rounds.Since(skip)
}

// Close implements the Store interface.
func (s *InmemStore) Close() error {
	return nil
}

// StorePath implements the Store interface. InmemStore has no path.
func (s *InmemStore) StorePath() string {
	return ""
}

package store

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/dgraph-io/badger"
	cm "github.com/mosaicnetworks/chaos/src/common"
)

const (
	roundPrefix = "round"
	lastKey     = "last_round"
)

// BadgerStore writes rounds through an InmemStore to a Badger database.
type BadgerStore struct {
	inmemStore *InmemStore
	db         *badger.DB
	path       string
}

// NewBadgerStore creates a brand new Store with a new database.
func NewBadgerStore(cacheSize int, path string) (*BadgerStore, error) {
	handle, err := openDB(path)
	if err != nil {
		return nil, err
	}
	store := &BadgerStore{
		inmemStore: NewInmemStore(cacheSize),
		db:         handle,
		path:       path,
	}
	return store, nil
}

// LoadBadgerStore opens an existing database. The last stored round is loaded
// into the cache so that the sequence continues where it stopped.
func LoadBadgerStore(cacheSize int, path string) (*BadgerStore, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	handle, err := openDB(path)
	if err != nil {
		return nil, err
	}
	store := &BadgerStore{
		inmemStore: NewInmemStore(cacheSize),
		db:         handle,
		path:       path,
	}

	last, err := store.dbLastRound()
	if err != nil {
		if isDBKeyNotFound(err) {
			return store, nil
		}
		handle.Close()
		return nil, err
	}

	rec, err := store.dbGetRound(last)
	if err != nil {
		handle.Close()
		return nil, err
	}
	if err := store.inmemStore.SetRound(rec); err != nil {
		handle.Close()
		return nil, err
	}

	return store, nil
}

// LoadOrCreateBadgerStore loads the database at path, or creates it.
func LoadOrCreateBadgerStore(cacheSize int, path string) (*BadgerStore, error) {
	store, err := LoadBadgerStore(cacheSize, path)

	if err != nil {
		store, err = NewBadgerStore(cacheSize, path)

		if err != nil {
			return nil, err
		}
	}

	return store, nil
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path)
	opts.SyncWrites = false
	return badger.Open(opts)
}

func roundKey(seq int64) []byte {
	return []byte(fmt.Sprintf("%s_%09d", roundPrefix, seq))
}

//==============================================================================
//Implement the Store interface

// CacheSize ...
func (s *BadgerStore) CacheSize() int {
	return s.inmemStore.CacheSize()
}

// GetRound ...
func (s *BadgerStore) GetRound(seq int64) (*RoundRecord, error) {
	res, err := s.inmemStore.GetRound(seq)
	if err != nil {
		res, err = s.dbGetRound(seq)
	}
	return res, mapError(err, "Round", string(roundKey(seq)))
}

// SetRound ...
func (s *BadgerStore) SetRound(rec *RoundRecord) error {
	if err := s.inmemStore.SetRound(rec); err != nil {
		return err
	}
	return s.dbSetRound(rec)
}

// LastRound ...
func (s *BadgerStore) LastRound() int64 {
	return s.inmemStore.LastRound()
}

// RoundsSince returns cached rounds, and reads older ones from the database.
func (s *BadgerStore) RoundsSince(skip int64) ([]*RoundRecord, error) {
	res, err := s.inmemStore.RoundsSince(skip)
	if err == nil {
		return res, nil
	}
	if !cm.IsStore(err, cm.TooLate) {
		return nil, err
	}

	res = []*RoundRecord{}
	for seq := skip + 1; seq <= s.LastRound(); seq++ {
		rec, err := s.GetRound(seq)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, nil
}

// Close ...
func (s *BadgerStore) Close() error {
	if err := s.inmemStore.Close(); err != nil {
		return err
	}
	return s.db.Close()
}

// StorePath ...
func (s *BadgerStore) StorePath() string {
	return s.path
}

//++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++
//DB Methods

func (s *BadgerStore) dbGetRound(seq int64) (*RoundRecord, error) {
	var recBytes []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(roundKey(seq))
		if err != nil {
			return err
		}
		recBytes, err = item.ValueCopy(nil)
		return err
	})

	if err != nil {
		return nil, err
	}

	rec := new(RoundRecord)
	if err := rec.Unmarshal(recBytes); err != nil {
		return nil, err
	}

	return rec, nil
}

func (s *BadgerStore) dbSetRound(rec *RoundRecord) error {
	tx := s.db.NewTransaction(true)
	defer tx.Discard()

	val, err := rec.Marshal()
	if err != nil {
		return err
	}

	//insert [round_seq] => [record bytes]
	if err := tx.Set(roundKey(rec.Seq), val); err != nil {
		return err
	}

	if err := tx.Set([]byte(lastKey), []byte(strconv.FormatInt(rec.Seq, 10))); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *BadgerStore) dbLastRound() (int64, error) {
	var last []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(lastKey))
		if err != nil {
			return err
		}
		last, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return -1, err
	}
	return strconv.ParseInt(string(last), 10, 64)
}

func isDBKeyNotFound(err error) bool {
	return errors.Is(err, badger.ErrKeyNotFound)
}

func mapError(err error, name, key string) error {
	if err != nil {
		if isDBKeyNotFound(err) {
			return cm.NewStoreErr(name, cm.KeyNotFound, key)
		}
	}
	return err
}

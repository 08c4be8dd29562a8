package store

import (
	"path/filepath"
	"testing"

	cm "github.com/mosaicnetworks/chaos/src/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBadgerStoreRounds(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "badger")

	store, err := NewBadgerStore(3, dir)
	require.NoError(t, err)
	assert.Equal(t, dir, store.StorePath())

	for i := int64(0); i < 12; i++ {
		require.NoError(t, store.SetRound(record(i)))
	}

	// round 1 has left the cache and comes from the database
	rec, err := store.GetRound(1)
	require.NoError(t, err)
	assert.Equal(t, record(1), rec)

	recs, err := store.RoundsSince(0)
	require.NoError(t, err)
	require.Len(t, recs, 11)
	for i, r := range recs {
		assert.Equal(t, int64(i+1), r.Seq)
	}

	if _, err := store.GetRound(40); !cm.IsStore(err, cm.KeyNotFound) {
		t.Fatalf("expected KeyNotFound, got %v", err)
	}

	require.NoError(t, store.Close())
}

func TestLoadBadgerStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "badger")

	store, err := LoadOrCreateBadgerStore(3, dir)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), store.LastRound())

	for i := int64(0); i < 5; i++ {
		require.NoError(t, store.SetRound(record(i)))
	}
	require.NoError(t, store.Close())

	loaded, err := LoadBadgerStore(3, dir)
	require.NoError(t, err)
	defer loaded.Close()

	assert.Equal(t, int64(4), loaded.LastRound())
	require.NoError(t, loaded.SetRound(record(5)))

	rec, err := loaded.GetRound(2)
	require.NoError(t, err)
	assert.Equal(t, record(2), rec)
}

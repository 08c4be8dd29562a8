package reducer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMax(t *testing.T) {
	r := Max{N: 3}
	a := []byte{1, 2, 3}
	b := []byte{1, 3, 0}

	assert.Equal(t, a, r.Merge(a, a))
	assert.Equal(t, b, r.Merge(a, b))
	assert.Equal(t, b, r.Merge(b, a))

	// the result never aliases an input
	out := r.Merge(a, a)
	out[0] = 9
	assert.Equal(t, byte(1), a[0])
}

func TestElection(t *testing.T) {
	r := Election{}
	low := Candidate(5, 3)
	high := Candidate(9, 1)
	none := []byte{0, 0}

	for _, v := range [][]byte{low, high, none} {
		assert.Equal(t, v, r.Merge(v, v))
	}

	assert.Equal(t, high, r.Merge(low, high))
	assert.Equal(t, high, r.Merge(high, low))
	assert.Equal(t, low, r.Merge(none, low))
	assert.Equal(t, low, r.Merge(low, none))

	// equal priorities go to the higher index
	a := Candidate(7, 2)
	b := Candidate(7, 4)
	assert.Equal(t, b, r.Merge(a, b))
	assert.Equal(t, b, r.Merge(b, a))

	// short or missing values never win and never panic
	assert.Equal(t, low, r.Merge(low, []byte{9}))
	assert.Equal(t, low, r.Merge(nil, low))
	assert.Equal(t, none, r.Merge([]byte{3}, nil))

	idx, prio, ok := Elected(b)
	assert.True(t, ok)
	assert.Equal(t, uint8(4), idx)
	assert.Equal(t, uint8(7), prio)

	_, _, ok = Elected(none)
	assert.False(t, ok)
}

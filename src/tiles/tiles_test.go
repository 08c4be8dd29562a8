package tiles

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var grid = Grid{Width: 4, Height: 4, MaxNodes: 8}

func claim(index uint8, value uint16, path Path) []byte {
	p := grid.NewPlan()
	p.Reserve(path, Owner(index))
	p.Claims[index] = value
	return p.Bytes()
}

func decode(t *testing.T, b []byte) *Plan {
	p, err := grid.Decode(b)
	require.NoError(t, err)
	return p
}

func TestRoute(t *testing.T) {
	path := grid.Route(0, 0, 2, 1)
	assert.Equal(t, Path{0, 1, 2, 6}, path)

	back := grid.Route(2, 1, 0, 0)
	assert.Equal(t, Path{0, 4, 5, 6}, back)

	x, y := grid.Coords(6)
	assert.Equal(t, 2, x)
	assert.Equal(t, 1, y)
}

func TestPlanPaths(t *testing.T) {
	p := grid.NewPlan()
	path := NewPath(5, 1, 5, 9)
	assert.Equal(t, Path{1, 5, 9}, path)

	assert.True(t, p.PathAvailable(path, 3))
	assert.False(t, p.PathReserved(path, 3))

	p.Reserve(path, 3)
	assert.True(t, p.PathReserved(path, 3))
	assert.False(t, p.PathAvailable(path, 4))
	assert.Equal(t, path, p.ExtractPath(3))

	p.Release(3)
	assert.Empty(t, p.ExtractPath(3))
}

func TestPlanEncoding(t *testing.T) {
	b := claim(2, 0x0102, Path{0, 15})
	assert.Len(t, b, grid.Size())

	p := decode(t, b)
	assert.Equal(t, uint8(3), p.Tiles[0])
	assert.Equal(t, uint8(3), p.Tiles[15])
	assert.Equal(t, uint16(0x0102), p.Claims[2])

	_, err := grid.Decode(b[1:])
	assert.Error(t, err)
}

func TestPriorityConflict(t *testing.T) {
	r := Reducer{Grid: grid, Policy: ByPriority}
	low := claim(1, 5, Path{6})
	high := claim(2, 9, Path{6})

	for _, merged := range [][]byte{r.Merge(low, high), r.Merge(high, low)} {
		p := decode(t, merged)
		assert.Equal(t, Owner(2), p.Tiles[6])
		assert.Equal(t, uint16(5), p.Claims[1], "claims never regress")
		assert.Equal(t, uint16(9), p.Claims[2])
	}
}

func TestPriorityTieGoesToHigherIndex(t *testing.T) {
	r := Reducer{Grid: grid, Policy: ByPriority}
	a := claim(1, 7, Path{3})
	b := claim(4, 7, Path{3})

	p := decode(t, r.Merge(a, b))
	assert.Equal(t, Owner(4), p.Tiles[3])
}

func TestArrivalConflict(t *testing.T) {
	r := Reducer{Grid: grid, Policy: ByArrival}
	early := claim(5, 3, Path{1, 2})
	late := claim(1, 8, Path{2, 3})
	none := claim(0, 0, Path{1})

	for _, merged := range [][]byte{r.Merge(early, late), r.Merge(late, early)} {
		p := decode(t, merged)
		assert.True(t, p.PathReserved(Path{1, 2}, Owner(5)))
		assert.Empty(t, p.ExtractPath(Owner(1)))
	}

	// a claimant without arrival is served after the ones with one
	p := decode(t, r.Merge(none, early))
	assert.True(t, p.PathReserved(Path{1, 2}, Owner(5)))
	assert.Empty(t, p.ExtractPath(Owner(0)))
}

func TestDisjointClaimsAreKept(t *testing.T) {
	r := Reducer{Grid: grid, Policy: ByPriority}
	a := claim(1, 1, Path{0, 1})
	b := claim(2, 1, Path{14, 15})

	p := decode(t, r.Merge(a, b))
	assert.True(t, p.PathReserved(Path{0, 1}, Owner(1)))
	assert.True(t, p.PathReserved(Path{14, 15}, Owner(2)))
}

func randomPlan(rng *rand.Rand) []byte {
	p := grid.NewPlan()
	for i := 0; i < grid.MaxNodes; i++ {
		if rng.Intn(2) == 0 {
			continue
		}
		x0, y0 := rng.Intn(grid.Width), rng.Intn(grid.Height)
		x1, y1 := rng.Intn(grid.Width), rng.Intn(grid.Height)
		path := grid.Route(x0, y0, x1, y1)
		if p.PathAvailable(path, Owner(uint8(i))) {
			p.Reserve(path, Owner(uint8(i)))
			p.Claims[i] = uint16(1 + rng.Intn(20))
		}
	}
	return p.Bytes()
}

func TestMergeIdempotentAndCommutative(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for _, policy := range []Policy{ByPriority, ByArrival} {
		r := Reducer{Grid: grid, Policy: policy}
		for i := 0; i < 200; i++ {
			a := randomPlan(rng)
			b := randomPlan(rng)

			if got := r.Merge(a, a); !assert.Equal(t, a, got, "%s idempotent", policy) {
				return
			}
			if !assert.Equal(t, r.Merge(a, b), r.Merge(b, a), "%s commutative", policy) {
				return
			}
		}
	}
}

func TestGridValidate(t *testing.T) {
	assert.NoError(t, grid.Validate())
	assert.Error(t, Grid{Width: 0, Height: 4, MaxNodes: 4}.Validate())
	assert.Error(t, Grid{Width: 2, Height: 1, MaxNodes: 0}.Validate())
	assert.Error(t, Grid{Width: 2, Height: 1, MaxNodes: 256}.Validate())

	// the highest member index of the largest valid grid still owns only its
	// own tiles
	big := Grid{Width: 2, Height: 1, MaxNodes: MaxOwners}
	require.NoError(t, big.Validate())

	last := uint8(MaxOwners - 1)
	p := big.NewPlan()
	p.Reserve(NewPath(0), Owner(last))
	p.Claims[last] = 7
	x := p.Bytes()

	r := Reducer{Grid: big, Policy: ByPriority}
	merged := r.Merge(x, x)
	assert.Equal(t, x, merged)

	m, err := big.Decode(merged)
	require.NoError(t, err)
	assert.Equal(t, NewPath(0), m.ExtractPath(Owner(last)))
}

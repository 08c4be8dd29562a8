// Package tiles implements the tile-reservation value agreed on by an
// intersection swarm: a grid of tiles, each owned by at most one member, and
// per-member claims (a priority or an arrival time) used to arbitrate
// conflicting reservations.
package tiles

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/mosaicnetworks/chaos/src/common"
)

// MaxOwners is the number of members a plan can tell apart: owner bytes run
// from 1 to 255 and 0 marks a free tile.
const MaxOwners = 255

// Grid describes the reservable area.
type Grid struct {
	Width    int
	Height   int
	MaxNodes int
}

// Validate checks that every member index maps to a distinct non-zero owner
// byte and that the grid has at least one tile.
func (g Grid) Validate() error {
	switch {
	case g.Width < 1 || g.Height < 1:
		return common.NewChaosErr("tiles", common.InvalidConfig,
			fmt.Sprintf("grid %dx%d has no tiles", g.Width, g.Height))
	case g.MaxNodes < 1 || g.MaxNodes > MaxOwners:
		return common.NewChaosErr("tiles", common.InvalidConfig,
			fmt.Sprintf("grid max nodes %d out of [1, %d]", g.MaxNodes, MaxOwners))
	}
	return nil
}

// NumTiles ...
func (g Grid) NumTiles() int {
	return g.Width * g.Height
}

// Size returns the encoded size of a Plan.
func (g Grid) Size() int {
	return g.NumTiles() + 2*g.MaxNodes
}

// Tile returns the tile index of (x, y).
func (g Grid) Tile(x, y int) int {
	return y*g.Width + x
}

// Coords returns the coordinates of tile t.
func (g Grid) Coords(t int) (x, y int) {
	return t % g.Width, t / g.Width
}

// Route returns the tiles crossed going from (x0, y0) to (x1, y1), first
// along x then along y.
func (g Grid) Route(x0, y0, x1, y1 int) Path {
	tiles := []int{}
	step := func(a, b int) int {
		if a < b {
			return 1
		}
		return -1
	}
	x, y := x0, y0
	tiles = append(tiles, g.Tile(x, y))
	for x != x1 {
		x += step(x, x1)
		tiles = append(tiles, g.Tile(x, y))
	}
	for y != y1 {
		y += step(y, y1)
		tiles = append(tiles, g.Tile(x, y))
	}
	return NewPath(tiles...)
}

// Path is a set of tiles in ascending order.
type Path []int

// NewPath returns the path made of the given tiles.
func NewPath(tiles ...int) Path {
	p := append(Path{}, tiles...)
	sort.Ints(p)
	res := p[:0]
	for i, t := range p {
		if i == 0 || t != p[i-1] {
			res = append(res, t)
		}
	}
	return res
}

// Less orders paths lexicographically, shorter prefix first.
func (p Path) Less(o Path) bool {
	for i := 0; i < len(p) && i < len(o); i++ {
		if p[i] != o[i] {
			return p[i] < o[i]
		}
	}
	return len(p) < len(o)
}

// Equal ...
func (p Path) Equal(o Path) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

// Owner returns the tile owner byte of the member at index. Index 255 has no
// owner byte; Grid.Validate rejects grids that could hand it out.
func Owner(index uint8) uint8 {
	return index + 1
}

// Plan is a decoded tile-reservation value. Tiles[t] is the owner of tile t
// (member index + 1) or 0 when free. Claims[i] is the claim of the member at
// index i.
type Plan struct {
	grid   Grid
	Tiles  []uint8
	Claims []uint16
}

// NewPlan returns an empty plan.
func (g Grid) NewPlan() *Plan {
	return &Plan{
		grid:   g,
		Tiles:  make([]uint8, g.NumTiles()),
		Claims: make([]uint16, g.MaxNodes),
	}
}

// Decode reads a plan from its encoding.
func (g Grid) Decode(b []byte) (*Plan, error) {
	if len(b) != g.Size() {
		return nil, common.NewChaosErr("tiles", common.InvalidPacket,
			fmt.Sprintf("plan is %d bytes, expected %d", len(b), g.Size()))
	}
	p := g.NewPlan()
	copy(p.Tiles, b[:g.NumTiles()])
	off := g.NumTiles()
	for i := range p.Claims {
		p.Claims[i] = binary.LittleEndian.Uint16(b[off+2*i:])
	}
	return p, nil
}

// Bytes encodes the plan.
func (p *Plan) Bytes() []byte {
	g := p.grid
	b := make([]byte, g.Size())
	copy(b, p.Tiles)
	off := g.NumTiles()
	for i, c := range p.Claims {
		binary.LittleEndian.PutUint16(b[off+2*i:], c)
	}
	return b
}

// ExtractPath returns the tiles held by owner.
func (p *Plan) ExtractPath(owner uint8) Path {
	path := Path{}
	for t, o := range p.Tiles {
		if o == owner {
			path = append(path, t)
		}
	}
	return path
}

// PathAvailable reports whether every tile of path is free or already held by
// owner.
func (p *Plan) PathAvailable(path Path, owner uint8) bool {
	for _, t := range path {
		if t < 0 || t >= len(p.Tiles) {
			return false
		}
		if o := p.Tiles[t]; o != 0 && o != owner {
			return false
		}
	}
	return true
}

// PathReserved reports whether every tile of a non-empty path is held by
// owner.
func (p *Plan) PathReserved(path Path, owner uint8) bool {
	if len(path) == 0 {
		return false
	}
	for _, t := range path {
		if t < 0 || t >= len(p.Tiles) || p.Tiles[t] != owner {
			return false
		}
	}
	return true
}

// Reserve assigns every tile of path to owner.
func (p *Plan) Reserve(path Path, owner uint8) {
	for _, t := range path {
		if t >= 0 && t < len(p.Tiles) {
			p.Tiles[t] = owner
		}
	}
}

// Release frees every tile held by owner.
func (p *Plan) Release(owner uint8) {
	for t, o := range p.Tiles {
		if o == owner {
			p.Tiles[t] = 0
		}
	}
}

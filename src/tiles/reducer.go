package tiles

import "sort"

// Policy orders competing claimants.
type Policy uint8

const (
	// ByPriority serves higher claims first; equal claims go to the higher
	// index.
	ByPriority Policy = iota
	// ByArrival serves earlier arrivals first; a zero claim has no arrival
	// and is served last. Equal arrivals go to the lower index.
	ByArrival
)

// String ...
func (p Policy) String() string {
	switch p {
	case ByPriority:
		return "priority"
	case ByArrival:
		return "arrival"
	default:
		return "unknown"
	}
}

// Reducer merges two plans. Claims are merged by maximum. Claimants are then
// served one by one in policy order; each one gets the first of its candidate
// paths from either plan whose tiles are all still free.
type Reducer struct {
	Grid   Grid
	Policy Policy
}

// Size implements the mergecommit.Reducer interface.
func (r Reducer) Size() int {
	return r.Grid.Size()
}

type claimant struct {
	index uint8
	claim uint16
}

// Merge implements the mergecommit.Reducer interface.
func (r Reducer) Merge(a, b []byte) []byte {
	pa, err := r.Grid.Decode(a)
	if err != nil {
		return append([]byte{}, b...)
	}
	pb, err := r.Grid.Decode(b)
	if err != nil {
		return append([]byte{}, a...)
	}

	out := r.Grid.NewPlan()
	claimants := []claimant{}
	for i := 0; i < r.Grid.MaxNodes; i++ {
		c := pa.Claims[i]
		if pb.Claims[i] > c {
			c = pb.Claims[i]
		}
		out.Claims[i] = c

		owner := Owner(uint8(i))
		if c > 0 || len(pa.ExtractPath(owner)) > 0 || len(pb.ExtractPath(owner)) > 0 {
			claimants = append(claimants, claimant{index: uint8(i), claim: c})
		}
	}

	sort.Slice(claimants, func(i, j int) bool {
		return r.before(claimants[i], claimants[j])
	})

	for _, c := range claimants {
		owner := Owner(c.index)
		for _, path := range candidates(pa.ExtractPath(owner), pb.ExtractPath(owner)) {
			if out.PathAvailable(path, owner) {
				out.Reserve(path, owner)
				break
			}
		}
	}

	return out.Bytes()
}

func (r Reducer) before(x, y claimant) bool {
	switch r.Policy {
	case ByArrival:
		if x.claim != y.claim {
			if x.claim == 0 || y.claim == 0 {
				return y.claim == 0
			}
			return x.claim < y.claim
		}
		return x.index < y.index
	default:
		if x.claim != y.claim {
			return x.claim > y.claim
		}
		return x.index > y.index
	}
}

// candidates orders the paths of one claimant independently of which plan
// they came from.
func candidates(p, q Path) []Path {
	res := make([]Path, 0, 2)
	switch {
	case len(p) == 0 && len(q) == 0:
	case len(p) == 0:
		res = append(res, q)
	case len(q) == 0 || p.Equal(q):
		res = append(res, p)
	case q.Less(p):
		res = append(res, q, p)
	default:
		res = append(res, p, q)
	}
	return res
}

package mergecommit

import "math/rand"

// restartPolicy draws the number of consecutive failed receptions after which
// a node retransmits without news. The jitter keeps nodes that missed the same
// slot from retransmitting in lockstep.
type restartPolicy struct {
	min, max  int
	rng       *rand.Rand
	threshold int
}

func newRestartPolicy(min, max int, seed int64) *restartPolicy {
	r := &restartPolicy{
		min: min,
		max: max,
		rng: rand.New(rand.NewSource(seed)),
	}
	r.redraw()
	return r
}

// redraw picks a new threshold in [min, max).
func (r *restartPolicy) redraw() int {
	r.threshold = r.min + r.rng.Intn(r.max-r.min)
	return r.threshold
}

// Package reducer holds general purpose merge-commit reducers.
package reducer

import "bytes"

// Max keeps the lexicographically largest of two N byte values.
type Max struct {
	N int
}

// Size implements the mergecommit.Reducer interface.
func (m Max) Size() int {
	return m.N
}

// Merge implements the mergecommit.Reducer interface.
func (m Max) Merge(a, b []byte) []byte {
	if bytes.Compare(a, b) >= 0 {
		return append([]byte{}, a...)
	}
	return append([]byte{}, b...)
}

// Election elects one member. Its value is (priority, index+1); 0 for the
// second byte means no candidate. The higher priority wins and equal
// priorities go to the higher index.
type Election struct{}

// ElectionSize is the size of an Election value.
const ElectionSize = 2

// Candidate returns the Election value proposing the member at index with
// the given priority.
func Candidate(priority uint8, index uint8) []byte {
	return []byte{priority, index + 1}
}

// Elected returns the index elected by value v.
func Elected(v []byte) (index uint8, priority uint8, ok bool) {
	if len(v) != ElectionSize || v[1] == 0 {
		return 0, 0, false
	}
	return v[1] - 1, v[0], true
}

// Size implements the mergecommit.Reducer interface.
func (Election) Size() int {
	return ElectionSize
}

// Merge implements the mergecommit.Reducer interface. A value that is not
// ElectionSize bytes long counts as no candidate.
func (Election) Merge(a, b []byte) []byte {
	aOK, bOK := isCandidate(a), isCandidate(b)
	switch {
	case !aOK && !bOK:
		return make([]byte, ElectionSize)
	case !aOK:
		return append([]byte{}, b...)
	case !bOK:
		return append([]byte{}, a...)
	case a[0] != b[0]:
		if a[0] > b[0] {
			return append([]byte{}, a...)
		}
		return append([]byte{}, b...)
	case a[1] >= b[1]:
		return append([]byte{}, a...)
	default:
		return append([]byte{}, b...)
	}
}

func isCandidate(v []byte) bool {
	return len(v) == ElectionSize && v[1] != 0
}

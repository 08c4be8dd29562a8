package common

import "github.com/spaolacci/murmur3"

// NodeIDFromMoniker derives a stable non-zero 16-bit node identity from a
// human readable name. Identity 0 means "no node" on the wire.
func NodeIDFromMoniker(moniker string) uint16 {
	id := uint16(murmur3.Sum32([]byte(moniker)))
	if id == 0 {
		id = 1
	}
	return id
}

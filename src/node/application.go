package node

import "github.com/mosaicnetworks/chaos/src/mergecommit"

// Application is the interface a node uses to obtain proposals and deliver
// agreed values.
type Application interface {
	// Proposal returns the value proposed for a round. Its length must match
	// the size of the reducer the node was built with.
	Proposal(round uint16) []byte
	// Commit is called after every round that reached the COMMIT phase on this
	// node, with Outcome.Value holding the agreed value.
	Commit(outcome *mergecommit.Outcome) error
}

// Package node implements the reactive component of a Chaos node.
//
// A node runs one merge-commit round after another through its flooder. Before
// each round it asks the Application for a proposal; after the round it hands
// committed outcomes back to the Application, records the round in its store
// and updates its metrics. Node implements a state machine where the states are
// defined in the state package.
//
// Rounds
//
// Chaos nodes do not exchange point-to-point messages. In every slot of a round
// each radio either transmits its current packet or listens, and the engine in
// the mergecommit package folds every received packet into its own. A round
// starts in the MERGE phase, where proposals are reduced into one value, and
// moves to the COMMIT phase when the initiator has seen every member's flag.
// The COMMIT packet then spreads to everyone, carrying the agreed value.
//
// Dynamic Membership
//
// The initiator holds index 0 from the start. Every other node starts in the
// Joining state and piggybacks a join request on the packets it relays. When
// the initiator commits, it hands out indices and the joiners that see the
// COMMIT packet become Members. A member that calls Leave sets its leave bit in
// the next rounds; once a committed round has evicted it, the node becomes a
// Forwarder. Forwarders keep relaying packets without a say in the value.
//
// A node that sees a packet with a different configuration counter than its
// own has missed a membership change. It drops its index and goes back to the
// Joining state.
package node

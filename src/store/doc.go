// Package store keeps the history of the rounds a node took part in.
//
// InmemStore keeps the most recent rounds in a rolling window. BadgerStore
// writes every round through to a Badger database and falls back to it for
// rounds that have left the window. Protocol state is never restored from a
// store; the history is only there for applications and operators.
package store

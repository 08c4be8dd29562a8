package common

import (
	"errors"
	"fmt"
)

// ChaosErrType enumerates the failure classes of the round protocol. None of
// them is fatal; they are surfaced as values so that a single faulty node never
// halts the swarm.
type ChaosErrType uint32

const (
	// ReceptionFailure is a slot whose reception failed an integrity check.
	ReceptionFailure ChaosErrType = iota
	// MembershipOverflow is a member table or pending-join list that ran out of
	// capacity.
	MembershipOverflow
	// ConfigMismatch is a member whose join configuration disagrees with the
	// swarm's.
	ConfigMismatch
	// NonConvergence is a round that ran out of slots before full coverage.
	NonConvergence
	// InvalidPacket is a buffer that cannot be decoded with the current layout.
	InvalidPacket
	// InvalidConfig is a set of protocol parameters that cannot work together.
	InvalidConfig
	// Closed is an operation on a node that was shut down.
	Closed
)

// String returns the name of the error type.
func (t ChaosErrType) String() string {
	switch t {
	case ReceptionFailure:
		return "Reception Failure"
	case MembershipOverflow:
		return "Membership Overflow"
	case ConfigMismatch:
		return "Config Mismatch"
	case NonConvergence:
		return "Non Convergence"
	case InvalidPacket:
		return "Invalid Packet"
	case InvalidConfig:
		return "Invalid Config"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// ChaosErr is a protocol error tagged with its type.
type ChaosErr struct {
	component string
	errType   ChaosErrType
	msg       string
}

// NewChaosErr creates a ChaosErr.
func NewChaosErr(component string, errType ChaosErrType, msg string) ChaosErr {
	return ChaosErr{
		component: component,
		errType:   errType,
		msg:       msg,
	}
}

// Type returns the error type.
func (e ChaosErr) Type() ChaosErrType {
	return e.errType
}

// Error implements the error interface.
func (e ChaosErr) Error() string {
	return fmt.Sprintf("%s, %s, %s", e.component, e.errType, e.msg)
}

// Is reports whether err wraps a ChaosErr of type t.
func Is(err error, t ChaosErrType) bool {
	var chaosErr ChaosErr
	return errors.As(err, &chaosErr) && chaosErr.errType == t
}

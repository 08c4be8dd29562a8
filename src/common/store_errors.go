package common

import (
	"errors"
	"fmt"
)

// StoreErrType classifies round-store lookups that did not return a record.
type StoreErrType uint32

const (
	// KeyNotFound means the record was never written.
	KeyNotFound StoreErrType = iota
	// TooLate means the record was rolled out of the in-memory window.
	TooLate
	// SkippedIndex means a write would leave a gap in sequence numbers.
	SkippedIndex
	// Empty means nothing was written yet.
	Empty
)

func (t StoreErrType) String() string {
	switch t {
	case KeyNotFound:
		return "Not Found"
	case TooLate:
		return "Too Late"
	case SkippedIndex:
		return "Skipped Index"
	case Empty:
		return "Empty"
	default:
		return "Unknown"
	}
}

// StoreErr reports a failed store access on a record of the given kind.
type StoreErr struct {
	kind    string
	errType StoreErrType
	key     string
}

// NewStoreErr creates a StoreErr.
func NewStoreErr(kind string, errType StoreErrType, key string) StoreErr {
	return StoreErr{
		kind:    kind,
		errType: errType,
		key:     key,
	}
}

// Type returns the error type.
func (e StoreErr) Type() StoreErrType {
	return e.errType
}

func (e StoreErr) Error() string {
	return fmt.Sprintf("%s %s: %s", e.kind, e.key, e.errType)
}

// IsStore reports whether err wraps a StoreErr of type t.
func IsStore(err error, t StoreErrType) bool {
	var storeErr StoreErr
	return errors.As(err, &storeErr) && storeErr.errType == t
}

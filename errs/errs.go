// Package errs defines the error kinds shared across the validator core.
//
// Kinds are not Go types; they are a closed enumeration attached to a
// wrapping Error so callers can discriminate failures without string
// matching, while pkg/errors still carries the causal chain and stack.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind enumerates the error categories a validator component can report.
type Kind int

const (
	Other Kind = iota
	InvalidConfig
	AlreadyRegistered
	NotFound
	Validation
	Storage
	Serialization
	PolicyViolation
	LimitExceeded
	Timeout
	ConsensusRequired
	Execution
	FuelExhausted
	MemoryBoundsViolation
	NetworkPolicyError
	Crypto
	IO
)

func (k Kind) String() string {
	switch k {
	case InvalidConfig:
		return "InvalidConfig"
	case AlreadyRegistered:
		return "AlreadyRegistered"
	case NotFound:
		return "NotFound"
	case Validation:
		return "Validation"
	case Storage:
		return "Storage"
	case Serialization:
		return "Serialization"
	case PolicyViolation:
		return "PolicyViolation"
	case LimitExceeded:
		return "LimitExceeded"
	case Timeout:
		return "Timeout"
	case ConsensusRequired:
		return "ConsensusRequired"
	case Execution:
		return "Execution"
	case FuelExhausted:
		return "FuelExhausted"
	case MemoryBoundsViolation:
		return "MemoryBoundsViolation"
	case NetworkPolicyError:
		return "NetworkPolicyError"
	case Crypto:
		return "Crypto"
	case IO:
		return "IO"
	default:
		return "Other"
	}
}

// Error wraps an underlying cause with a Kind and the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// E builds an *Error, wrapping err (if non-nil) with pkg/errors for a stack trace.
func E(op string, kind Kind, err error) *Error {
	if err != nil {
		err = errors.WithStack(err)
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind carried by err, or Other if err is not (or does not wrap) an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Other
}

package core

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
)

var (
	// ErrChainUnavailable is returned when an endpoint cannot be reached.
	ErrChainUnavailable = errors.New("chain unavailable")
	// ErrHeightNotFound is returned when a queried height does not exist on the chain.
	ErrHeightNotFound = errors.New("height not found")
	// ErrProofUnavailable is returned when a proof cannot be produced at the requested height.
	ErrProofUnavailable = errors.New("proof unavailable")
	// ErrInvalidHeader is returned when a header cannot be linked to the trusted state.
	ErrInvalidHeader = errors.New("invalid header")
	// ErrVerification is returned when light client verification fails.
	ErrVerification = errors.New("verification failed")
	// ErrRejected is returned when the chain deterministically rejects a transaction.
	ErrRejected = errors.New("rejected")
	// ErrUnconfirmed is returned when the outcome of a submission is unknown.
	ErrUnconfirmed = errors.New("unconfirmed")
	// ErrChannelClosed is returned when a packet cannot be delivered because its channel is closed.
	ErrChannelClosed = errors.New("channel closed")
	// ErrUnrelayable is returned when a packet can never be relayed.
	ErrUnrelayable = errors.New("unrelayable")
	// ErrAlreadyRelayed is returned when every packet message in a transaction was already processed by the chain.
	ErrAlreadyRelayed = errors.New("already relayed")
)

// HeightNotFoundError reports a missing height.
// Pruned distinguishes a height that no longer exists from one that does not exist yet.
type HeightNotFoundError struct {
	Height clienttypes.Height
	Pruned bool
}

func (e *HeightNotFoundError) Error() string {
	if e.Pruned {
		return fmt.Sprintf("height %v has been pruned", e.Height)
	}
	return fmt.Sprintf("height %v is not yet available", e.Height)
}

func (e *HeightNotFoundError) Is(target error) bool {
	return target == ErrHeightNotFound
}

// RejectedError is a deterministic rejection reported by the chain.
type RejectedError struct {
	Reason string
}

func NewRejectedError(format string, args ...any) *RejectedError {
	return &RejectedError{Reason: fmt.Sprintf(format, args...)}
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("rejected: %s", e.Reason)
}

func (e *RejectedError) Is(target error) bool {
	return target == ErrRejected
}

// IsPrunedHeight reports whether err was caused by querying a pruned height.
func IsPrunedHeight(err error) bool {
	var hnf *HeightNotFoundError
	return errors.As(err, &hnf) && hnf.Pruned
}

// IsTransient reports whether err may succeed when retried later.
// Unknown errors are treated as transient so that a packet is never dropped on an unexpected failure.
func IsTransient(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrRejected),
		errors.Is(err, ErrAlreadyRelayed),
		errors.Is(err, ErrChannelClosed),
		errors.Is(err, ErrUnrelayable),
		errors.Is(err, ErrInvalidHeader),
		errors.Is(err, ErrVerification):
		return false
	case IsPrunedHeight(err):
		return false
	default:
		return true
	}
}

// classifySubmitError maps an error from a submission call into the taxonomy.
// An expired per-call deadline means the outcome is unknown, never a rejection.
func classifySubmitError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrAlreadyRelayed), errors.Is(err, ErrRejected):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return errors.Mark(errors.Wrap(err, "submission timed out"), ErrUnconfirmed)
	case errors.Is(err, ErrUnconfirmed), errors.Is(err, ErrChainUnavailable):
		return err
	default:
		return errors.Mark(err, ErrUnconfirmed)
	}
}

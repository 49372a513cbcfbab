package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrNoSender      = errors.New("no connected account to send from")
	ErrInvalidAmount = errors.New("invalid order amount")
)

// RemoteError is a call the ledger (or the wallet on its behalf) rejected.
// Reason keeps the node's message verbatim so it can be shown to the user.
type RemoteError struct {
	Method   string
	Reverted bool
	Reason   string
	Err      error
}

func (e *RemoteError) Error() string {
	if e.Reverted {
		return fmt.Sprintf("ledger %s reverted: %s", e.Method, e.Reason)
	}
	return fmt.Sprintf("ledger %s: %s", e.Method, e.Reason)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// DecodeError means the response did not have the expected shape, which
// points at a client/contract version mismatch rather than anything the user
// can act on.
type DecodeError struct {
	Method string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Method, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

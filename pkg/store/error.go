package store

import "errors"

var (
	ErrNoIdentity   = errors.New("no connected account")
	ErrWrongNetwork = errors.New("wallet is on the wrong network")
	// ErrSuperseded is returned by a read whose result was dropped because the
	// selection or the identity changed while it was in flight.
	ErrSuperseded = errors.New("superseded by a newer read")
)

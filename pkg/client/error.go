package client

import (
	"context"
	"errors"

	"github.com/joripage/transfer-orders/pkg/ledger"
	"github.com/joripage/transfer-orders/pkg/session"
	"github.com/joripage/transfer-orders/pkg/store"
	"github.com/joripage/transfer-orders/pkg/txn"
	"github.com/joripage/transfer-orders/pkg/wallet"
)

var (
	ErrInvalidOrderID = errors.New("invalid order id")
	ErrNoSelection    = errors.New("no order selected")
	ErrActionDisabled = errors.New("action not available for the selected order")
	ErrNotConnected   = errors.New("wallet not connected")
)

// Kind groups failures by what the user can do about them.
type Kind int

const (
	KindUnknown Kind = iota
	// KindEnvironment: wallet absent, wrong network, switch declined.
	KindEnvironment
	// KindIdentity: ownership signature declined.
	KindIdentity
	// KindRemote: a read or write the ledger rejected, including reverts.
	KindRemote
	// KindDecoding: a response with the wrong shape.
	KindDecoding
	// KindPrecondition: an intent that was not valid in the current view.
	KindPrecondition
)

func (k Kind) String() string {
	switch k {
	case KindEnvironment:
		return "environment"
	case KindIdentity:
		return "identity"
	case KindRemote:
		return "remote"
	case KindDecoding:
		return "decoding"
	case KindPrecondition:
		return "precondition"
	default:
		return "unknown"
	}
}

// Classify maps an error returned by any intent to its Kind.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var decodeErr *ledger.DecodeError
	if errors.As(err, &decodeErr) {
		return KindDecoding
	}

	switch {
	case errors.Is(err, ErrInvalidOrderID),
		errors.Is(err, ErrNoSelection),
		errors.Is(err, ErrActionDisabled),
		errors.Is(err, ledger.ErrInvalidAmount):
		return KindPrecondition
	case errors.Is(err, ErrNotConnected),
		errors.Is(err, ledger.ErrNoSender),
		errors.Is(err, store.ErrNoIdentity),
		errors.Is(err, wallet.ErrWalletUnavailable),
		errors.Is(err, wallet.ErrUnrecognizedChain),
		errors.Is(err, wallet.ErrNoAccounts),
		errors.Is(err, txn.ErrWrongNetwork),
		errors.Is(err, store.ErrWrongNetwork):
		return KindEnvironment
	case errors.Is(err, session.ErrIdentityChanged):
		return KindIdentity
	}

	var pe *wallet.ProviderError
	if errors.As(err, &pe) && pe.Method == "personal_sign" {
		return KindIdentity
	}

	var remoteErr *ledger.RemoteError
	switch {
	case errors.As(err, &remoteErr),
		errors.Is(err, ledger.ErrOrderNotFound),
		errors.Is(err, txn.ErrTxReverted),
		errors.Is(err, txn.ErrNoReceipt),
		errors.As(err, &pe):
		return KindRemote
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindEnvironment
	}
	return KindUnknown
}

// Reason returns the text to show the user: the ledger's own reason for
// rejected calls, the error text otherwise.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var remoteErr *ledger.RemoteError
	if errors.As(err, &remoteErr) && remoteErr.Reason != "" {
		return remoteErr.Reason
	}
	return err.Error()
}

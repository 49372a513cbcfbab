package wallet

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"
)

// EIP-1193 provider error codes.
const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnsupported       = 4200
	CodeDisconnected      = 4900
	CodeUnrecognizedChain = 4902
)

var (
	ErrWalletUnavailable  = errors.New("wallet provider is not available")
	ErrUserRejected       = errors.New("user rejected the request")
	ErrUnrecognizedChain  = errors.New("chain is not registered in the wallet")
	ErrNoAccounts         = errors.New("wallet exposes no accounts")
	ErrReceiptUnavailable = errors.New("transaction receipt unavailable")
)

// ProviderError is a JSON-RPC error answered by the wallet.
type ProviderError struct {
	Method  string
	Code    int
	Message string
	Data    interface{}
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("wallet %s: code %d: %s", e.Method, e.Code, e.Message)
}

func (e *ProviderError) Is(target error) bool {
	switch target {
	case ErrUserRejected:
		return e.Code == CodeUserRejected
	case ErrUnrecognizedChain:
		return e.Code == CodeUnrecognizedChain
	case ErrWalletUnavailable:
		return e.Code == CodeDisconnected || e.Code == CodeUnsupported
	}
	return false
}

// wrapRPCError turns a go-ethereum rpc error into a ProviderError when the
// server answered with a JSON-RPC error object. Transport failures are
// reported as ErrWalletUnavailable.
func wrapRPCError(method string, err error) error {
	if err == nil {
		return nil
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		pe := &ProviderError{Method: method, Code: rpcErr.ErrorCode(), Message: rpcErr.Error()}
		var dataErr rpc.DataError
		if errors.As(err, &dataErr) {
			pe.Data = dataErr.ErrorData()
		}
		return pe
	}
	return fmt.Errorf("%s: %w: %v", method, ErrWalletUnavailable, err)
}

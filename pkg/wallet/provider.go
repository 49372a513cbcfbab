package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/joripage/transfer-orders/pkg/logging"
	"github.com/joripage/transfer-orders/pkg/model"
	"go.uber.org/zap"
)

type rpcCaller interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

type receiptFetcher interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// ReceiptPolling controls how often a pending transaction is polled. There is
// no deadline: a transaction that never lands keeps the caller waiting until
// its context ends.
type ReceiptPolling struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultReceiptPolling() ReceiptPolling {
	return ReceiptPolling{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     15 * time.Second,
	}
}

// RPCProvider talks EIP-1193 JSON-RPC to a wallet endpoint (a browser bridge,
// Frame, a local signer) and reads receipts through the same connection.
type RPCProvider struct {
	rpc      rpcCaller
	receipts receiptFetcher
	polling  ReceiptPolling
	logger   *logging.Logger
}

// ProviderOption configures an RPCProvider.
type ProviderOption func(*RPCProvider)

func WithReceiptPolling(p ReceiptPolling) ProviderOption {
	return func(w *RPCProvider) {
		w.polling = p
	}
}

func WithLogger(l *logging.Logger) ProviderOption {
	return func(w *RPCProvider) {
		w.logger = l.Named("wallet")
	}
}

func NewRPCProvider(caller rpcCaller, receipts receiptFetcher, opts ...ProviderOption) *RPCProvider {
	w := &RPCProvider{
		rpc:      caller,
		receipts: receipts,
		polling:  DefaultReceiptPolling(),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *RPCProvider) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	if w == nil || w.rpc == nil {
		return ErrWalletUnavailable
	}
	return wrapRPCError(method, w.rpc.CallContext(ctx, result, method, args...))
}

func (w *RPCProvider) Accounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := w.call(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (w *RPCProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := w.call(ctx, &accounts, "eth_requestAccounts"); err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, ErrNoAccounts
	}
	return accounts, nil
}

func (w *RPCProvider) ChainID(ctx context.Context) (string, error) {
	var id string
	if err := w.call(ctx, &id, "eth_chainId"); err != nil {
		return "", err
	}
	return id, nil
}

func (w *RPCProvider) SwitchChain(ctx context.Context, chainID string) error {
	return w.call(ctx, nil, "wallet_switchEthereumChain", map[string]string{"chainId": chainID})
}

func (w *RPCProvider) AddChain(ctx context.Context, params model.ChainParams) error {
	return w.call(ctx, nil, "wallet_addEthereumChain", params)
}

func (w *RPCProvider) SignMessage(ctx context.Context, account common.Address, message string) ([]byte, error) {
	var sig hexutil.Bytes
	if err := w.call(ctx, &sig, "personal_sign", hexutil.Encode([]byte(message)), account); err != nil {
		return nil, err
	}
	return sig, nil
}

type sendTxArgs struct {
	From  common.Address  `json:"from"`
	To    common.Address  `json:"to"`
	Data  hexutil.Bytes   `json:"data,omitempty"`
	Value *hexutil.Big    `json:"value,omitempty"`
	Gas   *hexutil.Uint64 `json:"gas,omitempty"`
}

func (w *RPCProvider) SendTransaction(ctx context.Context, tx TxRequest) (common.Hash, error) {
	args := sendTxArgs{From: tx.From, To: tx.To, Data: tx.Data}
	if tx.Value != nil && tx.Value.Sign() > 0 {
		args.Value = (*hexutil.Big)(tx.Value)
	}
	if tx.Gas > 0 {
		gas := hexutil.Uint64(tx.Gas)
		args.Gas = &gas
	}

	var hash common.Hash
	if err := w.call(ctx, &hash, "eth_sendTransaction", args); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

// WaitForReceipt blocks until the transaction is included. Not-yet-mined is
// the only condition that keeps polling; any other failure ends the wait.
func (w *RPCProvider) WaitForReceipt(ctx context.Context, hash common.Hash) (*model.Receipt, error) {
	if w.receipts == nil {
		return nil, ErrReceiptUnavailable
	}

	boff := backoff.NewExponentialBackOff()
	boff.InitialInterval = w.polling.InitialInterval
	boff.MaxInterval = w.polling.MaxInterval
	boff.MaxElapsedTime = 0

	var receipt *types.Receipt
	op := func() error {
		r, err := w.receipts.TransactionReceipt(ctx, hash)
		if errors.Is(err, ethereum.NotFound) {
			return err
		}
		if err != nil {
			return backoff.Permanent(wrapRPCError("eth_getTransactionReceipt", err))
		}
		receipt = r
		return nil
	}
	notify := func(_ error, next time.Duration) {
		w.logger.Debug(ctx, "transaction pending", zap.String("tx", hash.Hex()), zap.Duration("next_poll", next))
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(boff, ctx), notify); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	return &model.Receipt{
		TxHash:      receipt.TxHash,
		BlockNumber: receipt.BlockNumber,
		GasUsed:     receipt.GasUsed,
		Success:     receipt.Status == types.ReceiptStatusSuccessful,
	}, nil
}

// DialConfig describes how to reach the wallet endpoint.
type DialConfig struct {
	URL            string
	MaxElapsedTime time.Duration
}

// DialWithBackoff connects to the wallet endpoint, retrying with exponential
// backoff until MaxElapsedTime.
func DialWithBackoff(ctx context.Context, cfg DialConfig) (*rpc.Client, error) {
	if cfg.URL == "" {
		return nil, ErrWalletUnavailable
	}

	var client *rpc.Client
	boff := backoff.NewExponentialBackOff()
	boff.MaxElapsedTime = cfg.MaxElapsedTime
	err := backoff.Retry(func() error {
		var err error
		client, err = rpc.DialContext(ctx, cfg.URL)
		if err != nil {
			zap.S().Debugf("dial wallet %s fail: %v", cfg.URL, err)
		}
		return err
	}, backoff.WithContext(boff, ctx))
	if err != nil {
		return nil, errors.Join(ErrWalletUnavailable, err)
	}
	return client, nil
}

package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/joripage/transfer-orders/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRPCError struct {
	code int
	msg  string
}

func (e *testRPCError) Error() string  { return e.msg }
func (e *testRPCError) ErrorCode() int { return e.code }

type rpcCall struct {
	method string
	args   []interface{}
}

// fakeRPC answers by JSON round-tripping canned responses, the way the real
// client decodes results.
type fakeRPC struct {
	mu        sync.Mutex
	responses map[string]interface{}
	errs      map[string]error
	calls     []rpcCall
}

func newFakeRPC() *fakeRPC {
	return &fakeRPC{responses: map[string]interface{}{}, errs: map[string]error{}}
}

func (f *fakeRPC) CallContext(_ context.Context, result interface{}, method string, args ...interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, rpcCall{method: method, args: args})
	if err := f.errs[method]; err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	raw, err := json.Marshal(f.responses[method])
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, result)
}

type fakeReceipts struct {
	pending int
	calls   int
	err     error
	receipt *types.Receipt
}

func (f *fakeReceipts) TransactionReceipt(_ context.Context, _ common.Hash) (*types.Receipt, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.calls <= f.pending {
		return nil, ethereum.NotFound
	}
	return f.receipt, nil
}

var fastPolling = WithReceiptPolling(ReceiptPolling{InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond})

func TestProviderChainIDAndAccounts(t *testing.T) {
	rpc := newFakeRPC()
	rpc.responses["eth_chainId"] = "0x13881"
	rpc.responses["eth_accounts"] = []string{"0x00000000000000000000000000000000000000aa"}
	w := NewRPCProvider(rpc, nil)

	id, err := w.ChainID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0x13881", id)

	accounts, err := w.Accounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []common.Address{common.HexToAddress("0xaa")}, accounts)
}

func TestProviderRequestAccountsEmpty(t *testing.T) {
	rpc := newFakeRPC()
	rpc.responses["eth_requestAccounts"] = []string{}
	w := NewRPCProvider(rpc, nil)

	_, err := w.RequestAccounts(context.Background())
	assert.ErrorIs(t, err, ErrNoAccounts)
}

func TestProviderErrorCodes(t *testing.T) {
	rpc := newFakeRPC()
	rpc.errs["wallet_switchEthereumChain"] = &testRPCError{code: CodeUnrecognizedChain, msg: "Unrecognized chain ID"}
	rpc.errs["personal_sign"] = &testRPCError{code: CodeUserRejected, msg: "User denied message signature"}
	rpc.errs["eth_chainId"] = errors.New("connection refused")
	w := NewRPCProvider(rpc, nil)

	err := w.SwitchChain(context.Background(), "0x13881")
	assert.ErrorIs(t, err, ErrUnrecognizedChain)
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "wallet_switchEthereumChain", pe.Method)

	_, err = w.SignMessage(context.Background(), common.HexToAddress("0xaa"), "hello")
	assert.ErrorIs(t, err, ErrUserRejected)

	_, err = w.ChainID(context.Background())
	assert.ErrorIs(t, err, ErrWalletUnavailable)
}

func TestNilProviderIsUnavailable(t *testing.T) {
	var w *RPCProvider
	_, err := w.ChainID(context.Background())
	assert.ErrorIs(t, err, ErrWalletUnavailable)
}

func TestProviderSendTransactionArgs(t *testing.T) {
	rpc := newFakeRPC()
	want := common.HexToHash("0x1234")
	rpc.responses["eth_sendTransaction"] = want.Hex()
	w := NewRPCProvider(rpc, nil)

	hash, err := w.SendTransaction(context.Background(), TxRequest{
		From:  common.HexToAddress("0xaa"),
		To:    common.HexToAddress("0xbb"),
		Data:  []byte{0x01},
		Value: big.NewInt(1001),
		Gas:   100000,
	})
	require.NoError(t, err)
	assert.Equal(t, want, hash)

	require.Len(t, rpc.calls, 1)
	raw, err := json.Marshal(rpc.calls[0].args[0])
	require.NoError(t, err)
	var sent map[string]string
	require.NoError(t, json.Unmarshal(raw, &sent))
	assert.Equal(t, "0x3e9", sent["value"])
	assert.Equal(t, "0x186a0", sent["gas"])
	assert.Equal(t, "0x01", sent["data"])
}

func TestProviderAddChainSendsParams(t *testing.T) {
	rpc := newFakeRPC()
	w := NewRPCProvider(rpc, nil)

	params := model.ChainParams{ChainID: "0x13881", ChainName: "Polygon Mumbai"}
	require.NoError(t, w.AddChain(context.Background(), params))
	require.Len(t, rpc.calls, 1)
	assert.Equal(t, "wallet_addEthereumChain", rpc.calls[0].method)
	assert.Equal(t, params, rpc.calls[0].args[0])
}

func TestWaitForReceiptPollsUntilMined(t *testing.T) {
	receipts := &fakeReceipts{
		pending: 2,
		receipt: &types.Receipt{
			Status:      types.ReceiptStatusSuccessful,
			TxHash:      common.HexToHash("0x01"),
			BlockNumber: big.NewInt(42),
			GasUsed:     21000,
		},
	}
	w := NewRPCProvider(newFakeRPC(), receipts, fastPolling)

	r, err := w.WaitForReceipt(context.Background(), common.HexToHash("0x01"))
	require.NoError(t, err)
	assert.Equal(t, 3, receipts.calls)
	assert.True(t, r.Success)
	assert.Equal(t, int64(42), r.BlockNumber.Int64())
}

func TestWaitForReceiptReverted(t *testing.T) {
	receipts := &fakeReceipts{receipt: &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(1)}}
	w := NewRPCProvider(newFakeRPC(), receipts, fastPolling)

	r, err := w.WaitForReceipt(context.Background(), common.Hash{})
	require.NoError(t, err)
	assert.False(t, r.Success)
}

func TestWaitForReceiptTransportErrorStops(t *testing.T) {
	receipts := &fakeReceipts{err: errors.New("boom")}
	w := NewRPCProvider(newFakeRPC(), receipts, fastPolling)

	_, err := w.WaitForReceipt(context.Background(), common.Hash{})
	require.Error(t, err)
	assert.Equal(t, 1, receipts.calls)
}

func TestWaitForReceiptHonoursContext(t *testing.T) {
	receipts := &fakeReceipts{pending: 1 << 30}
	w := NewRPCProvider(newFakeRPC(), receipts, fastPolling)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := w.WaitForReceipt(ctx, common.Hash{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

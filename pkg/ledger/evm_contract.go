package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/joripage/transfer-orders/pkg/wallet"
)

// DoubleTransferABI is the subset of the escrow contract ABI the client uses.
const DoubleTransferABI = `[
  {"type":"function","name":"createOrder","stateMutability":"payable",
   "inputs":[{"name":"receiver","type":"address"}],"outputs":[]},
  {"type":"function","name":"confirmOrder","stateMutability":"nonpayable",
   "inputs":[{"name":"id","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"modifyReceiver","stateMutability":"nonpayable",
   "inputs":[{"name":"id","type":"uint256"},{"name":"newReceiver","type":"address"}],"outputs":[]},
  {"type":"function","name":"cancelOrder","stateMutability":"nonpayable",
   "inputs":[{"name":"id","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"getOrder","stateMutability":"view",
   "inputs":[{"name":"id","type":"uint256"}],
   "outputs":[{"name":"receiver","type":"address"},{"name":"amount","type":"uint256"},{"name":"createdAt","type":"uint256"}]},
  {"type":"function","name":"getOrderStatus","stateMutability":"view",
   "inputs":[{"name":"id","type":"uint256"}],"outputs":[{"name":"","type":"uint8"}]},
  {"type":"function","name":"getOrderIdsByAddress","stateMutability":"view",
   "inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256[]"}]},
  {"type":"function","name":"getUserStats","stateMutability":"view",
   "inputs":[{"name":"user","type":"address"}],
   "outputs":[{"name":"count","type":"uint256"},{"name":"volume","type":"uint256"}]},
  {"type":"function","name":"getProtocolStats","stateMutability":"view",
   "inputs":[],"outputs":[{"name":"count","type":"uint256"},{"name":"volume","type":"uint256"}]},
  {"type":"function","name":"fee","stateMutability":"view",
   "inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

// codeExecutionReverted is what geth-style nodes answer for a reverted eth_call.
const codeExecutionReverted = 3

// TxSender signs and broadcasts a transaction; the wallet provides it.
type TxSender interface {
	SendTransaction(ctx context.Context, tx wallet.TxRequest) (common.Hash, error)
}

// EVMContract binds Contract to a deployed contract: reads go through eth_call,
// writes are handed to the wallet for signing.
type EVMContract struct {
	address common.Address
	abi     abi.ABI
	caller  ethereum.ContractCaller
	sender  TxSender
}

func NewEVMContract(address common.Address, caller ethereum.ContractCaller, sender TxSender) (*EVMContract, error) {
	parsed, err := abi.JSON(strings.NewReader(DoubleTransferABI))
	if err != nil {
		return nil, fmt.Errorf("parse contract abi: %w", err)
	}
	return &EVMContract{
		address: address,
		abi:     parsed,
		caller:  caller,
		sender:  sender,
	}, nil
}

func (c *EVMContract) Address() common.Address {
	return c.address
}

func (c *EVMContract) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	to := c.address
	output, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: input}, nil)
	if err != nil {
		return nil, remoteError(method, err)
	}
	if len(output) == 0 {
		return nil, &DecodeError{Method: method, Err: errors.New("empty response, is the contract deployed on this network?")}
	}

	out, err := c.abi.Unpack(method, output)
	if err != nil {
		return nil, &DecodeError{Method: method, Err: err}
	}
	return out, nil
}

func (c *EVMContract) transact(ctx context.Context, opts TxOpts, method string, args ...interface{}) (common.Hash, error) {
	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack %s: %w", method, err)
	}

	hash, err := c.sender.SendTransaction(ctx, wallet.TxRequest{
		From:  opts.From,
		To:    c.address,
		Data:  input,
		Value: opts.Value,
		Gas:   opts.GasLimit,
	})
	if err != nil {
		return common.Hash{}, remoteError(method, err)
	}
	return hash, nil
}

func (c *EVMContract) GetOrder(ctx context.Context, id *big.Int) (RawOrder, error) {
	const method = "getOrder"
	out, err := c.call(ctx, method, id)
	if err != nil {
		return RawOrder{}, err
	}
	if len(out) != 3 {
		return RawOrder{}, outputCountError(method, 3, len(out))
	}

	receiver, ok1 := out[0].(common.Address)
	amount, ok2 := out[1].(*big.Int)
	createdAt, ok3 := out[2].(*big.Int)
	if !ok1 || !ok2 || !ok3 {
		return RawOrder{}, &DecodeError{Method: method, Err: fmt.Errorf("unexpected output types %T, %T, %T", out[0], out[1], out[2])}
	}
	return RawOrder{Receiver: receiver, Amount: amount, CreatedAt: createdAt}, nil
}

func (c *EVMContract) GetOrderStatus(ctx context.Context, id *big.Int) (uint8, error) {
	const method = "getOrderStatus"
	out, err := c.call(ctx, method, id)
	if err != nil {
		return 0, err
	}
	if len(out) != 1 {
		return 0, outputCountError(method, 1, len(out))
	}
	status, ok := out[0].(uint8)
	if !ok {
		return 0, &DecodeError{Method: method, Err: fmt.Errorf("unexpected output type %T", out[0])}
	}
	return status, nil
}

func (c *EVMContract) GetOrderIDs(ctx context.Context, owner common.Address) ([]*big.Int, error) {
	const method = "getOrderIdsByAddress"
	out, err := c.call(ctx, method, owner)
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, outputCountError(method, 1, len(out))
	}
	ids, ok := out[0].([]*big.Int)
	if !ok {
		return nil, &DecodeError{Method: method, Err: fmt.Errorf("unexpected output type %T", out[0])}
	}
	return ids, nil
}

func (c *EVMContract) GetUserStats(ctx context.Context, user common.Address) (RawStats, error) {
	return c.stats(ctx, "getUserStats", user)
}

func (c *EVMContract) GetProtocolStats(ctx context.Context) (RawStats, error) {
	return c.stats(ctx, "getProtocolStats")
}

func (c *EVMContract) stats(ctx context.Context, method string, args ...interface{}) (RawStats, error) {
	out, err := c.call(ctx, method, args...)
	if err != nil {
		return RawStats{}, err
	}
	if len(out) != 2 {
		return RawStats{}, outputCountError(method, 2, len(out))
	}
	count, ok1 := out[0].(*big.Int)
	volume, ok2 := out[1].(*big.Int)
	if !ok1 || !ok2 {
		return RawStats{}, &DecodeError{Method: method, Err: fmt.Errorf("unexpected output types %T, %T", out[0], out[1])}
	}
	return RawStats{Count: count, Volume: volume}, nil
}

func (c *EVMContract) Fee(ctx context.Context) (*big.Int, error) {
	const method = "fee"
	out, err := c.call(ctx, method)
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, outputCountError(method, 1, len(out))
	}
	fee, ok := out[0].(*big.Int)
	if !ok {
		return nil, &DecodeError{Method: method, Err: fmt.Errorf("unexpected output type %T", out[0])}
	}
	return fee, nil
}

func (c *EVMContract) CreateOrder(ctx context.Context, opts TxOpts, receiver common.Address) (common.Hash, error) {
	return c.transact(ctx, opts, "createOrder", receiver)
}

func (c *EVMContract) ConfirmOrder(ctx context.Context, opts TxOpts, id *big.Int) (common.Hash, error) {
	return c.transact(ctx, opts, "confirmOrder", id)
}

func (c *EVMContract) ModifyReceiver(ctx context.Context, opts TxOpts, id *big.Int, receiver common.Address) (common.Hash, error) {
	return c.transact(ctx, opts, "modifyReceiver", id, receiver)
}

func (c *EVMContract) CancelOrder(ctx context.Context, opts TxOpts, id *big.Int) (common.Hash, error) {
	return c.transact(ctx, opts, "cancelOrder", id)
}

func outputCountError(method string, want, got int) error {
	return &DecodeError{Method: method, Err: fmt.Errorf("expected %d outputs, got %d", want, got)}
}

func remoteError(method string, err error) error {
	re := &RemoteError{Method: method, Reason: err.Error(), Err: err}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == codeExecutionReverted {
		re.Reverted = true
	}
	if strings.Contains(strings.ToLower(re.Reason), "execution reverted") {
		re.Reverted = true
	}
	var pe *wallet.ProviderError
	if errors.As(err, &pe) {
		re.Reason = pe.Message
		if pe.Code == codeExecutionReverted {
			re.Reverted = true
		}
	}
	return re
}

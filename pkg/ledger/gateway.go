package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joripage/transfer-orders/pkg/logging"
	"github.com/joripage/transfer-orders/pkg/model"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// NativeDecimals is the number of decimals of the chain's native currency.
const NativeDecimals = 18

// DefaultGasLimit is used for id-bearing writes when none is configured.
const DefaultGasLimit uint64 = 100000

// Sender yields the account writes are sent from.
type Sender interface {
	Current() (common.Address, bool)
}

// SenderFunc is a function adapter for Sender.
type SenderFunc func() (common.Address, bool)

func (f SenderFunc) Current() (common.Address, bool) { return f() }

// OrderRecord is an order as getOrder reports it, without its status.
type OrderRecord struct {
	ID        uint64
	Receiver  common.Address
	Amount    decimal.Decimal
	CreatedAt time.Time
}

// Gateway is the typed facade over the contract: decimal amounts, uint64 ids,
// typed failures. It never retries.
type Gateway struct {
	contract Contract
	sender   Sender
	gasLimit uint64
	logger   *logging.Logger
}

type GatewayOption func(*Gateway)

func WithGasLimit(limit uint64) GatewayOption {
	return func(g *Gateway) { g.gasLimit = limit }
}

func WithLogger(l *logging.Logger) GatewayOption {
	return func(g *Gateway) { g.logger = l.Named("ledger") }
}

func NewGateway(contract Contract, sender Sender, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		contract: contract,
		sender:   sender,
		gasLimit: DefaultGasLimit,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) Order(ctx context.Context, id uint64) (OrderRecord, error) {
	raw, err := g.contract.GetOrder(ctx, new(big.Int).SetUint64(id))
	if err != nil {
		return OrderRecord{}, notFoundOnRevert(err)
	}
	if raw.Amount == nil || raw.CreatedAt == nil {
		return OrderRecord{}, &DecodeError{Method: "getOrder", Err: errors.New("missing fields")}
	}
	// out-of-range ids read back as the zero record on contracts that do not revert
	if raw.CreatedAt.Sign() == 0 && raw.Receiver == (common.Address{}) {
		return OrderRecord{}, fmt.Errorf("order %d: %w", id, ErrOrderNotFound)
	}
	if !raw.CreatedAt.IsInt64() {
		return OrderRecord{}, &DecodeError{Method: "getOrder", Err: fmt.Errorf("timestamp %s out of range", raw.CreatedAt)}
	}

	return OrderRecord{
		ID:        id,
		Receiver:  raw.Receiver,
		Amount:    FromWei(raw.Amount),
		CreatedAt: time.Unix(raw.CreatedAt.Int64(), 0).UTC(),
	}, nil
}

func (g *Gateway) OrderStatus(ctx context.Context, id uint64) (model.OrderStatus, error) {
	raw, err := g.contract.GetOrderStatus(ctx, new(big.Int).SetUint64(id))
	if err != nil {
		return 0, notFoundOnRevert(err)
	}
	status, err := model.ParseOrderStatus(raw)
	if err != nil {
		return 0, &DecodeError{Method: "getOrderStatus", Err: err}
	}
	return status, nil
}

// OrderIDs returns the ids the ledger attributes to owner, in insertion order.
func (g *Gateway) OrderIDs(ctx context.Context, owner common.Address) ([]uint64, error) {
	raw, err := g.contract.GetOrderIDs(ctx, owner)
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(raw))
	for _, id := range raw {
		if id == nil || !id.IsUint64() {
			return nil, &DecodeError{Method: "getOrderIdsByAddress", Err: fmt.Errorf("order id %v out of range", id)}
		}
		ids = append(ids, id.Uint64())
	}
	return ids, nil
}

func (g *Gateway) UserStats(ctx context.Context, user common.Address) (model.Stats, error) {
	raw, err := g.contract.GetUserStats(ctx, user)
	if err != nil {
		return model.Stats{}, err
	}
	return toStats("getUserStats", raw)
}

func (g *Gateway) ProtocolStats(ctx context.Context) (model.Stats, error) {
	raw, err := g.contract.GetProtocolStats(ctx)
	if err != nil {
		return model.Stats{}, err
	}
	return toStats("getProtocolStats", raw)
}

func (g *Gateway) Fee(ctx context.Context) (decimal.Decimal, error) {
	fee, err := g.feeWei(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return FromWei(fee), nil
}

func (g *Gateway) feeWei(ctx context.Context) (*big.Int, error) {
	fee, err := g.contract.Fee(ctx)
	if err != nil {
		return nil, err
	}
	if fee == nil || fee.Sign() < 0 {
		return nil, &DecodeError{Method: "fee", Err: fmt.Errorf("invalid fee %v", fee)}
	}
	return fee, nil
}

// CreateOrder pays amount plus the fee read right now. The fee is mutable
// contract state, so it is never taken from an earlier snapshot.
func (g *Gateway) CreateOrder(ctx context.Context, receiver common.Address, amount decimal.Decimal) (common.Hash, error) {
	from, err := g.from()
	if err != nil {
		return common.Hash{}, err
	}
	if !amount.IsPositive() {
		return common.Hash{}, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	amountWei, err := ToWei(amount)
	if err != nil {
		return common.Hash{}, err
	}

	fee, err := g.feeWei(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	payment := new(big.Int).Add(amountWei, fee)

	g.logger.Info(ctx, "create order",
		zap.String("receiver", receiver.Hex()),
		zap.String("amount", amount.String()),
		zap.String("payment", FromWei(payment).String()),
	)
	return g.contract.CreateOrder(ctx, TxOpts{From: from, Value: payment}, receiver)
}

func (g *Gateway) ConfirmOrder(ctx context.Context, id uint64) (common.Hash, error) {
	opts, err := g.idTxOpts()
	if err != nil {
		return common.Hash{}, err
	}
	return g.contract.ConfirmOrder(ctx, opts, new(big.Int).SetUint64(id))
}

func (g *Gateway) ModifyReceiver(ctx context.Context, id uint64, receiver common.Address) (common.Hash, error) {
	opts, err := g.idTxOpts()
	if err != nil {
		return common.Hash{}, err
	}
	return g.contract.ModifyReceiver(ctx, opts, new(big.Int).SetUint64(id), receiver)
}

func (g *Gateway) CancelOrder(ctx context.Context, id uint64) (common.Hash, error) {
	opts, err := g.idTxOpts()
	if err != nil {
		return common.Hash{}, err
	}
	return g.contract.CancelOrder(ctx, opts, new(big.Int).SetUint64(id))
}

func (g *Gateway) idTxOpts() (TxOpts, error) {
	from, err := g.from()
	if err != nil {
		return TxOpts{}, err
	}
	return TxOpts{From: from, GasLimit: g.gasLimit}, nil
}

func (g *Gateway) from() (common.Address, error) {
	if g.sender == nil {
		return common.Address{}, ErrNoSender
	}
	addr, ok := g.sender.Current()
	if !ok {
		return common.Address{}, ErrNoSender
	}
	return addr, nil
}

// FromWei converts an amount in the smallest unit to the currency value.
func FromWei(v *big.Int) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -NativeDecimals)
}

// ToWei converts a currency value to the smallest unit, rejecting negative
// values and values with more than NativeDecimals fractional digits.
func ToWei(d decimal.Decimal) (*big.Int, error) {
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: negative amount %s", ErrInvalidAmount, d)
	}
	shifted := d.Shift(NativeDecimals)
	if !shifted.IsInteger() {
		return nil, fmt.Errorf("%w: %s has more than %d decimals", ErrInvalidAmount, d, NativeDecimals)
	}
	return shifted.BigInt(), nil
}

func toStats(method string, raw RawStats) (model.Stats, error) {
	if raw.Count == nil || raw.Volume == nil {
		return model.Stats{}, &DecodeError{Method: method, Err: errors.New("missing fields")}
	}
	if !raw.Count.IsUint64() {
		return model.Stats{}, &DecodeError{Method: method, Err: fmt.Errorf("count %s out of range", raw.Count)}
	}
	return model.Stats{Count: raw.Count.Uint64(), Volume: FromWei(raw.Volume)}, nil
}

func notFoundOnRevert(err error) error {
	var re *RemoteError
	if errors.As(err, &re) && re.Reverted {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, re.Reason)
	}
	return err
}

package txn

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joripage/transfer-orders/pkg/logging"
	"github.com/joripage/transfer-orders/pkg/model"
	"go.uber.org/zap"
)

type Guard interface {
	Ensure(ctx context.Context) (bool, error)
}

type ReceiptWaiter interface {
	WaitForReceipt(ctx context.Context, hash common.Hash) (*model.Receipt, error)
}

// Refresher is the state store as seen by the coordinator.
type Refresher interface {
	Refresh(ctx context.Context) error
	Invalidate(id uint64)
}

// Call is one ledger write. Invoke hands the transaction to the wallet and
// returns its hash; it runs only after the network check passed.
type Call struct {
	Action  model.Action
	OrderID *uint64
	Invoke  func(ctx context.Context) (common.Hash, error)
}

// Coordinator runs the write path: network check, submit, wait for the
// receipt, refresh. It never retries.
type Coordinator struct {
	guard    Guard
	receipts ReceiptWaiter
	store    Refresher
	sink     EventSink
	observer Observer
	logger   *logging.Logger
	now      func() time.Time
}

type Option func(*Coordinator)

func WithEventSink(s EventSink) Option {
	return func(c *Coordinator) { c.sink = s }
}

func WithObserver(o Observer) Option {
	return func(c *Coordinator) { c.observer = o }
}

func WithLogger(l *logging.Logger) Option {
	return func(c *Coordinator) { c.logger = l.Named("txn") }
}

func NewCoordinator(guard Guard, receipts ReceiptWaiter, store Refresher, opts ...Option) *Coordinator {
	c := &Coordinator{
		guard:    guard,
		receipts: receipts,
		store:    store,
		logger:   logging.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit runs call to completion. The store is refreshed exactly once when the
// receipt reports success and never otherwise. Waiting for the receipt is
// bounded only by ctx.
func (c *Coordinator) Submit(ctx context.Context, call Call) (model.Receipt, error) {
	ctx = logging.NewRequest(ctx)
	start := c.now()
	fields := []zap.Field{zap.String("action", string(call.Action))}
	if call.OrderID != nil {
		fields = append(fields, zap.Uint64("order_id", *call.OrderID))
	}

	ok, err := c.guard.Ensure(ctx)
	if err == nil && !ok {
		err = ErrWrongNetwork
	}
	if err != nil {
		return model.Receipt{}, c.fail(ctx, call, StageNetwork, common.Hash{}, err, start)
	}

	hash, err := call.Invoke(ctx)
	if err != nil {
		return model.Receipt{}, c.fail(ctx, call, StageSubmit, common.Hash{}, err, start)
	}
	if call.OrderID != nil {
		c.store.Invalidate(*call.OrderID)
	}
	fields = append(fields, zap.String("tx_hash", hash.Hex()))
	c.logger.Info(ctx, "transaction submitted", fields...)
	c.emit(ctx, c.event(ctx, EventSubmitted, call, hash))

	receipt, err := c.receipts.WaitForReceipt(ctx, hash)
	if err == nil && receipt == nil {
		err = ErrNoReceipt
	}
	if err == nil && !receipt.Success {
		err = ErrTxReverted
	}
	if err != nil {
		return model.Receipt{}, c.fail(ctx, call, StageConfirm, hash, err, start)
	}

	ev := c.event(ctx, EventConfirmed, call, hash)
	if receipt.BlockNumber != nil {
		ev.Block = receipt.BlockNumber.String()
	}
	c.logger.Info(ctx, "transaction confirmed", append(fields, zap.String("block", ev.Block))...)
	c.emit(ctx, ev)

	if err := c.store.Refresh(ctx); err != nil {
		c.logger.Error(ctx, "refresh after confirmation fail", append(fields, zap.Error(err))...)
		c.observe(call, StageRefresh, start, err)
		return *receipt, &SubmitError{Action: call.Action, Stage: StageRefresh, Err: err}
	}
	c.observe(call, "", start, nil)
	return *receipt, nil
}

func (c *Coordinator) fail(ctx context.Context, call Call, stage Stage, hash common.Hash, err error, start time.Time) error {
	c.logger.Warn(ctx, "transaction fail",
		zap.String("action", string(call.Action)),
		zap.String("stage", string(stage)),
		zap.Error(err),
	)
	ev := c.event(ctx, EventFailed, call, hash)
	ev.Stage = stage
	ev.Error = err.Error()
	c.emit(ctx, ev)
	c.observe(call, stage, start, err)
	return &SubmitError{Action: call.Action, Stage: stage, Err: err}
}

func (c *Coordinator) event(ctx context.Context, typ EventType, call Call, hash common.Hash) Event {
	return Event{
		Type:      typ,
		Action:    call.Action,
		OrderID:   call.OrderID,
		TxHash:    hashString(hash),
		RequestID: logging.RequestID(ctx),
		Time:      c.now().UTC(),
	}
}

func (c *Coordinator) emit(ctx context.Context, ev Event) {
	if c.sink == nil {
		return
	}
	if err := c.sink.Emit(ctx, ev); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Warn(ctx, "emit tx event fail", zap.String("type", string(ev.Type)), zap.Error(err))
	}
}

func (c *Coordinator) observe(call Call, stage Stage, start time.Time, err error) {
	if c.observer != nil {
		c.observer.SubmissionFinished(call.Action, stage, c.now().Sub(start), err)
	}
}

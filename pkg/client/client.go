package client

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joripage/transfer-orders/pkg/ledger"
	"github.com/joripage/transfer-orders/pkg/logging"
	"github.com/joripage/transfer-orders/pkg/model"
	"github.com/joripage/transfer-orders/pkg/txn"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Identity interface {
	Connect(ctx context.Context) (common.Address, error)
	Current() (common.Address, bool)
}

// Writer is the write side of the ledger gateway.
type Writer interface {
	CreateOrder(ctx context.Context, receiver common.Address, amount decimal.Decimal) (common.Hash, error)
	ConfirmOrder(ctx context.Context, id uint64) (common.Hash, error)
	ModifyReceiver(ctx context.Context, id uint64, receiver common.Address) (common.Hash, error)
	CancelOrder(ctx context.Context, id uint64) (common.Hash, error)
}

type Submitter interface {
	Submit(ctx context.Context, call txn.Call) (model.Receipt, error)
}

type View interface {
	Snapshot() model.Snapshot
	ViewOrder(ctx context.Context, id uint64) error
}

// Client is the boundary the presentation layer talks to: it reads
// snapshots and sends intents. Intents never retry; the user decides.
type Client struct {
	identity Identity
	ledger   Writer
	txs      Submitter
	view     View
	logger   *logging.Logger
}

func New(identity Identity, writer Writer, txs Submitter, view View, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Client{
		identity: identity,
		ledger:   writer,
		txs:      txs,
		view:     view,
		logger:   logger.Named("client"),
	}
}

// View returns the current reconciled state.
func (c *Client) View() model.Snapshot {
	return c.view.Snapshot()
}

func (c *Client) Connect(ctx context.Context) (common.Address, error) {
	ctx = logging.NewRequest(ctx)
	addr, err := c.identity.Connect(ctx)
	if err != nil {
		c.logger.Warn(ctx, "connect fail", zap.Error(err), zap.Stringer("kind", Classify(err)))
		return addr, err
	}
	return addr, nil
}

// CreateOrder pays amount plus the current fee to escrow for receiver.
func (c *Client) CreateOrder(ctx context.Context, receiver common.Address, amount decimal.Decimal) (model.Receipt, error) {
	ctx = logging.NewRequest(ctx)
	if err := c.connected(); err != nil {
		return model.Receipt{}, err
	}
	if !amount.IsPositive() {
		return model.Receipt{}, fmt.Errorf("%w: %s", ledger.ErrInvalidAmount, amount)
	}

	return c.submit(ctx, txn.Call{
		Action: model.ActionCreate,
		Invoke: func(ctx context.Context) (common.Hash, error) {
			return c.ledger.CreateOrder(ctx, receiver, amount)
		},
	})
}

func (c *Client) ConfirmCurrentOrder(ctx context.Context) (model.Receipt, error) {
	ctx = logging.NewRequest(ctx)
	id, err := c.current(func(a model.Actions) bool { return a.Confirm })
	if err != nil {
		return model.Receipt{}, err
	}
	return c.submit(ctx, txn.Call{
		Action:  model.ActionConfirm,
		OrderID: &id,
		Invoke: func(ctx context.Context) (common.Hash, error) {
			return c.ledger.ConfirmOrder(ctx, id)
		},
	})
}

func (c *Client) ModifyCurrentReceiver(ctx context.Context, receiver common.Address) (model.Receipt, error) {
	ctx = logging.NewRequest(ctx)
	id, err := c.current(func(a model.Actions) bool { return a.Modify })
	if err != nil {
		return model.Receipt{}, err
	}
	return c.submit(ctx, txn.Call{
		Action:  model.ActionModifyReceiver,
		OrderID: &id,
		Invoke: func(ctx context.Context) (common.Hash, error) {
			return c.ledger.ModifyReceiver(ctx, id, receiver)
		},
	})
}

func (c *Client) CancelCurrentOrder(ctx context.Context) (model.Receipt, error) {
	ctx = logging.NewRequest(ctx)
	id, err := c.current(func(a model.Actions) bool { return a.Cancel })
	if err != nil {
		return model.Receipt{}, err
	}
	return c.submit(ctx, txn.Call{
		Action:  model.ActionCancel,
		OrderID: &id,
		Invoke: func(ctx context.Context) (common.Hash, error) {
			return c.ledger.CancelOrder(ctx, id)
		},
	})
}

// SelectOrder shows the detail of id.
func (c *Client) SelectOrder(ctx context.Context, id uint64) error {
	ctx = logging.NewRequest(ctx)
	if err := c.view.ViewOrder(ctx, id); err != nil {
		c.logger.Warn(ctx, "select order fail", zap.Uint64("order_id", id), zap.Error(err))
		return err
	}
	return nil
}

// SelectID parses a raw id as entered by the user and selects it.
func (c *Client) SelectID(ctx context.Context, raw string) error {
	id, err := ParseOrderID(raw)
	if err != nil {
		return err
	}
	return c.SelectOrder(ctx, id)
}

// ParseOrderID accepts a non-negative decimal integer.
func ParseOrderID(raw string) (uint64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidOrderID)
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidOrderID, raw)
	}
	return id, nil
}

func (c *Client) submit(ctx context.Context, call txn.Call) (model.Receipt, error) {
	receipt, err := c.txs.Submit(ctx, call)
	if err != nil {
		c.logger.Warn(ctx, "intent fail",
			zap.String("action", string(call.Action)),
			zap.Stringer("kind", Classify(err)),
			zap.String("reason", Reason(err)),
		)
		return receipt, err
	}
	return receipt, nil
}

func (c *Client) connected() error {
	if _, ok := c.identity.Current(); !ok {
		return ErrNotConnected
	}
	return nil
}

// current returns the selected id if the snapshot allows the action on it.
func (c *Client) current(allowed func(model.Actions) bool) (uint64, error) {
	if err := c.connected(); err != nil {
		return 0, err
	}
	snap := c.view.Snapshot()
	if snap.SelectedID == nil {
		return 0, ErrNoSelection
	}
	if !allowed(snap.Actions) {
		return 0, fmt.Errorf("order %d: %w", *snap.SelectedID, ErrActionDisabled)
	}
	return *snap.SelectedID, nil
}

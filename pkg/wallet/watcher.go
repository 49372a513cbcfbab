package wallet

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joripage/transfer-orders/pkg/logging"
	"go.uber.org/zap"
)

type AccountLister interface {
	Accounts(ctx context.Context) ([]common.Address, error)
}

// AccountsHandler receives the new account set whenever it changes.
type AccountsHandler interface {
	HandleAccountsChanged(ctx context.Context, accounts []common.Address)
}

// AccountsHandlerFunc is a function adapter for AccountsHandler.
type AccountsHandlerFunc func(context.Context, []common.Address)

func (f AccountsHandlerFunc) HandleAccountsChanged(ctx context.Context, accounts []common.Address) {
	f(ctx, accounts)
}

// AccountWatcher emulates the provider's accountsChanged event by polling
// eth_accounts. The first poll only records a baseline.
type AccountWatcher struct {
	source   AccountLister
	handler  AccountsHandler
	interval time.Duration
	logger   *logging.Logger

	last   []common.Address
	seeded bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewAccountWatcher(source AccountLister, handler AccountsHandler, interval time.Duration, logger *logging.Logger) *AccountWatcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &AccountWatcher{
		source:   source,
		handler:  handler,
		interval: interval,
		logger:   logger.Named("account_watcher"),
	}
}

// Start begins polling in the background.
func (w *AccountWatcher) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.run()

	w.logger.Info(ctx, "account watcher started", zap.Duration("interval", w.interval))
	return nil
}

// Stop ends polling and waits for the loop to exit.
func (w *AccountWatcher) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *AccountWatcher) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.poll()
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

func (w *AccountWatcher) poll() {
	accounts, err := w.source.Accounts(w.ctx)
	if err != nil {
		w.logger.Warn(w.ctx, "poll accounts fail", zap.Error(err))
		return
	}

	if !w.seeded {
		w.seeded = true
		w.last = accounts
		return
	}
	if slices.Equal(accounts, w.last) {
		return
	}

	w.last = accounts
	w.logger.Info(w.ctx, "accounts changed", zap.Int("accounts", len(accounts)))
	if w.handler != nil {
		w.handler.HandleAccountsChanged(logging.NewRequest(w.ctx), accounts)
	}
}

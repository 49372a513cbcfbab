package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joripage/transfer-orders/pkg/logging"
	"github.com/joripage/transfer-orders/pkg/wallet"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const DefaultChallenge = "Sign this message to prove you own this account."

// ErrIdentityChanged is returned by a pipeline overtaken by an account change.
var ErrIdentityChanged = errors.New("account changed during reconciliation")

type Wallet interface {
	Accounts(ctx context.Context) ([]common.Address, error)
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	SignMessage(ctx context.Context, account common.Address, message string) ([]byte, error)
}

type Guard interface {
	Ensure(ctx context.Context) (bool, error)
}

// Store is the part of the state store driven by identity changes.
type Store interface {
	Bind(account common.Address)
	Reset()
	Refresh(ctx context.Context) error
}

// ProofConfig enables the one-time ownership signature. The proof is
// advisory: a declined or failed signature never stops reconciliation.
type ProofConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Challenge string `yaml:"challenge"`
}

// Identity tracks the connected account and drives the store through
// account changes.
type Identity struct {
	wallet Wallet
	guard  Guard
	store  Store
	proof  ProofConfig
	logger *logging.Logger

	// switchMu orders identity switches against the store: a pipeline sets
	// the identity and binds the store in one step, and an account change
	// resets the store in one step, never interleaved.
	switchMu sync.Mutex

	mu      sync.RWMutex
	account common.Address
	present bool
	gen     uint64
	proved  map[common.Address]bool

	group singleflight.Group
}

type Option func(*Identity)

func WithProof(cfg ProofConfig) Option {
	return func(i *Identity) {
		i.proof = cfg
		if i.proof.Challenge == "" {
			i.proof.Challenge = DefaultChallenge
		}
	}
}

func WithLogger(l *logging.Logger) Option {
	return func(i *Identity) { i.logger = l.Named("session") }
}

func NewIdentity(w Wallet, guard Guard, store Store, opts ...Option) *Identity {
	i := &Identity{
		wallet: w,
		guard:  guard,
		store:  store,
		logger: logging.NewNop(),
		proved: map[common.Address]bool{},
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Current returns the connected account, if any.
func (i *Identity) Current() (common.Address, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.account, i.present
}

// Connect checks the network, asks the wallet for account access and runs
// the reconciliation pipeline for the granted account. A wrong network is
// reported to the user by the guard but does not stop the connection.
func (i *Identity) Connect(ctx context.Context) (common.Address, error) {
	if i.guard != nil {
		ok, err := i.guard.Ensure(ctx)
		if err != nil {
			return common.Address{}, err
		}
		if !ok {
			i.logger.Info(ctx, "connecting on the wrong network")
		}
	}

	accounts, err := i.wallet.RequestAccounts(ctx)
	if err != nil {
		return common.Address{}, fmt.Errorf("request accounts: %w", err)
	}
	return i.resolve(ctx, accounts)
}

// Resolve picks up an account the wallet already authorized, without
// prompting. It returns false when there is none.
func (i *Identity) Resolve(ctx context.Context) (common.Address, bool, error) {
	accounts, err := i.wallet.Accounts(ctx)
	if err != nil {
		return common.Address{}, false, fmt.Errorf("list accounts: %w", err)
	}
	if len(accounts) == 0 {
		i.logger.Info(ctx, "no authorized account found")
		return common.Address{}, false, nil
	}
	addr, err := i.resolve(ctx, accounts)
	return addr, err == nil, err
}

// HandleAccountsChanged drops all derived state and resolves the identity
// again from scratch.
func (i *Identity) HandleAccountsChanged(ctx context.Context, accounts []common.Address) {
	ctx = logging.NewRequest(ctx)

	i.switchMu.Lock()
	i.mu.Lock()
	i.gen++
	i.account = common.Address{}
	i.present = false
	i.mu.Unlock()
	i.store.Reset()
	i.switchMu.Unlock()

	i.logger.Info(ctx, "accounts changed", zap.Int("accounts", len(accounts)))
	if len(accounts) == 0 {
		return
	}
	if _, err := i.resolve(ctx, accounts); err != nil {
		i.logger.Error(ctx, "reconcile after account change fail", zap.Error(err))
	}
}

// Watch follows account changes by polling the wallet until ctx ends or the
// returned watcher is stopped.
func (i *Identity) Watch(ctx context.Context, source wallet.AccountLister, interval time.Duration) (*wallet.AccountWatcher, error) {
	w := wallet.NewAccountWatcher(source, i, interval, i.logger)
	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

// resolve runs the pipeline for the first account. Concurrent callers for the
// same account and change generation share one run.
func (i *Identity) resolve(ctx context.Context, accounts []common.Address) (common.Address, error) {
	if len(accounts) == 0 {
		return common.Address{}, wallet.ErrNoAccounts
	}
	addr := accounts[0]

	i.mu.RLock()
	gen := i.gen
	i.mu.RUnlock()

	key := fmt.Sprintf("%s/%d", addr.Hex(), gen)
	_, err, shared := i.group.Do(key, func() (interface{}, error) {
		return nil, i.reconcile(ctx, addr, gen)
	})
	if shared {
		i.logger.Debug(ctx, "joined running reconciliation", zap.String("account", addr.Hex()))
	}
	return addr, err
}

func (i *Identity) reconcile(ctx context.Context, addr common.Address, gen uint64) error {
	i.switchMu.Lock()
	i.mu.Lock()
	if i.gen != gen {
		i.mu.Unlock()
		i.switchMu.Unlock()
		return ErrIdentityChanged
	}
	i.account = addr
	i.present = true
	prove := i.proof.Enabled && !i.proved[addr]
	i.mu.Unlock()
	i.store.Bind(addr)
	i.switchMu.Unlock()

	i.logger.Info(ctx, "account connected", zap.String("account", addr.Hex()))

	if prove {
		i.proveOwnership(ctx, addr)
	}

	if !i.isGen(gen) {
		i.logger.Info(ctx, "account changed before refresh", zap.String("account", addr.Hex()))
		return ErrIdentityChanged
	}
	if err := i.store.Refresh(ctx); err != nil {
		return fmt.Errorf("reconcile %s: %w", addr.Hex(), err)
	}
	return nil
}

func (i *Identity) isGen(gen uint64) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.gen == gen
}

func (i *Identity) proveOwnership(ctx context.Context, addr common.Address) {
	sig, err := i.wallet.SignMessage(ctx, addr, i.proof.Challenge)
	if err != nil {
		i.logger.Warn(ctx, "ownership proof fail", zap.String("account", addr.Hex()), zap.Error(err))
		return
	}
	i.mu.Lock()
	i.proved[addr] = true
	i.mu.Unlock()
	i.logger.Debug(ctx, "ownership proved", zap.String("account", addr.Hex()), zap.Int("signature_len", len(sig)))
}

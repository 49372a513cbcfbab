package network

import (
	"context"
	"errors"
	"fmt"

	"github.com/joripage/transfer-orders/pkg/logging"
	"github.com/joripage/transfer-orders/pkg/model"
	"github.com/joripage/transfer-orders/pkg/wallet"
	"go.uber.org/zap"
)

// ChainSwitcher is the slice of the wallet the guard needs.
type ChainSwitcher interface {
	ChainID(ctx context.Context) (string, error)
	SwitchChain(ctx context.Context, chainID string) error
	AddChain(ctx context.Context, params model.ChainParams) error
}

// Alerter tells the user something needs their attention.
type Alerter interface {
	Alert(ctx context.Context, msg string)
}

// AlerterFunc is a function adapter for Alerter.
type AlerterFunc func(ctx context.Context, msg string)

func (f AlerterFunc) Alert(ctx context.Context, msg string) { f(ctx, msg) }

// Observer is notified about guard outcomes; metrics plug in here.
type Observer interface {
	GuardChecked(ok bool)
	SwitchRequested(added bool)
}

const wrongNetworkMsg = "Please switch to the right network"

type Guard struct {
	wallet   ChainSwitcher
	target   model.ChainParams
	alerter  Alerter
	observer Observer
	logger   *logging.Logger
}

type Option func(*Guard)

func WithAlerter(a Alerter) Option {
	return func(g *Guard) { g.alerter = a }
}

func WithObserver(o Observer) Option {
	return func(g *Guard) { g.observer = o }
}

func WithLogger(l *logging.Logger) Option {
	return func(g *Guard) { g.logger = l.Named("network_guard") }
}

func NewGuard(w ChainSwitcher, target model.ChainParams, opts ...Option) *Guard {
	g := &Guard{
		wallet: w,
		target: target,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Target returns the network the guard enforces.
func (g *Guard) Target() model.ChainParams {
	return g.target
}

// Ensure reports whether the wallet is on the target network. On a mismatch it
// alerts the user and asks the wallet to switch (registering the chain first
// if the wallet does not know it), then reports false whatever the wallet
// answered: the switch is only trusted once a later Ensure observes it.
//
// The error is non-nil only when the active chain cannot be read.
func (g *Guard) Ensure(ctx context.Context) (bool, error) {
	current, err := g.wallet.ChainID(ctx)
	if err != nil {
		g.report(false)
		return false, fmt.Errorf("read chain id: %w", err)
	}
	if model.SameChain(current, g.target.ChainID) {
		g.report(true)
		return true, nil
	}

	g.logger.Warn(ctx, "wrong network",
		zap.String("current", current),
		zap.String("target", g.target.ChainID),
	)
	g.report(false)
	if g.alerter != nil {
		g.alerter.Alert(ctx, wrongNetworkMsg)
	}
	g.switchNetwork(ctx)
	return false, nil
}

func (g *Guard) switchNetwork(ctx context.Context) {
	err := g.wallet.SwitchChain(ctx, g.target.ChainID)
	if err == nil {
		g.requested(false)
		return
	}
	if !errors.Is(err, wallet.ErrUnrecognizedChain) {
		g.logger.Warn(ctx, "switch network fail", zap.Error(err))
		g.requested(false)
		return
	}

	g.requested(true)
	if err := g.wallet.AddChain(ctx, g.target); err != nil {
		g.logger.Warn(ctx, "add network fail", zap.Error(err))
		return
	}
	if err := g.wallet.SwitchChain(ctx, g.target.ChainID); err != nil {
		g.logger.Warn(ctx, "switch network after add fail", zap.Error(err))
	}
}

func (g *Guard) report(ok bool) {
	if g.observer != nil {
		g.observer.GuardChecked(ok)
	}
}

func (g *Guard) requested(added bool) {
	if g.observer != nil {
		g.observer.SwitchRequested(added)
	}
}

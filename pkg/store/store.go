package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gammazero/deque"
	"github.com/joripage/transfer-orders/pkg/ledger"
	"github.com/joripage/transfer-orders/pkg/logging"
	"github.com/joripage/transfer-orders/pkg/model"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const DefaultRecentLimit = 5

// Reader is the read side of the ledger gateway.
type Reader interface {
	OrderIDs(ctx context.Context, owner common.Address) ([]uint64, error)
	UserStats(ctx context.Context, user common.Address) (model.Stats, error)
	ProtocolStats(ctx context.Context) (model.Stats, error)
	Fee(ctx context.Context) (decimal.Decimal, error)
	Order(ctx context.Context, id uint64) (ledger.OrderRecord, error)
	OrderStatus(ctx context.Context, id uint64) (model.OrderStatus, error)
}

type Guard interface {
	Ensure(ctx context.Context) (bool, error)
}

// Listener is called with every published snapshot, in publish order.
type Listener func(model.Snapshot)

// Observer is notified about refresh outcomes; metrics plug in here.
type Observer interface {
	RefreshFinished(elapsed time.Duration, err error)
	DetailFetched(err error)
}

// Store owns the reconciled view of the connected account's orders. Derived
// fields are written only by Refresh, detail fetches, Bind, Reset and
// Invalidate; everything else reads immutable snapshots.
//
// Refreshes are numbered when they start. A refresh that finishes after a
// later-started one has been applied is discarded without error: the view
// already reflects at least what it read.
type Store struct {
	reader   Reader
	guard    Guard
	observer Observer
	logger   *logging.Logger
	now      func() time.Time

	mu        sync.RWMutex
	snap      model.Snapshot
	bound     bool
	epoch     uint64
	detailGen uint64
	cancel    context.CancelFunc
	recent    deque.Deque[model.Order]
	limit     int

	refreshSeq uint64 // last number handed out
	appliedSeq uint64 // number of the newest applied refresh

	listenersMu sync.Mutex
	listeners   map[uint64]Listener
	nextID      uint64
	publishMu   sync.Mutex
}

type Option func(*Store)

// WithGuard makes reads check the network first.
func WithGuard(g Guard) Option {
	return func(s *Store) { s.guard = g }
}

func WithRecentLimit(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.limit = n
		}
	}
}

func WithObserver(o Observer) Option {
	return func(s *Store) { s.observer = o }
}

func WithLogger(l *logging.Logger) Option {
	return func(s *Store) { s.logger = l.Named("store") }
}

func New(reader Reader, opts ...Option) *Store {
	s := &Store{
		reader:    reader,
		logger:    logging.NewNop(),
		now:       time.Now,
		limit:     DefaultRecentLimit,
		listeners: map[uint64]Listener{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns the current view. The returned value is a private copy.
func (s *Store) Snapshot() model.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Clone()
}

// Subscribe registers fn for every later publish and returns a function that
// removes it.
func (s *Store) Subscribe(fn Listener) func() {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = fn
	return func() {
		s.listenersMu.Lock()
		defer s.listenersMu.Unlock()
		delete(s.listeners, id)
	}
}

// Bind attaches the store to account. Binding a different account drops all
// derived state first.
func (s *Store) Bind(account common.Address) {
	s.mu.Lock()
	if s.bound && s.snap.Account == account {
		s.mu.Unlock()
		return
	}
	s.resetLocked()
	s.bound = true
	s.snap.Account = account
	s.snap.Connected = true
	snap := s.snap.Clone()
	s.mu.Unlock()

	s.publish(snap)
}

// Reset drops every derived field and the identity. Reads in flight are
// discarded when they return.
func (s *Store) Reset() {
	s.mu.Lock()
	s.resetLocked()
	snap := s.snap.Clone()
	s.mu.Unlock()

	s.publish(snap)
}

func (s *Store) resetLocked() {
	s.epoch++
	s.detailGen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.bound = false
	s.recent.Clear()
	s.snap = model.Snapshot{}
}

// Invalidate marks the cached detail of id stale. It stays stale until the
// next successful detail fetch.
func (s *Store) Invalidate(id uint64) {
	s.mu.Lock()
	if s.snap.Selected == nil || s.snap.Selected.ID != id || s.snap.DetailPending {
		s.mu.Unlock()
		return
	}
	next := s.snap.Clone()
	next.DetailPending = true
	next.DeriveActions()
	s.snap = next
	snap := next.Clone()
	s.mu.Unlock()

	s.publish(snap)
}

// Refresh rereads ids, user stats, protocol stats and the fee in parallel,
// then the newest orders for the recent list, and applies them together, or
// not at all. It then selects the newest order and fetches its detail.
func (s *Store) Refresh(ctx context.Context) (err error) {
	start := s.now()
	defer func() {
		if s.observer != nil {
			s.observer.RefreshFinished(s.now().Sub(start), err)
		}
	}()

	if err := s.ensure(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	account, bound, epoch := s.snap.Account, s.bound, s.epoch
	s.refreshSeq++
	seq := s.refreshSeq
	s.mu.Unlock()
	if !bound {
		return ErrNoIdentity
	}

	var (
		ids      []uint64
		user     model.Stats
		protocol model.Stats
		fee      decimal.Decimal
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		ids, err = s.reader.OrderIDs(gctx, account)
		return err
	})
	g.Go(func() (err error) {
		user, err = s.reader.UserStats(gctx, account)
		return err
	})
	g.Go(func() (err error) {
		protocol, err = s.reader.ProtocolStats(gctx)
		return err
	})
	g.Go(func() (err error) {
		fee, err = s.reader.Fee(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger.Warn(ctx, "refresh fail", zap.Error(err))
		return fmt.Errorf("refresh: %w", err)
	}

	recent, err := s.fetchRecent(ctx, ids)
	if err != nil {
		s.logger.Warn(ctx, "refresh recent orders fail", zap.Error(err))
		return fmt.Errorf("refresh: %w", err)
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return ErrSuperseded
	}
	if seq < s.appliedSeq {
		// a refresh that started later is already applied
		s.mu.Unlock()
		s.logger.Debug(ctx, "discard overtaken refresh", zap.Uint64("seq", seq))
		return nil
	}
	s.appliedSeq = seq
	s.recent.Clear()
	for _, o := range recent {
		s.recent.PushBack(o)
	}
	next := s.snap.Clone()
	next.Recent = s.recentOrders()
	next.OrderIDs = ids
	next.UserStats = user
	next.ProtocolStats = protocol
	next.Fee = fee
	next.RefreshedAt = s.now().UTC()

	if len(ids) == 0 {
		s.detailGen++
		if s.cancel != nil {
			s.cancel()
			s.cancel = nil
		}
		next.SelectedID = nil
		next.Selected = nil
		next.DetailPending = false
		next.DeriveActions()
		s.snap = next
		snap := next.Clone()
		s.mu.Unlock()
		s.publish(snap)
		s.logger.Info(ctx, "refreshed", zap.String("account", account.Hex()), zap.Int("orders", 0))
		return nil
	}

	latest := ids[len(ids)-1]
	fetch := s.beginDetailLocked(ctx, &next, latest)
	s.mu.Unlock()
	s.publish(fetch.snap)

	s.logger.Info(ctx, "refreshed",
		zap.String("account", account.Hex()),
		zap.Int("orders", len(ids)),
		zap.Uint64("latest", latest),
	)

	// the latest-order view is a convenience; its failure does not undo the refresh
	if err := s.runDetail(ctx, fetch, latest); err != nil && !errors.Is(err, ErrSuperseded) {
		s.logger.Warn(ctx, "load latest order fail", zap.Uint64("order_id", latest), zap.Error(err))
	}
	return nil
}

// ViewOrder selects id and fetches its detail. A failed fetch leaves the
// previous detail in place and returns the error. Selecting again before the
// fetch returns cancels it, and only the newest fetch is applied.
func (s *Store) ViewOrder(ctx context.Context, id uint64) error {
	if err := s.ensure(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	if !s.bound {
		s.mu.Unlock()
		return ErrNoIdentity
	}
	next := s.snap.Clone()
	fetch := s.beginDetailLocked(ctx, &next, id)
	s.mu.Unlock()
	s.publish(fetch.snap)

	return s.runDetail(ctx, fetch, id)
}

type detailFetch struct {
	ctx    context.Context
	cancel context.CancelFunc
	gen    uint64
	epoch  uint64
	snap   model.Snapshot
}

// beginDetailLocked moves the selection to id inside next, installs next as
// the current snapshot and cancels any earlier fetch.
func (s *Store) beginDetailLocked(ctx context.Context, next *model.Snapshot, id uint64) detailFetch {
	if s.cancel != nil {
		s.cancel()
	}
	s.detailGen++
	fctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	next.SelectedID = &id
	next.DetailPending = true
	next.DeriveActions()
	s.snap = *next
	return detailFetch{ctx: fctx, cancel: cancel, gen: s.detailGen, epoch: s.epoch, snap: next.Clone()}
}

func (s *Store) runDetail(ctx context.Context, fetch detailFetch, id uint64) error {
	defer fetch.cancel()

	order, err := s.fetchOrder(fetch.ctx, id)
	if s.observer != nil {
		s.observer.DetailFetched(err)
	}

	s.mu.Lock()
	if fetch.gen != s.detailGen || fetch.epoch != s.epoch {
		s.mu.Unlock()
		return ErrSuperseded
	}
	s.cancel = nil
	next := s.snap.Clone()
	next.DetailPending = false
	if err == nil {
		next.Selected = &order
		if s.updateRecent(order) {
			next.Recent = s.recentOrders()
		}
	}
	next.DeriveActions()
	s.snap = next
	snap := next.Clone()
	s.mu.Unlock()
	s.publish(snap)

	if err != nil {
		s.logger.Warn(ctx, "view order fail", zap.Uint64("order_id", id), zap.Error(err))
		return err
	}
	return nil
}

// fetchOrder reads the order record and its status and merges them.
func (s *Store) fetchOrder(ctx context.Context, id uint64) (model.Order, error) {
	var (
		rec    ledger.OrderRecord
		status model.OrderStatus
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		rec, err = s.reader.Order(gctx, id)
		return err
	})
	g.Go(func() (err error) {
		status, err = s.reader.OrderStatus(gctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		return model.Order{}, fmt.Errorf("view order %d: %w", id, err)
	}
	return model.Order{
		ID:        rec.ID,
		Receiver:  rec.Receiver,
		Amount:    rec.Amount,
		CreatedAt: rec.CreatedAt,
		Status:    status,
	}, nil
}

// fetchRecent reads the newest limit orders of ids, newest first.
func (s *Store) fetchRecent(ctx context.Context, ids []uint64) ([]model.Order, error) {
	n := min(len(ids), s.limit)
	out := make([]model.Order, n)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		id := ids[len(ids)-1-i]
		g.Go(func() (err error) {
			out[i], err = s.fetchOrder(gctx, id)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// updateRecent replaces the listed copy of order with the fresher read. It
// reports whether order is listed.
func (s *Store) updateRecent(order model.Order) bool {
	i := s.recent.Index(func(o model.Order) bool { return o.ID == order.ID })
	if i < 0 {
		return false
	}
	s.recent.Set(i, order)
	return true
}

func (s *Store) recentOrders() []model.Order {
	return slices.Collect(s.recent.Iter())
}

func (s *Store) ensure(ctx context.Context) error {
	if s.guard == nil {
		return nil
	}
	ok, err := s.guard.Ensure(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrWrongNetwork
	}
	return nil
}

func (s *Store) publish(snap model.Snapshot) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	s.listenersMu.Lock()
	ids := make([]uint64, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	listeners := make([]Listener, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, s.listeners[id])
	}
	s.listenersMu.Unlock()

	for _, fn := range listeners {
		fn(snap.Clone())
	}
}

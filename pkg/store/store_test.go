package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joripage/transfer-orders/pkg/ledger"
	"github.com/joripage/transfer-orders/pkg/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = common.HexToAddress("0xaa")
	bob   = common.HexToAddress("0xbb")
	carol = common.HexToAddress("0xcc")
)

// fakeLedger keeps contract state in memory and answers like the gateway.
type fakeLedger struct {
	mu       sync.Mutex
	orders   []model.Order
	owners   map[uint64]common.Address
	fee      decimal.Decimal
	calls    map[string]int
	failRead map[string]error
	block    map[uint64]chan struct{}

	// holdIDs parks the next OrderIDs call after it has read the ids;
	// heldIDs is closed once it is parked.
	holdIDs chan struct{}
	heldIDs chan struct{}
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		owners:   map[uint64]common.Address{},
		fee:      decimal.RequireFromString("0.001"),
		calls:    map[string]int{},
		failRead: map[string]error{},
		block:    map[uint64]chan struct{}{},
	}
}

func (l *fakeLedger) create(owner, receiver common.Address, amount string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := uint64(len(l.orders) + 1)
	l.orders = append(l.orders, model.Order{
		ID:        id,
		Receiver:  receiver,
		Amount:    decimal.RequireFromString(amount),
		CreatedAt: time.Unix(1700000000+int64(id), 0).UTC(),
		Status:    model.StatusCreated,
	})
	l.owners[id] = owner
	return id
}

func (l *fakeLedger) setStatus(id uint64, status model.OrderStatus) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.orders[id-1].Status = status
}

func (l *fakeLedger) enter(method string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls[method]++
	return l.failRead[method]
}

func (l *fakeLedger) count(method string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[method]
}

func (l *fakeLedger) OrderIDs(_ context.Context, owner common.Address) ([]uint64, error) {
	if err := l.enter("OrderIDs"); err != nil {
		return nil, err
	}
	l.mu.Lock()
	var ids []uint64
	for _, o := range l.orders {
		if l.owners[o.ID] == owner {
			ids = append(ids, o.ID)
		}
	}
	hold, held := l.holdIDs, l.heldIDs
	l.holdIDs, l.heldIDs = nil, nil
	l.mu.Unlock()

	if hold != nil {
		close(held)
		<-hold
	}
	return ids, nil
}

func (l *fakeLedger) UserStats(_ context.Context, user common.Address) (model.Stats, error) {
	if err := l.enter("UserStats"); err != nil {
		return model.Stats{}, err
	}
	return l.stats(func(id uint64) bool { return l.owners[id] == user }), nil
}

func (l *fakeLedger) ProtocolStats(context.Context) (model.Stats, error) {
	if err := l.enter("ProtocolStats"); err != nil {
		return model.Stats{}, err
	}
	return l.stats(func(uint64) bool { return true }), nil
}

func (l *fakeLedger) stats(match func(uint64) bool) model.Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := model.Stats{Volume: decimal.Zero}
	for _, o := range l.orders {
		if match(o.ID) {
			st.Count++
			st.Volume = st.Volume.Add(o.Amount)
		}
	}
	return st
}

func (l *fakeLedger) Fee(context.Context) (decimal.Decimal, error) {
	if err := l.enter("Fee"); err != nil {
		return decimal.Zero, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fee, nil
}

func (l *fakeLedger) Order(ctx context.Context, id uint64) (ledger.OrderRecord, error) {
	if err := l.enter("Order"); err != nil {
		return ledger.OrderRecord{}, err
	}
	l.mu.Lock()
	ch := l.block[id]
	l.mu.Unlock()
	if ch != nil {
		select {
		case <-ch:
		case <-ctx.Done():
			return ledger.OrderRecord{}, ctx.Err()
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if id == 0 || id > uint64(len(l.orders)) {
		return ledger.OrderRecord{}, ledger.ErrOrderNotFound
	}
	o := l.orders[id-1]
	return ledger.OrderRecord{ID: o.ID, Receiver: o.Receiver, Amount: o.Amount, CreatedAt: o.CreatedAt}, nil
}

func (l *fakeLedger) OrderStatus(_ context.Context, id uint64) (model.OrderStatus, error) {
	if err := l.enter("OrderStatus"); err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if id == 0 || id > uint64(len(l.orders)) {
		return 0, ledger.ErrOrderNotFound
	}
	return l.orders[id-1].Status, nil
}

type stubGuard struct{ ok bool }

func (g stubGuard) Ensure(context.Context) (bool, error) { return g.ok, nil }

func TestRefreshRequiresIdentity(t *testing.T) {
	s := New(newFakeLedger())
	assert.ErrorIs(t, s.Refresh(context.Background()), ErrNoIdentity)
	assert.ErrorIs(t, s.ViewOrder(context.Background(), 1), ErrNoIdentity)
}

func TestRefreshAppliesAllAndSelectsLatest(t *testing.T) {
	l := newFakeLedger()
	l.create(alice, bob, "1")
	l.create(carol, bob, "4")
	l.create(alice, carol, "2.5")

	s := New(l)
	s.Bind(alice)
	require.NoError(t, s.Refresh(context.Background()))

	snap := s.Snapshot()
	assert.True(t, snap.Connected)
	assert.Equal(t, []uint64{1, 3}, snap.OrderIDs)
	require.NotNil(t, snap.SelectedID)
	assert.True(t, snap.HasOrder(*snap.SelectedID))
	assert.Equal(t, uint64(3), *snap.SelectedID)
	require.NotNil(t, snap.Selected)
	assert.Equal(t, carol, snap.Selected.Receiver)
	assert.False(t, snap.DetailPending)
	assert.Equal(t, uint64(2), snap.UserStats.Count)
	assert.True(t, snap.UserStats.Volume.Equal(decimal.RequireFromString("3.5")))
	assert.Equal(t, uint64(3), snap.ProtocolStats.Count)
	assert.True(t, snap.Fee.Equal(decimal.RequireFromString("0.001")))
	assert.Equal(t, model.Actions{Confirm: true, Modify: true, Cancel: true}, snap.Actions)
}

func TestRefreshIsAllOrNothing(t *testing.T) {
	l := newFakeLedger()
	l.create(alice, bob, "1")
	s := New(l)
	s.Bind(alice)
	require.NoError(t, s.Refresh(context.Background()))
	before := s.Snapshot()

	l.create(alice, bob, "2")
	l.failRead["ProtocolStats"] = errors.New("rpc timeout")
	require.Error(t, s.Refresh(context.Background()))

	after := s.Snapshot()
	assert.Equal(t, before.OrderIDs, after.OrderIDs)
	assert.Equal(t, before.UserStats, after.UserStats)
	assert.Equal(t, before.RefreshedAt, after.RefreshedAt)
}

func TestRefreshWithoutOrdersClearsSelection(t *testing.T) {
	l := newFakeLedger()
	s := New(l)
	s.Bind(alice)
	require.NoError(t, s.Refresh(context.Background()))

	snap := s.Snapshot()
	assert.Empty(t, snap.OrderIDs)
	assert.Nil(t, snap.SelectedID)
	assert.Nil(t, snap.Selected)
	assert.Zero(t, l.count("Order"))
}

func TestRefreshBlockedOnWrongNetwork(t *testing.T) {
	l := newFakeLedger()
	s := New(l, WithGuard(stubGuard{ok: false}))
	s.Bind(alice)

	assert.ErrorIs(t, s.Refresh(context.Background()), ErrWrongNetwork)
	assert.ErrorIs(t, s.ViewOrder(context.Background(), 1), ErrWrongNetwork)
	assert.Zero(t, l.count("OrderIDs"))
	assert.Zero(t, l.count("Order"))
}

func TestCancelledOrderDisablesActions(t *testing.T) {
	l := newFakeLedger()
	for i := 0; i < 7; i++ {
		l.create(alice, bob, "1")
	}
	l.setStatus(7, model.StatusCancelled)

	s := New(l)
	s.Bind(alice)
	require.NoError(t, s.ViewOrder(context.Background(), 7))

	snap := s.Snapshot()
	require.NotNil(t, snap.Selected)
	assert.Equal(t, model.StatusCancelled, snap.Selected.Status)
	assert.Equal(t, model.Actions{}, snap.Actions)
}

func TestTerminalStatusReflectedAcrossReads(t *testing.T) {
	l := newFakeLedger()
	id := l.create(alice, bob, "1")
	s := New(l)
	s.Bind(alice)
	require.NoError(t, s.Refresh(context.Background()))
	assert.Equal(t, model.StatusCreated, s.Snapshot().Selected.Status)

	l.setStatus(id, model.StatusCompleted)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Refresh(context.Background()))
		require.NoError(t, s.ViewOrder(context.Background(), id))
		snap := s.Snapshot()
		assert.Equal(t, model.StatusCompleted, snap.Selected.Status)
		assert.Equal(t, model.Actions{}, snap.Actions)
	}
}

func TestCreateRefreshViewRoundTrip(t *testing.T) {
	l := newFakeLedger()
	s := New(l)
	s.Bind(alice)
	require.NoError(t, s.Refresh(context.Background()))
	before := s.Snapshot().ProtocolStats

	// payment is amount + fee; only the amount is recorded
	amount := decimal.RequireFromString("1.0")
	payment := amount.Add(s.Snapshot().Fee)
	assert.True(t, payment.Equal(decimal.RequireFromString("1.001")))
	l.create(alice, carol, amount.String())

	require.NoError(t, s.Refresh(context.Background()))
	snap := s.Snapshot()
	latest := snap.OrderIDs[len(snap.OrderIDs)-1]
	require.NoError(t, s.ViewOrder(context.Background(), latest))

	snap = s.Snapshot()
	assert.Equal(t, carol, snap.Selected.Receiver)
	assert.True(t, snap.Selected.Amount.Equal(amount))
	assert.Equal(t, before.Count+1, snap.ProtocolStats.Count)
	assert.True(t, snap.ProtocolStats.Volume.Sub(before.Volume).Equal(amount))
}

func TestFailedDetailKeepsPreviousOrder(t *testing.T) {
	l := newFakeLedger()
	l.create(alice, bob, "1")
	s := New(l)
	s.Bind(alice)
	require.NoError(t, s.ViewOrder(context.Background(), 1))

	err := s.ViewOrder(context.Background(), 42)
	assert.ErrorIs(t, err, ledger.ErrOrderNotFound)

	snap := s.Snapshot()
	require.NotNil(t, snap.Selected)
	assert.Equal(t, uint64(1), snap.Selected.ID)
	assert.Equal(t, uint64(42), *snap.SelectedID)
	assert.False(t, snap.DetailPending)
	// the shown detail belongs to another id, so nothing is actionable
	assert.Equal(t, model.Actions{}, snap.Actions)
}

func TestReselectCancelsInFlightDetail(t *testing.T) {
	l := newFakeLedger()
	l.create(alice, bob, "1")
	l.create(alice, carol, "2")
	l.block[1] = make(chan struct{})
	s := New(l)
	s.Bind(alice)

	done := make(chan error, 1)
	go func() { done <- s.ViewOrder(context.Background(), 1) }()

	require.Eventually(t, func() bool { return l.count("Order") == 1 }, time.Second, time.Millisecond)
	require.NoError(t, s.ViewOrder(context.Background(), 2))

	assert.ErrorIs(t, <-done, ErrSuperseded)
	snap := s.Snapshot()
	assert.Equal(t, uint64(2), *snap.SelectedID)
	assert.Equal(t, uint64(2), snap.Selected.ID)
}

func TestInvalidateMarksDetailStale(t *testing.T) {
	l := newFakeLedger()
	l.create(alice, bob, "1")
	s := New(l)
	s.Bind(alice)
	require.NoError(t, s.ViewOrder(context.Background(), 1))

	s.Invalidate(2)
	assert.False(t, s.Snapshot().DetailPending)

	s.Invalidate(1)
	snap := s.Snapshot()
	assert.True(t, snap.DetailPending)
	assert.Equal(t, model.Actions{}, snap.Actions)

	require.NoError(t, s.Refresh(context.Background()))
	assert.False(t, s.Snapshot().DetailPending)
}

func recentIDs(snap model.Snapshot) []uint64 {
	var ids []uint64
	for _, o := range snap.Recent {
		ids = append(ids, o.ID)
	}
	return ids
}

func TestRecentOrdersAreNewestCreatedFirst(t *testing.T) {
	l := newFakeLedger()
	for i := 0; i < 4; i++ {
		l.create(alice, bob, "1")
	}
	l.create(carol, bob, "1")
	s := New(l, WithRecentLimit(3))
	s.Bind(alice)
	require.NoError(t, s.Refresh(context.Background()))
	assert.Equal(t, []uint64{4, 3, 2}, recentIDs(s.Snapshot()))

	// viewing an older order does not reorder the list
	require.NoError(t, s.ViewOrder(context.Background(), 1))
	assert.Equal(t, []uint64{4, 3, 2}, recentIDs(s.Snapshot()))

	l.create(alice, bob, "1")
	require.NoError(t, s.Refresh(context.Background()))
	assert.Equal(t, []uint64{6, 4, 3}, recentIDs(s.Snapshot()))
}

func TestRecentOrdersFollowLedgerStatus(t *testing.T) {
	l := newFakeLedger()
	l.create(alice, bob, "1")
	l.create(alice, bob, "2")
	s := New(l)
	s.Bind(alice)
	require.NoError(t, s.Refresh(context.Background()))
	require.NoError(t, s.ViewOrder(context.Background(), 1))

	l.setStatus(1, model.StatusCompleted)
	s.Invalidate(1)
	require.NoError(t, s.Refresh(context.Background()))

	snap := s.Snapshot()
	require.Equal(t, []uint64{2, 1}, recentIDs(snap))
	assert.Equal(t, model.StatusCreated, snap.Recent[0].Status)
	assert.Equal(t, model.StatusCompleted, snap.Recent[1].Status)

	// a fresher detail read updates the listed copy too
	l.setStatus(2, model.StatusCancelled)
	require.NoError(t, s.ViewOrder(context.Background(), 2))
	assert.Equal(t, model.StatusCancelled, s.Snapshot().Recent[0].Status)
}

func TestRefreshFailsWhenRecentOrderUnreadable(t *testing.T) {
	l := newFakeLedger()
	l.create(alice, bob, "1")
	s := New(l)
	s.Bind(alice)
	l.failRead["OrderStatus"] = errors.New("rpc timeout")

	require.Error(t, s.Refresh(context.Background()))
	snap := s.Snapshot()
	assert.Empty(t, snap.OrderIDs)
	assert.Empty(t, snap.Recent)
}

func TestOlderRefreshNeverOverwritesNewer(t *testing.T) {
	l := newFakeLedger()
	l.create(alice, bob, "1")
	s := New(l)
	s.Bind(alice)

	hold, held := make(chan struct{}), make(chan struct{})
	l.mu.Lock()
	l.holdIDs, l.heldIDs = hold, held
	l.mu.Unlock()

	older := make(chan error, 1)
	go func() { older <- s.Refresh(context.Background()) }()
	<-held

	// the older refresh has read [1]; a second order lands and a newer
	// refresh reads and applies [1 2]
	l.create(alice, carol, "2")
	require.NoError(t, s.Refresh(context.Background()))
	assert.Equal(t, []uint64{1, 2}, s.Snapshot().OrderIDs)

	close(hold)
	assert.NoError(t, <-older)

	snap := s.Snapshot()
	assert.Equal(t, []uint64{1, 2}, snap.OrderIDs)
	require.NotNil(t, snap.SelectedID)
	assert.Equal(t, uint64(2), *snap.SelectedID)
	assert.Equal(t, uint64(2), snap.UserStats.Count)
	assert.Equal(t, []uint64{2, 1}, recentIDs(snap))
}

func TestConcurrentRefreshesEndOnLedgerState(t *testing.T) {
	l := newFakeLedger()
	s := New(l)
	s.Bind(alice)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.create(alice, bob, "1")
			assert.NoError(t, s.Refresh(context.Background()))
		}()
	}
	wg.Wait()
	require.NoError(t, s.Refresh(context.Background()))

	snap := s.Snapshot()
	assert.Len(t, snap.OrderIDs, 8)
	assert.Equal(t, uint64(8), snap.UserStats.Count)
	assert.Equal(t, uint64(8), *snap.SelectedID)
}

func TestBindOtherAccountDropsState(t *testing.T) {
	l := newFakeLedger()
	l.create(alice, bob, "1")
	s := New(l)
	s.Bind(alice)
	require.NoError(t, s.Refresh(context.Background()))

	s.Bind(alice)
	assert.NotEmpty(t, s.Snapshot().OrderIDs)

	s.Bind(carol)
	snap := s.Snapshot()
	assert.Equal(t, carol, snap.Account)
	assert.Empty(t, snap.OrderIDs)
	assert.Nil(t, snap.Selected)
	assert.Empty(t, snap.Recent)

	s.Reset()
	assert.False(t, s.Snapshot().Connected)
	assert.ErrorIs(t, s.Refresh(context.Background()), ErrNoIdentity)
}

func TestSubscribeReceivesPublishes(t *testing.T) {
	l := newFakeLedger()
	l.create(alice, bob, "1")
	s := New(l)

	var mu sync.Mutex
	var got []model.Snapshot
	unsubscribe := s.Subscribe(func(snap model.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, snap)
	})
	s.Bind(alice)
	require.NoError(t, s.Refresh(context.Background()))
	unsubscribe()
	s.Reset()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 3)
	assert.True(t, got[1].DetailPending)
	assert.False(t, got[2].DetailPending)
	assert.Equal(t, uint64(1), got[2].Selected.ID)
}

func TestUnsubscribeRemovesListener(t *testing.T) {
	s := New(newFakeLedger())

	calls := 0
	for i := 0; i < 10; i++ {
		unsubscribe := s.Subscribe(func(model.Snapshot) {})
		unsubscribe()
	}
	keep := s.Subscribe(func(model.Snapshot) { calls++ })
	defer keep()

	s.listenersMu.Lock()
	assert.Len(t, s.listeners, 1)
	s.listenersMu.Unlock()

	s.Bind(alice)
	assert.Equal(t, 1, calls)
}

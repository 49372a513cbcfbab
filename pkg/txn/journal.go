package txn

import (
	"context"
	"slices"
	"sync"
)

// Journal is an in-memory EventSink. It keeps every event grouped by the
// request that produced it, so one intent can be traced from submission to
// its outcome.
type Journal struct {
	mu          sync.RWMutex
	requests    map[string][]Event
	order       []string          // request ids, oldest first
	latestByID  map[uint64]string // OrderID -> latest request id
	requestByTx map[string]string // TxHash -> request id
}

func NewJournal() *Journal {
	return &Journal{
		requests:    make(map[string][]Event),
		latestByID:  make(map[uint64]string),
		requestByTx: make(map[string]string),
	}
}

func (j *Journal) Emit(_ context.Context, ev Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, ok := j.requests[ev.RequestID]; !ok {
		j.order = append(j.order, ev.RequestID)
	}
	j.requests[ev.RequestID] = append(j.requests[ev.RequestID], ev)

	if ev.OrderID != nil {
		j.latestByID[*ev.OrderID] = ev.RequestID
	}
	if ev.TxHash != "" {
		j.requestByTx[ev.TxHash] = ev.RequestID
	}
	return nil
}

// Request returns the events of one request, oldest first.
func (j *Journal) Request(requestID string) []Event {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return slices.Clone(j.requests[requestID])
}

// Transaction returns the events of the request that sent hash.
func (j *Journal) Transaction(hash string) []Event {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return slices.Clone(j.requests[j.requestByTx[hash]])
}

// LatestForOrder returns the events of the most recent request that targeted
// order id. Creations carry no id and are not indexed.
func (j *Journal) LatestForOrder(id uint64) []Event {
	j.mu.RLock()
	defer j.mu.RUnlock()

	requestID, ok := j.latestByID[id]
	if !ok {
		return nil
	}
	return slices.Clone(j.requests[requestID])
}

// Outcome returns the last event of every request, oldest request first.
func (j *Journal) Outcome() []Event {
	j.mu.RLock()
	defer j.mu.RUnlock()

	out := make([]Event, 0, len(j.order))
	for _, requestID := range j.order {
		events := j.requests[requestID]
		out = append(out, events[len(events)-1])
	}
	return out
}

// Sinks fans an event out to several sinks. Every sink is tried; the first
// error is returned.
type Sinks []EventSink

func (s Sinks) Emit(ctx context.Context, ev Event) error {
	var first error
	for _, sink := range s {
		if err := sink.Emit(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

package oco

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"bracket-engine/internal/domain/entity/trading"
	"bracket-engine/internal/infrastructure/metrics"
)

// trackedPair is one row of the tracking table. mu serializes transitions of
// the pair and is held across the sibling cancel call; view is a copy of pair
// refreshed after every change so readers never wait on mu.
type trackedPair struct {
	mu       sync.Mutex
	pair     trading.TrackedOrderPair
	terminal map[trading.OrderID]trading.OrderStatus
	view     atomic.Pointer[trading.TrackedOrderPair]
}

func newTrackedPair(pair trading.TrackedOrderPair) *trackedPair {
	tp := &trackedPair{
		pair:     pair,
		terminal: make(map[trading.OrderID]trading.OrderStatus, 2),
	}
	tp.publish()
	return tp
}

// publish must be called with mu held (or before the pair is shared).
func (tp *trackedPair) publish() {
	snapshot := tp.pair.Clone()
	tp.view.Store(&snapshot)
}

type earlyEvent struct {
	event  trading.OrderEvent
	seenAt time.Time
}

// table holds active pairs indexed by every order id they own, fills for ids
// nobody has registered yet, and tombstones for ids of recently resolved pairs.
type table struct {
	mu       sync.RWMutex
	pairs    map[trading.OrderID]*trackedPair // by entry order id
	legs     map[trading.OrderID]*trackedPair // entry, stop-loss and take-profit ids
	early    map[trading.OrderID]earlyEvent
	resolved map[trading.OrderID]time.Time

	earlyTTL   time.Duration
	earlyLimit int
	now        func() time.Time
}

func newTable(earlyTTL time.Duration, earlyLimit int, now func() time.Time) *table {
	return &table{
		pairs:      make(map[trading.OrderID]*trackedPair),
		legs:       make(map[trading.OrderID]*trackedPair),
		early:      make(map[trading.OrderID]earlyEvent),
		resolved:   make(map[trading.OrderID]time.Time),
		earlyTTL:   earlyTTL,
		earlyLimit: earlyLimit,
		now:        now,
	}
}

// insert adds the pair and hands back any early events for its ids, oldest first.
func (t *table) insert(pair trading.TrackedOrderPair) (*trackedPair, []trading.OrderEvent, error) {
	ids := []trading.OrderID{pair.EntryOrderID, pair.StopLossOrderID, pair.TakeProfitOrderID}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, id := range ids {
		if _, exists := t.legs[id]; exists {
			return nil, nil, fmt.Errorf("%w: order %s on %s is already tracked", trading.ErrInvalidInput, id, pair.Symbol)
		}
	}

	tp := newTrackedPair(pair)
	t.pairs[pair.EntryOrderID] = tp
	var replay []trading.OrderEvent
	for _, id := range ids {
		t.legs[id] = tp
		if ev, ok := t.early[id]; ok {
			delete(t.early, id)
			if t.now().Sub(ev.seenAt) <= t.earlyTTL {
				replay = append(replay, ev.event)
			}
		}
	}
	sort.SliceStable(replay, func(i, j int) bool {
		return replay[i].Timestamp.Before(replay[j].Timestamp)
	})
	metrics.SetTrackedPairs(len(t.pairs))
	return tp, replay, nil
}

func (t *table) lookup(id trading.OrderID) *trackedPair {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.legs[id]
}

// lookupOrRemember returns the owning pair, or records a fill as an early
// event when no pair owns the id yet. Only fills are kept: a leg that ends
// unfilled before registration is caught later by the benign cancel of its
// sibling. Ids of recently resolved pairs are never remembered.
func (t *table) lookupOrRemember(ev trading.OrderEvent) *trackedPair {
	if tp := t.lookup(ev.OrderID); tp != nil {
		return tp
	}
	if ev.Status != trading.OrderStatusFilled || t.earlyLimit <= 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if tp, ok := t.legs[ev.OrderID]; ok {
		return tp
	}
	if resolvedAt, ok := t.resolved[ev.OrderID]; ok && t.now().Sub(resolvedAt) <= t.earlyTTL {
		return nil
	}
	t.rememberLocked(ev)
	return nil
}

func (t *table) rememberLocked(ev trading.OrderEvent) {
	now := t.now()
	for id, e := range t.early {
		if now.Sub(e.seenAt) > t.earlyTTL {
			delete(t.early, id)
		}
	}
	for len(t.early) >= t.earlyLimit {
		var oldestID trading.OrderID
		var oldest time.Time
		for id, e := range t.early {
			if oldestID == "" || e.seenAt.Before(oldest) {
				oldestID, oldest = id, e.seenAt
			}
		}
		delete(t.early, oldestID)
	}
	t.early[ev.OrderID] = earlyEvent{event: ev, seenAt: now}
}

// remove drops the pair and tombstones its ids for one early-event TTL so
// late events for them stay out of the early cache.
func (t *table) remove(tp *trackedPair) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	for id, at := range t.resolved {
		if now.Sub(at) > t.earlyTTL {
			delete(t.resolved, id)
		}
	}
	p := tp.pair
	for _, id := range []trading.OrderID{p.EntryOrderID, p.StopLossOrderID, p.TakeProfitOrderID} {
		if t.legs[id] == tp {
			delete(t.legs, id)
			t.resolved[id] = now
		}
	}
	if t.pairs[p.EntryOrderID] == tp {
		delete(t.pairs, p.EntryOrderID)
	}
	metrics.SetTrackedPairs(len(t.pairs))
}

func (t *table) snapshot() []trading.TrackedOrderPair {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]trading.TrackedOrderPair, 0, len(t.pairs))
	for _, tp := range t.pairs {
		out = append(out, tp.view.Load().Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (t *table) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.pairs)
}

package model

import (
	"sync"

	"github.com/shopspring/decimal"
)

// LiveOrderRef is an exchange's own handle to an order, plus the last fill
// quantity the adapter has observed for it.
type LiveOrderRef struct {
	ExchangeOrderRef string
	Symbol           Symbol
	LastKnownFillQty decimal.Decimal
}

// LiveOrderMap is owned exclusively by one Exchange Adapter: the set of
// orders it believes are currently live, keyed by PositionOrderId.
// Invariant 1 (at-most-one-live) is enforced by construction: Set replaces,
// never adds, an entry for a given id.
type LiveOrderMap struct {
	mu      sync.RWMutex
	entries map[PositionOrderId]LiveOrderRef
}

func NewLiveOrderMap() *LiveOrderMap {
	return &LiveOrderMap{entries: make(map[PositionOrderId]LiveOrderRef)}
}

func (m *LiveOrderMap) Get(id PositionOrderId) (LiveOrderRef, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ref, ok := m.entries[id]
	return ref, ok
}

func (m *LiveOrderMap) Set(id PositionOrderId, ref LiveOrderRef) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[id] = ref
}

func (m *LiveOrderMap) Delete(id PositionOrderId) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
}

// Ids returns a snapshot of all currently-live ids.
func (m *LiveOrderMap) Ids() []PositionOrderId {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]PositionOrderId, 0, len(m.entries))
	for id := range m.entries {
		out = append(out, id)
	}
	return out
}

func (m *LiveOrderMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Account is a per-venue balance snapshot.
type Account struct {
	Asset     string
	Available decimal.Decimal
	Locked    decimal.Decimal
}

// InstrumentMeta is the per-symbol precision and floor metadata an Adapter
// caches and the Hub/Chase executor consult before dispatch.
type InstrumentMeta struct {
	Symbol      Symbol
	QtyStep     decimal.Decimal
	PriceTick   decimal.Decimal
	MinNotional decimal.Decimal
}

package indicator

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"

	"marketflow/internal/history"
	"marketflow/internal/model"
)

// InstanceInfo is the externally visible description of a live instance.
type InstanceInfo struct {
	Key         string `json:"key"`
	Provider    string `json:"provider"`
	Symbol      string `json:"symbol"`
	Interval    string `json:"interval"`
	IndicatorID string `json:"indicatorId"`
	Params      Params `json:"params"`
}

// BackfillFunc fetches missing candles for a key and stores them in the
// history store, so that Create can replay a full warm-up window.
type BackfillFunc func(provider, symbol, interval string, need int) error

// Manager owns every live indicator instance: creation with historical
// replay, event routing, and teardown. Updates flow to a single sink.
type Manager struct {
	registry *Registry
	hist     *history.Store
	sink     func(Update)
	backfill BackfillFunc

	mu        sync.RWMutex
	instances map[string]*Instance
}

// NewManager creates a Manager publishing updates through sink.
func NewManager(registry *Registry, hist *history.Store, sink func(Update)) *Manager {
	if sink == nil {
		sink = func(Update) {}
	}
	return &Manager{
		registry:  registry,
		hist:      hist,
		sink:      sink,
		instances: make(map[string]*Instance, 32),
	}
}

// SetBackfill installs the fetcher invoked when stored history is shorter
// than an indicator's warm-up window. Call before the first Create.
func (m *Manager) SetBackfill(fn BackfillFunc) { m.backfill = fn }

// Create instantiates an indicator, replays stored history through it and
// starts its mailbox. The returned updates are the historical calculation
// results (values plus deduplicated shapes), oldest first.
func (m *Manager) Create(provider, symbol, interval, indicatorID string, params Params) (*Instance, []Update, error) {
	ind, err := m.registry.Create(indicatorID)
	if err != nil {
		return nil, nil, err
	}
	resolved, err := ResolveParams(ind.Params(), params)
	if err != nil {
		return nil, nil, err
	}
	if _, err := model.IntervalDuration(interval); err != nil {
		return nil, nil, fmt.Errorf("indicator: %w", err)
	}

	in := &Instance{
		Key:         instanceKey(provider, symbol, interval, indicatorID),
		Provider:    provider,
		Symbol:      symbol,
		Interval:    interval,
		IndicatorID: indicatorID,
		ind:         ind,
		meta:        ind.Meta(),
		params:      resolved,
		state:       ind.NewState(resolved),
		shapes:      NewShapeSet(),
		mailbox:     make(chan message, mailboxCapacity),
		quit:        make(chan struct{}),
		stopped:     make(chan struct{}),
		sink:        m.sink,
	}

	var historical []Update
	if m.hist != nil {
		need := ind.MinCandles(resolved)
		candles := m.hist.LastN(provider, symbol, interval, m.hist.Bound())
		if len(candles) < need && m.backfill != nil {
			if err := m.backfill(provider, symbol, interval, need); err != nil {
				log.Printf("[indicator] backfill %s:%s:%s failed: %v", provider, symbol, interval, err)
			} else {
				candles = m.hist.LastN(provider, symbol, interval, m.hist.Bound())
			}
		}
		historical = in.replay(candles)
		if len(candles) < need {
			log.Printf("[indicator] %s created with %d/%d candles, values warm up live",
				in.Key, len(candles), need)
		}
	}

	m.mu.Lock()
	m.instances[in.Key] = in
	m.mu.Unlock()

	go in.run()
	log.Printf("[indicator] created %s", in.Key)
	return in, historical, nil
}

// Destroy stops an instance and removes it. Returns false for unknown keys.
func (m *Manager) Destroy(key string) bool {
	m.mu.Lock()
	in, ok := m.instances[key]
	if ok {
		delete(m.instances, key)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}

	close(in.quit)
	<-in.stopped
	log.Printf("[indicator] destroyed %s", key)
	return true
}

// Get returns a live instance by key.
func (m *Manager) Get(key string) (*Instance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	in, ok := m.instances[key]
	return in, ok
}

// List describes all live instances.
func (m *Manager) List() []InstanceInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]InstanceInfo, 0, len(m.instances))
	for _, in := range m.instances {
		out = append(out, InstanceInfo{
			Key:         in.Key,
			Provider:    in.Provider,
			Symbol:      in.Symbol,
			Interval:    in.Interval,
			IndicatorID: in.IndicatorID,
			Params:      in.ParamValues(),
		})
	}
	return out
}

// Types returns the metadata of all registered indicator types.
func (m *Manager) Types() []Meta {
	return m.registry.List()
}

// OnEvent routes a normalized market-data event to every matching instance.
// Runs on the ingress dispatch goroutine; enqueueing never blocks.
func (m *Manager) OnEvent(ev model.Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, in := range m.instances {
		if in.wants(ev) {
			in.dispatch(ev)
		}
	}
}

// Close tears down every instance.
func (m *Manager) Close() {
	m.mu.Lock()
	instances := m.instances
	m.instances = make(map[string]*Instance)
	m.mu.Unlock()

	for _, in := range instances {
		close(in.quit)
		<-in.stopped
	}
}

// instanceKey builds "{provider}:{symbol}:{interval}:{indicatorId}:{rand}".
func instanceKey(provider, symbol, interval, indicatorID string) string {
	short := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s:%s:%s:%s:%s", provider, symbol, interval, indicatorID, short)
}

// Package provider defines the market-data provider surface and the
// process-wide provider registry. Downstream components consume normalized
// model.Event values and never depend on an exchange's wire format.
package provider

import (
	"context"
	"sync"
	"time"

	"marketflow/internal/model"
)

// Handler is the single normalized-event sink a provider feeds.
type Handler func(ev model.Event)

// Provider is a streaming market-data source for one exchange.
type Provider interface {
	// Name returns the provider's registry name, e.g. "binance".
	Name() string

	// Connect establishes the streaming session. Idempotent if already
	// connected. The context bounds the connection attempt.
	Connect(ctx context.Context) error

	// Disconnect flags a manual close, terminates the connection and clears
	// all subscription tracking. No reconnect is attempted afterwards.
	Disconnect()

	// Connected reports whether the streaming session is currently live.
	Connected() bool

	// Stream subscriptions. Subscribe/unsubscribe never fail past this
	// surface; transport errors are logged and the tracked state kept so the
	// stream is replayed after reconnect.
	SubscribeTicker(symbol string)
	UnsubscribeTicker(symbol string)
	SubscribeKline(symbol, interval string)
	UnsubscribeKline(symbol, interval string)
	SubscribeTrades(symbol string)
	UnsubscribeTrades(symbol string)
	SubscribeAggTrades(symbol string)
	UnsubscribeAggTrades(symbol string)
	SubscribeDepth(symbol string)
	UnsubscribeDepth(symbol string)
	SubscribeBookTicker(symbol string)
	UnsubscribeBookTicker(symbol string)

	// HistoricalKlines fetches up to limit closed candles ending now.
	HistoricalKlines(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error)

	// HistoricalKlinesRange fetches closed candles for [start, end].
	HistoricalKlinesRange(ctx context.Context, symbol, interval string, start, end time.Time) ([]model.Candle, error)

	// SetHandler registers the normalized-event sink.
	SetHandler(h Handler)
}

// Registry is the universal data service: it maps provider names to
// instances and fans every normalized event into one global handler.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	handler   Handler
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider, 4)}
}

// Register adds a provider under its name and, if a global handler is
// already installed, wires it in.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	r.providers[p.Name()] = p
	h := r.handler
	r.mu.Unlock()

	if h != nil {
		p.SetHandler(h)
	}
}

// Get looks up a provider by name.
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Names returns the registered provider names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.providers))
	for name := range r.providers {
		out = append(out, name)
	}
	return out
}

// SetHandler installs the single global sink on all current and future
// providers.
func (r *Registry) SetHandler(h Handler) {
	r.mu.Lock()
	r.handler = h
	ps := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		ps = append(ps, p)
	}
	r.mu.Unlock()

	for _, p := range ps {
		p.SetHandler(h)
	}
}

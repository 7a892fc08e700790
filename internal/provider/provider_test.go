package provider

import (
	"context"
	"testing"
	"time"

	"marketflow/internal/model"
)

// fakeProvider records handler installation and lets tests emit events.
type fakeProvider struct {
	name    string
	handler Handler
}

func (f *fakeProvider) Name() string                     { return f.name }
func (f *fakeProvider) Connect(context.Context) error    { return nil }
func (f *fakeProvider) Disconnect()                      {}
func (f *fakeProvider) Connected() bool                  { return true }
func (f *fakeProvider) SubscribeTicker(string)           {}
func (f *fakeProvider) UnsubscribeTicker(string)         {}
func (f *fakeProvider) SubscribeKline(string, string)    {}
func (f *fakeProvider) UnsubscribeKline(string, string)  {}
func (f *fakeProvider) SubscribeTrades(string)           {}
func (f *fakeProvider) UnsubscribeTrades(string)         {}
func (f *fakeProvider) SubscribeAggTrades(string)        {}
func (f *fakeProvider) UnsubscribeAggTrades(string)      {}
func (f *fakeProvider) SubscribeDepth(string)            {}
func (f *fakeProvider) UnsubscribeDepth(string)          {}
func (f *fakeProvider) SubscribeBookTicker(string)       {}
func (f *fakeProvider) UnsubscribeBookTicker(string)     {}
func (f *fakeProvider) SetHandler(h Handler)             { f.handler = h }

func (f *fakeProvider) HistoricalKlines(context.Context, string, string, int) ([]model.Candle, error) {
	return nil, nil
}

func (f *fakeProvider) HistoricalKlinesRange(context.Context, string, string, time.Time, time.Time) ([]model.Candle, error) {
	return nil, nil
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	p := &fakeProvider{name: "binance"}
	r.Register(p)

	got, ok := r.Get("binance")
	if !ok || got != Provider(p) {
		t.Fatal("registered provider not returned by Get")
	}
	if _, ok := r.Get("kraken"); ok {
		t.Fatal("unknown provider should not resolve")
	}
	if names := r.Names(); len(names) != 1 || names[0] != "binance" {
		t.Errorf("names = %v", names)
	}
}

func TestRegistry_HandlerFanIn(t *testing.T) {
	r := NewRegistry()
	early := &fakeProvider{name: "early"}
	r.Register(early)

	var got []model.Event
	r.SetHandler(func(ev model.Event) { got = append(got, ev) })

	// Handler reaches providers registered both before and after SetHandler.
	late := &fakeProvider{name: "late"}
	r.Register(late)

	if early.handler == nil || late.handler == nil {
		t.Fatal("handler not installed on all providers")
	}

	early.handler(model.Event{Type: model.DataTypeTrade, Provider: "early"})
	late.handler(model.Event{Type: model.DataTypeKline, Provider: "late"})

	if len(got) != 2 {
		t.Fatalf("expected 2 events through the global handler, got %d", len(got))
	}
	if got[0].Provider != "early" || got[1].Provider != "late" {
		t.Errorf("events misattributed: %+v", got)
	}
}

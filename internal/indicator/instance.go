package indicator

import (
	"log"
	"sync/atomic"

	"marketflow/internal/model"
)

// mailboxCapacity bounds the per-instance event queue. Events past the
// bound are dropped rather than stalling the ingress path.
const mailboxCapacity = 256

type msgKind int

const (
	msgCandle msgKind = iota
	msgTick
	msgTrade
	msgBook
	msgBookTicker
)

type message struct {
	kind   msgKind
	candle model.Candle
	trade  model.Trade
	book   model.OrderBookSnapshot
	ticker model.BookTicker
}

// Instance is one live indicator bound to a (provider, symbol, interval).
// All computation for the instance runs on its mailbox goroutine, so
// handlers observe events strictly in arrival order.
type Instance struct {
	Key         string
	Provider    string
	Symbol      string
	Interval    string
	IndicatorID string

	ind    Indicator
	meta   Meta
	params Params
	state  State
	shapes *ShapeSet

	mailbox chan message
	quit    chan struct{}
	stopped chan struct{}
	sink    func(Update)

	dropped atomic.Uint64
}

// Meta returns the metadata of the underlying indicator type.
func (in *Instance) Meta() Meta { return in.meta }

// ParamValues returns the resolved parameters of the instance.
func (in *Instance) ParamValues() Params {
	out := make(Params, len(in.params))
	for k, v := range in.params {
		out[k] = v
	}
	return out
}

// Dropped returns how many events were discarded on a full mailbox.
func (in *Instance) Dropped() uint64 { return in.dropped.Load() }

// enqueue hands an event to the mailbox without blocking the caller.
func (in *Instance) enqueue(m message) {
	select {
	case in.mailbox <- m:
	default:
		in.dropped.Add(1)
		log.Printf("[indicator] %s mailbox full, dropping event", in.Key)
	}
}

func (in *Instance) run() {
	defer close(in.stopped)
	for {
		select {
		case <-in.quit:
			return
		case m := <-in.mailbox:
			upd, ok := in.process(m)
			if ok {
				in.sink(upd)
			}
		}
	}
}

// process applies one event to the instance. The returned state is
// committed only when the handler succeeds; on error or panic the previous
// state is preserved and the event is skipped.
func (in *Instance) process(m message) (upd Update, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[indicator] %s: recovered from panic: %v", in.Key, r)
			upd, ok = Update{}, false
		}
	}()

	var (
		next    State
		err     error
		handled bool
	)
	switch m.kind {
	case msgCandle:
		upd, next, err = in.ind.OnCandle(m.candle, in.params, in.state)
		handled = true
	case msgTick:
		if h, is := in.ind.(TickHandler); is {
			upd, next, err = h.OnTick(m.candle, in.params, in.state)
			handled = true
		}
	case msgTrade:
		if h, is := in.ind.(TradeHandler); is {
			upd, next, err = h.OnTrade(m.trade, in.params, in.state)
			handled = true
		}
	case msgBook:
		if h, is := in.ind.(BookHandler); is {
			upd, next, err = h.OnOrderBook(m.book, in.params, in.state)
			handled = true
		}
	case msgBookTicker:
		if h, is := in.ind.(BookTickerHandler); is {
			upd, next, err = h.OnBookTicker(m.ticker, in.params, in.state)
			handled = true
		}
	}
	if !handled {
		return Update{}, false
	}
	if err != nil {
		log.Printf("[indicator] %s: compute error: %v", in.Key, err)
		return Update{}, false
	}

	in.state = next
	upd.InstanceKey = in.Key
	upd.Shapes = in.shapes.Filter(upd.Shapes)
	return upd, !upd.Empty()
}

// replay folds historical candles into the instance synchronously, before
// the mailbox starts. Failing candles are skipped with state preserved.
func (in *Instance) replay(candles []model.Candle) []Update {
	out := make([]Update, 0, len(candles))
	for _, c := range candles {
		if !c.Closed {
			continue
		}
		upd, ok := in.process(message{kind: msgCandle, candle: c})
		if ok {
			out = append(out, upd)
		}
	}
	return out
}

// wants reports whether the instance should receive the given event.
func (in *Instance) wants(ev model.Event) bool {
	if ev.Provider != in.Provider || ev.Symbol != in.Symbol {
		return false
	}
	switch ev.Type {
	case model.DataTypeKline:
		return requires(in.meta, model.DataTypeKline) && ev.Candle != nil && ev.Candle.Interval == in.Interval
	case model.DataTypeTrade:
		return requires(in.meta, model.DataTypeTrade)
	case model.DataTypeAggTrade:
		return requires(in.meta, model.DataTypeAggTrade)
	case model.DataTypeOrderBook:
		return requires(in.meta, model.DataTypeOrderBook)
	case model.DataTypeBookTicker:
		return requires(in.meta, model.DataTypeBookTicker)
	}
	return false
}

// dispatch converts a wanted event into a mailbox message.
func (in *Instance) dispatch(ev model.Event) {
	switch ev.Type {
	case model.DataTypeKline:
		if ev.Candle.Closed {
			in.enqueue(message{kind: msgCandle, candle: *ev.Candle})
		} else {
			in.enqueue(message{kind: msgTick, candle: *ev.Candle})
		}
	case model.DataTypeTrade, model.DataTypeAggTrade:
		in.enqueue(message{kind: msgTrade, trade: *ev.Trade})
	case model.DataTypeOrderBook:
		in.enqueue(message{kind: msgBook, book: *ev.OrderBook})
	case model.DataTypeBookTicker:
		in.enqueue(message{kind: msgBookTicker, ticker: *ev.BookTicker})
	}
}

// Package binance implements the Binance spot market-data provider:
// a combined websocket stream session with automatic reconnect and
// subscription replay, plus a REST client for historical klines.
package binance

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"marketflow/internal/model"
	"marketflow/internal/provider"
	"marketflow/internal/ringbuf"
)

const (
	// ProviderName is the registry name of this provider.
	ProviderName = "binance"

	wsEndpoint   = "wss://stream.binance.com:9443/ws"
	restEndpoint = "https://api.binance.com"

	handshakeTimeout  = 10 * time.Second
	baseReconnectWait = 5 * time.Second
	defaultMaxWait    = 60 * time.Second

	// ingressCapacity sizes the raw-message ring between the connection
	// reader and the normalization goroutine.
	ingressCapacity = 8192
)

// klineSub tracks one kline subscription so its history can be backfilled
// after a reconnect.
type klineSub struct {
	symbol   string
	interval string
}

// Client is the Binance provider. A single websocket connection carries all
// subscribed streams; raw frames are handed to a dedicated normalization
// goroutine through an SPSC ring so the reader never stalls on parsing.
type Client struct {
	wsURL   string
	dialer  *websocket.Dialer
	maxWait time.Duration
	rest    *restClient

	mu          sync.Mutex
	conn        *websocket.Conn
	connected   bool
	manualClose bool
	nextID      int64
	streams     map[string]struct{} // active stream names, replayed on reconnect
	klines      map[string]klineSub // kline stream name -> subscription
	depthSyms   map[string]struct{} // symbols with an active depth stream
	handler     provider.Handler

	ring   *ringbuf.Ring[[]byte]
	notify chan struct{}

	// done is closed by Disconnect to stop the dispatch and reconnect
	// loops, and recreated by the next Connect. Guarded by mu.
	done        chan struct{}
	dispatching bool

	reconnects  atomic.Uint64
	parseErrors atomic.Uint64
	dropped     atomic.Uint64
}

// Option mutates a Client at construction time.
type Option func(*Client)

// WithEndpoints overrides the websocket and REST endpoints (tests, mirrors).
func WithEndpoints(wsURL, restURL string) Option {
	return func(c *Client) {
		c.wsURL = wsURL
		c.rest = newRESTClient(restURL)
	}
}

// WithMaxReconnectWait caps the exponential reconnect delay.
func WithMaxReconnectWait(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.maxWait = d
		}
	}
}

// New creates a disconnected Binance client.
func New(opts ...Option) *Client {
	c := &Client{
		wsURL:     wsEndpoint,
		dialer:    &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		maxWait:   defaultMaxWait,
		rest:      newRESTClient(restEndpoint),
		streams:   make(map[string]struct{}, 16),
		klines:    make(map[string]klineSub, 8),
		depthSyms: make(map[string]struct{}, 4),
		ring:      ringbuf.New[[]byte](ingressCapacity),
		notify:    make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Name implements provider.Provider.
func (c *Client) Name() string { return ProviderName }

// SetHandler implements provider.Provider.
func (c *Client) SetHandler(h provider.Handler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// Connected implements provider.Provider.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Connect dials the combined stream endpoint. Returns nil immediately when
// already connected. The handshake is bounded by the dialer's 10s timeout
// and by ctx.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.manualClose = false
	c.mu.Unlock()

	conn, _, err := c.dialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	if c.done == nil {
		c.done = make(chan struct{})
	}
	if !c.dispatching {
		c.dispatching = true
		go c.dispatchLoop(c.done)
	}
	c.mu.Unlock()

	log.Printf("[binance] connected to %s", c.wsURL)

	go c.readLoop(conn)
	return nil
}

// Disconnect flags a manual close and tears the connection down. The
// subscription state is cleared; no reconnect is attempted.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.manualClose = true
	c.connected = false
	conn := c.conn
	c.conn = nil
	done := c.done
	c.done = nil
	c.dispatching = false
	c.streams = make(map[string]struct{}, 16)
	c.klines = make(map[string]klineSub, 8)
	c.depthSyms = make(map[string]struct{}, 4)
	c.mu.Unlock()

	if conn != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}
	if done != nil {
		close(done)
	}
	log.Printf("[binance] disconnected")
}

// readLoop drains one connection into the ingress ring until it fails.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			manual := c.manualClose
			c.connected = false
			c.mu.Unlock()

			if manual || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return
			}
			log.Printf("[binance] read error: %v, reconnecting", err)
			go c.reconnectLoop()
			return
		}

		// The reader owns a transient buffer; copy before handing it off.
		raw := make([]byte, len(msg))
		copy(raw, msg)
		if !c.ring.Push(raw) {
			c.dropped.Add(1)
			continue
		}
		select {
		case c.notify <- struct{}{}:
		default:
		}
	}
}

// dispatchLoop normalizes raw frames and feeds the handler. It survives
// reconnects and stops only on Disconnect; a later Connect starts a fresh
// loop against the recreated done channel.
func (c *Client) dispatchLoop(done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-c.notify:
			for {
				raw, ok := c.ring.Pop()
				if !ok {
					break
				}
				ev, err := c.parseMessage(raw)
				if err != nil {
					c.parseErrors.Add(1)
					log.Printf("[binance] parse error: %v", err)
					continue
				}
				if ev == nil {
					continue // control frame or ack
				}
				c.deliver(*ev)
			}
		}
	}
}

func (c *Client) deliver(ev model.Event) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

// reconnectLoop retries the connection with exponential backoff, then
// replays every tracked subscription and backfills kline history so the
// candle series has no hole spanning the outage.
func (c *Client) reconnectLoop() {
	for attempt := 1; ; attempt++ {
		wait := reconnectWait(attempt, c.maxWait)
		log.Printf("[binance] reconnect attempt %d in %s", attempt, wait)

		c.mu.Lock()
		done := c.done
		manual := c.manualClose
		c.mu.Unlock()
		if manual {
			return
		}

		timer := time.NewTimer(wait)
		select {
		case <-done:
			timer.Stop()
			return
		case <-timer.C:
		}

		c.mu.Lock()
		if c.manualClose {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		if err := c.Connect(context.Background()); err != nil {
			log.Printf("[binance] reconnect attempt %d failed: %v", attempt, err)
			continue
		}

		c.reconnects.Add(1)
		c.resubscribe()
		c.backfillKlines()
		return
	}
}

// reconnectWait returns the delay before reconnect attempt n (1-based):
// 5s doubling per attempt, capped at max.
func reconnectWait(attempt int, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	wait := baseReconnectWait
	for i := 1; i < attempt; i++ {
		wait *= 2
		if wait >= max {
			return max
		}
	}
	if wait > max {
		return max
	}
	return wait
}

// subscribeFrames builds one SUBSCRIBE frame per tracked stream, each with
// a fresh request id.
func (c *Client) subscribeFrames() []wsRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	frames := make([]wsRequest, 0, len(c.streams))
	for stream := range c.streams {
		c.nextID++
		frames = append(frames, wsRequest{
			Method: methodSubscribe,
			Params: []string{stream},
			ID:     c.nextID,
		})
	}
	return frames
}

func (c *Client) resubscribe() {
	frames := c.subscribeFrames()
	for _, f := range frames {
		if err := c.writeJSON(f); err != nil {
			log.Printf("[binance] resubscribe %v failed: %v", f.Params, err)
		}
	}
	log.Printf("[binance] replayed %d subscriptions", len(frames))
}

// backfillKlines refetches recent history for every kline subscription so
// candles missed during the outage are restored.
func (c *Client) backfillKlines() {
	c.mu.Lock()
	subs := make([]klineSub, 0, len(c.klines))
	for _, s := range c.klines {
		subs = append(subs, s)
	}
	c.mu.Unlock()

	for _, s := range subs {
		candles, err := c.rest.klines(context.Background(), s.symbol, s.interval, backfillLimit, time.Time{}, time.Time{})
		if err != nil {
			log.Printf("[binance] backfill %s %s failed: %v", s.symbol, s.interval, err)
			continue
		}
		for i := range candles {
			if !candles[i].Closed {
				continue
			}
			c.deliver(model.Event{
				Type:     model.DataTypeKline,
				Provider: ProviderName,
				Symbol:   candles[i].Symbol,
				Candle:   &candles[i],
			})
		}
		log.Printf("[binance] backfilled %d candles for %s %s", len(candles), s.symbol, s.interval)
	}
}

// track records a stream and, when connected, sends its SUBSCRIBE frame.
// Transport failures keep the tracked state so the stream is replayed on
// the next reconnect.
func (c *Client) track(stream string) {
	c.mu.Lock()
	if _, ok := c.streams[stream]; ok {
		c.mu.Unlock()
		return
	}
	c.streams[stream] = struct{}{}
	c.nextID++
	req := wsRequest{Method: methodSubscribe, Params: []string{stream}, ID: c.nextID}
	connected := c.connected
	c.mu.Unlock()

	if !connected {
		return
	}
	if err := c.writeJSON(req); err != nil {
		log.Printf("[binance] subscribe %s failed: %v", stream, err)
	}
}

func (c *Client) untrack(stream string) {
	c.mu.Lock()
	if _, ok := c.streams[stream]; !ok {
		c.mu.Unlock()
		return
	}
	delete(c.streams, stream)
	c.nextID++
	req := wsRequest{Method: methodUnsubscribe, Params: []string{stream}, ID: c.nextID}
	connected := c.connected
	c.mu.Unlock()

	if !connected {
		return
	}
	if err := c.writeJSON(req); err != nil {
		log.Printf("[binance] unsubscribe %s failed: %v", stream, err)
	}
}

func (c *Client) writeJSON(v any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.WriteJSON(v)
}

// SubscribeTicker implements provider.Provider.
func (c *Client) SubscribeTicker(symbol string) { c.track(tickerStream(symbol)) }

// UnsubscribeTicker implements provider.Provider.
func (c *Client) UnsubscribeTicker(symbol string) { c.untrack(tickerStream(symbol)) }

// SubscribeKline implements provider.Provider.
func (c *Client) SubscribeKline(symbol, interval string) {
	stream := klineStream(symbol, interval)
	c.mu.Lock()
	c.klines[stream] = klineSub{symbol: symbol, interval: interval}
	c.mu.Unlock()
	c.track(stream)
}

// UnsubscribeKline implements provider.Provider.
func (c *Client) UnsubscribeKline(symbol, interval string) {
	stream := klineStream(symbol, interval)
	c.mu.Lock()
	delete(c.klines, stream)
	c.mu.Unlock()
	c.untrack(stream)
}

// SubscribeTrades implements provider.Provider.
func (c *Client) SubscribeTrades(symbol string) { c.track(tradeStream(symbol)) }

// UnsubscribeTrades implements provider.Provider.
func (c *Client) UnsubscribeTrades(symbol string) { c.untrack(tradeStream(symbol)) }

// SubscribeAggTrades implements provider.Provider.
func (c *Client) SubscribeAggTrades(symbol string) { c.track(aggTradeStream(symbol)) }

// UnsubscribeAggTrades implements provider.Provider.
func (c *Client) UnsubscribeAggTrades(symbol string) { c.untrack(aggTradeStream(symbol)) }

// SubscribeDepth implements provider.Provider.
func (c *Client) SubscribeDepth(symbol string) {
	c.mu.Lock()
	c.depthSyms[symbol] = struct{}{}
	c.mu.Unlock()
	c.track(depthStream(symbol))
}

// UnsubscribeDepth implements provider.Provider.
func (c *Client) UnsubscribeDepth(symbol string) {
	c.mu.Lock()
	delete(c.depthSyms, symbol)
	c.mu.Unlock()
	c.untrack(depthStream(symbol))
}

// SubscribeBookTicker implements provider.Provider.
func (c *Client) SubscribeBookTicker(symbol string) { c.track(bookTickerStream(symbol)) }

// UnsubscribeBookTicker implements provider.Provider.
func (c *Client) UnsubscribeBookTicker(symbol string) { c.untrack(bookTickerStream(symbol)) }

// HistoricalKlines implements provider.Provider.
func (c *Client) HistoricalKlines(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error) {
	return c.rest.klines(ctx, symbol, interval, limit, time.Time{}, time.Time{})
}

// HistoricalKlinesRange implements provider.Provider.
func (c *Client) HistoricalKlinesRange(ctx context.Context, symbol, interval string, start, end time.Time) ([]model.Candle, error) {
	return c.rest.klines(ctx, symbol, interval, maxKlineLimit, start, end)
}

// singleDepthSymbol returns the symbol of the only active depth stream.
// Un-attributable partial book snapshots are dropped when zero or several
// depth streams are live.
func (c *Client) singleDepthSymbol() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.depthSyms) != 1 {
		return "", false
	}
	for sym := range c.depthSyms {
		return sym, true
	}
	return "", false
}

// Stats returns transport counters for the metrics exporter.
func (c *Client) Stats() (reconnects, parseErrors, dropped, ringOverflow uint64) {
	return c.reconnects.Load(), c.parseErrors.Load(), c.dropped.Load(), c.ring.Overflow()
}

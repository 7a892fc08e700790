package gateway

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"marketflow/internal/footprint"
	"marketflow/internal/indicator"
	"marketflow/internal/model"
)

// Outbound envelope types.
const (
	TypeConnected       = "connected"
	TypeError           = "error"
	TypeOrderFlow       = "orderFlow"
	TypeTradingData     = "tradingData"
	TypeFootprint       = "footprint"
	TypeIndicatorUpdate = "indicatorUpdate"
	TypeReplayUpdate    = "replayUpdate"
	TypeStats           = "stats"
	TypeProviders       = "providers"
	TypeIntervals       = "intervals"
)

// controlMsg is the inbound control frame from a session. Subscribe names
// one symbol per frame; symbols accumulate across frames.
type controlMsg struct {
	Action  string          `json:"action"`
	Symbol  string          `json:"symbol,omitempty"`
	Types   []string        `json:"types,omitempty"`
	ReqID   string          `json:"reqId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Control actions.
const (
	actionSubscribe    = "subscribe"
	actionUnsubscribe  = "unsubscribe"
	actionGetStats     = "getStats"
	actionGetProviders = "getProviders"
	actionGetIntervals = "getIntervals"
)

func connectedEnvelope(sessionID, endpoint string, supportedTypes, providers, intervals []string) []byte {
	b, _ := json.Marshal(map[string]any{
		"type":           TypeConnected,
		"message":        "Connected to " + endpoint + " stream",
		"supportedTypes": supportedTypes,
		"sessionId":      sessionID,
		"providers":      providers,
		"intervals":      intervals,
		"timestamp":      time.Now().UTC().Format(time.RFC3339Nano),
	})
	return b
}

// ErrorEnvelope reports a failed control message without dropping the session.
func ErrorEnvelope(message, reqID string) []byte {
	m := map[string]any{
		"type":    TypeError,
		"message": message,
	}
	if reqID != "" {
		m["reqId"] = reqID
	}
	b, _ := json.Marshal(m)
	return b
}

// OrderFlowEnvelope wraps one raw market event for order-flow subscribers.
// The payload rides under a key matching its kind: trade, orderBook or
// bookTicker.
func OrderFlowEnvelope(ev model.Event) []byte {
	m := map[string]any{
		"type":     TypeOrderFlow,
		"dataType": string(ev.Type),
		"provider": ev.Provider,
		"symbol":   ev.Symbol,
	}
	switch ev.Type {
	case model.DataTypeTrade, model.DataTypeAggTrade:
		m["timestamp"] = ev.Trade.Timestamp.UTC().Format(time.RFC3339Nano)
		m["trade"] = ev.Trade
	case model.DataTypeOrderBook:
		m["timestamp"] = ev.OrderBook.Timestamp.UTC().Format(time.RFC3339Nano)
		m["orderBook"] = ev.OrderBook
	case model.DataTypeBookTicker:
		m["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
		m["bookTicker"] = ev.BookTicker
	}
	b, _ := json.Marshal(m)
	return b
}

// FootprintEnvelope wraps one footprint bar for broadcast.
func FootprintEnvelope(provider, symbol, interval string, barOpen time.Time, buckets []footprint.Bucket) []byte {
	b, _ := json.Marshal(map[string]any{
		"type":     TypeFootprint,
		"provider": provider,
		"symbol":   symbol,
		"interval": interval,
		"barOpen":  barOpen.UTC().Format(time.RFC3339),
		"buckets":  buckets,
	})
	return b
}

// CandleEnvelope wraps a candle for the trading stream.
func CandleEnvelope(c *model.Candle) []byte {
	b, _ := json.Marshal(map[string]any{
		"type":        TypeTradingData,
		"dataType":    string(model.DataTypeKline),
		"provider":    c.Provider,
		"symbol":      c.Symbol,
		"candlestick": c,
	})
	return b
}

// TradeEnvelope wraps a trade print for the trading stream. dt distinguishes
// raw trades from aggregate trades.
func TradeEnvelope(t *model.Trade, dt model.DataType) []byte {
	b, _ := json.Marshal(map[string]any{
		"type":     TypeTradingData,
		"dataType": string(dt),
		"provider": t.Provider,
		"symbol":   t.Symbol,
		"trade":    t,
	})
	return b
}

// BookEnvelope wraps an order-book snapshot for the trading stream.
func BookEnvelope(ob *model.OrderBookSnapshot) []byte {
	b, _ := json.Marshal(map[string]any{
		"type":      TypeTradingData,
		"dataType":  string(model.DataTypeOrderBook),
		"provider":  ob.Provider,
		"symbol":    ob.Symbol,
		"orderBook": ob,
	})
	return b
}

// OrderEnvelope wraps a simulated order event for the trading stream.
func OrderEnvelope(o *model.Order) []byte {
	b, _ := json.Marshal(map[string]any{
		"type":     TypeTradingData,
		"dataType": "ORDER",
		"provider": o.Provider,
		"symbol":   o.Symbol,
		"order":    o,
	})
	return b
}

// HistoryEnvelope answers a create request with the whole replayed history
// in a single frame. Value-series indicators carry a data array of
// {time, values} rows plus a transposed per-key series map; shape-producing
// indicators instead carry shapes grouped by kind with a total count. Times
// are seconds since epoch.
func HistoryEnvelope(reqID, instanceKey string, meta indicator.Meta, updates []indicator.Update) []byte {
	m := map[string]any{
		"type":        "indicatorCreated",
		"instanceKey": instanceKey,
		"meta":        meta,
	}
	if reqID != "" {
		m["reqId"] = reqID
	}

	if meta.SupportsShapes {
		// Replays re-emit moved fills under the same identity; the latest
		// emission wins so the client draws each region exactly once.
		grouped := make(map[string][]indicator.Shape)
		pos := make(map[string]int)
		total := 0
		for _, upd := range updates {
			for _, sh := range upd.Shapes {
				kind := sh.Kind()
				if i, seen := pos[sh.DedupKey()]; seen {
					grouped[kind][i] = sh
					continue
				}
				pos[sh.DedupKey()] = len(grouped[kind])
				grouped[kind] = append(grouped[kind], sh)
				total++
			}
		}
		m["supportsShapes"] = true
		m["shapes"] = grouped
		m["shapesSummary"] = total
	} else {
		data := make([]map[string]any, 0, len(updates))
		series := make(map[string][]decimal.Decimal)
		for _, upd := range updates {
			if len(upd.Values) == 0 {
				continue
			}
			data = append(data, map[string]any{
				"time":   upd.Time.Unix(),
				"values": upd.Values,
			})
			for k, v := range upd.Values {
				series[k] = append(series[k], v)
			}
		}
		m["data"] = data
		m["series"] = series
	}

	b, _ := json.Marshal(m)
	return b
}

// IndicatorEnvelope wraps one indicator update, shapes tagged by kind.
func IndicatorEnvelope(upd indicator.Update) []byte {
	shapes := make([]map[string]any, 0, len(upd.Shapes))
	for _, s := range upd.Shapes {
		shapes = append(shapes, map[string]any{"kind": s.Kind(), "shape": s})
	}
	b, _ := json.Marshal(map[string]any{
		"type":        TypeIndicatorUpdate,
		"instanceKey": upd.InstanceKey,
		"time":        upd.Time.UTC().Format(time.RFC3339),
		"values":      upd.Values,
		"shapes":      shapes,
	})
	return b
}

// ReplayEnvelope describes replay-session progress.
func ReplayEnvelope(state string, index, total int, speed decimal.Decimal, c *model.Candle) []byte {
	progress := decimal.Zero
	if total > 0 {
		progress = decimal.NewFromInt(int64(index)).Div(decimal.NewFromInt(int64(total)))
	}
	b, _ := json.Marshal(map[string]any{
		"type":         TypeReplayUpdate,
		"state":        state,
		"currentIndex": index,
		"totalCandles": total,
		"progress":     progress,
		"speed":        speed,
		"candle":       c,
	})
	return b
}

package binance

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"marketflow/internal/model"
)

// wsProbe sniffs the discriminator of an incoming frame. Subscription acks
// carry an id, partial book snapshots carry lastUpdateId and no event tag,
// everything else has an "e" field.
type wsProbe struct {
	Event        string `json:"e"`
	ID           *int64 `json:"id"`
	LastUpdateID int64  `json:"lastUpdateId"`
	Symbol       string `json:"s"`
	BidPrice     string `json:"b"`
	AskPrice     string `json:"a"`
}

// parseMessage normalizes one raw frame. A nil event with nil error means
// the frame was a control message or could not be attributed and was dropped.
func (c *Client) parseMessage(raw []byte) (*model.Event, error) {
	var probe wsProbe
	if err := json.Unmarshal(raw, &probe); err != nil {
		// "b"/"a" are arrays on depth frames; retag and retry on the event
		// field alone.
		var tag struct {
			Event        string `json:"e"`
			LastUpdateID int64  `json:"lastUpdateId"`
		}
		if err2 := json.Unmarshal(raw, &tag); err2 != nil {
			return nil, &ParseError{Stream: "frame", Err: err}
		}
		probe = wsProbe{Event: tag.Event, LastUpdateID: tag.LastUpdateID}
	}

	switch {
	case probe.ID != nil:
		return nil, nil // subscription ack
	case probe.Event == "" && probe.LastUpdateID > 0:
		return c.parsePartialDepth(raw)
	case probe.Event == "" && probe.Symbol != "" && probe.BidPrice != "" && probe.AskPrice != "":
		return parseBookTicker(raw)
	}

	switch probe.Event {
	case "kline":
		return parseKline(raw)
	case "trade":
		return parseTrade(raw)
	case "aggTrade":
		return parseAggTrade(raw)
	case "depthUpdate":
		return parseDepthUpdate(raw)
	case "bookTicker":
		return parseBookTicker(raw)
	case "24hrTicker":
		return parseTicker(raw)
	case "":
		return nil, nil
	}
	return nil, &ParseError{Stream: probe.Event, Err: fmt.Errorf("unknown event type")}
}

type wsKline struct {
	Symbol string `json:"s"`
	Kline  struct {
		OpenTime    int64  `json:"t"`
		CloseTime   int64  `json:"T"`
		Symbol      string `json:"s"`
		Interval    string `json:"i"`
		Open        string `json:"o"`
		Close       string `json:"c"`
		High        string `json:"h"`
		Low         string `json:"l"`
		Volume      string `json:"v"`
		TradeCount  int64  `json:"n"`
		Closed      bool   `json:"x"`
		QuoteVolume string `json:"q"`
	} `json:"k"`
}

func parseKline(raw []byte) (*model.Event, error) {
	var m wsKline
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, &ParseError{Stream: "kline", Err: err}
	}
	k := m.Kline

	var (
		c   model.Candle
		err error
	)
	c.Symbol = m.Symbol
	c.Provider = ProviderName
	c.Interval = k.Interval
	c.OpenTime = msTime(k.OpenTime)
	c.CloseTime = msTime(k.CloseTime)
	c.TradeCount = k.TradeCount
	c.Closed = k.Closed
	if c.Open, err = dec(k.Open); err == nil {
		if c.High, err = dec(k.High); err == nil {
			if c.Low, err = dec(k.Low); err == nil {
				if c.Close, err = dec(k.Close); err == nil {
					if c.Volume, err = dec(k.Volume); err == nil {
						c.QuoteVolume, err = dec(k.QuoteVolume)
					}
				}
			}
		}
	}
	if err != nil {
		return nil, &ParseError{Stream: "kline", Err: err}
	}

	return &model.Event{
		Type:     model.DataTypeKline,
		Provider: ProviderName,
		Symbol:   m.Symbol,
		Candle:   &c,
	}, nil
}

type wsTrade struct {
	Symbol       string `json:"s"`
	TradeID      int64  `json:"t"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	TradeTime    int64  `json:"T"`
	BuyerIsMaker bool   `json:"m"`
}

func parseTrade(raw []byte) (*model.Event, error) {
	var m wsTrade
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, &ParseError{Stream: "trade", Err: err}
	}
	price, err := dec(m.Price)
	if err != nil {
		return nil, &ParseError{Stream: "trade", Err: err}
	}
	qty, err := dec(m.Quantity)
	if err != nil {
		return nil, &ParseError{Stream: "trade", Err: err}
	}

	t := &model.Trade{
		ID:           m.TradeID,
		Symbol:       m.Symbol,
		Provider:     ProviderName,
		Price:        price,
		Quantity:     qty,
		QuoteQty:     price.Mul(qty),
		Timestamp:    msTime(m.TradeTime),
		BuyerIsMaker: m.BuyerIsMaker,
	}
	return &model.Event{
		Type:     model.DataTypeTrade,
		Provider: ProviderName,
		Symbol:   m.Symbol,
		Trade:    t,
	}, nil
}

type wsAggTrade struct {
	Symbol       string `json:"s"`
	AggID        int64  `json:"a"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	FirstID      int64  `json:"f"`
	LastID       int64  `json:"l"`
	TradeTime    int64  `json:"T"`
	BuyerIsMaker bool   `json:"m"`
}

func parseAggTrade(raw []byte) (*model.Event, error) {
	var m wsAggTrade
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, &ParseError{Stream: "aggTrade", Err: err}
	}
	price, err := dec(m.Price)
	if err != nil {
		return nil, &ParseError{Stream: "aggTrade", Err: err}
	}
	qty, err := dec(m.Quantity)
	if err != nil {
		return nil, &ParseError{Stream: "aggTrade", Err: err}
	}

	t := &model.Trade{
		ID:           m.AggID,
		Symbol:       m.Symbol,
		Provider:     ProviderName,
		Price:        price,
		Quantity:     qty,
		QuoteQty:     price.Mul(qty),
		Timestamp:    msTime(m.TradeTime),
		BuyerIsMaker: m.BuyerIsMaker,
		FirstID:      m.FirstID,
		LastID:       m.LastID,
	}
	return &model.Event{
		Type:     model.DataTypeAggTrade,
		Provider: ProviderName,
		Symbol:   m.Symbol,
		Trade:    t,
	}, nil
}

type wsDepthUpdate struct {
	Symbol    string      `json:"s"`
	EventTime int64       `json:"E"`
	FinalID   int64       `json:"u"`
	Bids      [][2]string `json:"b"`
	Asks      [][2]string `json:"a"`
}

func parseDepthUpdate(raw []byte) (*model.Event, error) {
	var m wsDepthUpdate
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, &ParseError{Stream: "depthUpdate", Err: err}
	}
	bids, err := parseLevels(m.Bids, true)
	if err != nil {
		return nil, &ParseError{Stream: "depthUpdate", Err: err}
	}
	asks, err := parseLevels(m.Asks, false)
	if err != nil {
		return nil, &ParseError{Stream: "depthUpdate", Err: err}
	}

	ob := &model.OrderBookSnapshot{
		Symbol:    m.Symbol,
		Provider:  ProviderName,
		UpdateID:  m.FinalID,
		Timestamp: msTime(m.EventTime),
		Bids:      bids,
		Asks:      asks,
	}
	return &model.Event{
		Type:      model.DataTypeOrderBook,
		Provider:  ProviderName,
		Symbol:    m.Symbol,
		OrderBook: ob,
	}, nil
}

type wsPartialDepth struct {
	LastUpdateID int64       `json:"lastUpdateId"`
	Bids         [][2]string `json:"bids"`
	Asks         [][2]string `json:"asks"`
}

// parsePartialDepth handles book snapshots that carry no symbol. They are
// attributed to the single active depth subscription; with zero or several
// live depth streams the frame is dropped.
func (c *Client) parsePartialDepth(raw []byte) (*model.Event, error) {
	symbol, ok := c.singleDepthSymbol()
	if !ok {
		c.dropped.Add(1)
		log.Printf("[binance] dropping un-attributable partial depth frame")
		return nil, nil
	}

	var m wsPartialDepth
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, &ParseError{Stream: "partialDepth", Err: err}
	}
	bids, err := parseLevels(m.Bids, true)
	if err != nil {
		return nil, &ParseError{Stream: "partialDepth", Err: err}
	}
	asks, err := parseLevels(m.Asks, false)
	if err != nil {
		return nil, &ParseError{Stream: "partialDepth", Err: err}
	}

	ob := &model.OrderBookSnapshot{
		Symbol:    symbol,
		Provider:  ProviderName,
		UpdateID:  m.LastUpdateID,
		Timestamp: time.Now().UTC(),
		Bids:      bids,
		Asks:      asks,
	}
	return &model.Event{
		Type:      model.DataTypeOrderBook,
		Provider:  ProviderName,
		Symbol:    symbol,
		OrderBook: ob,
	}, nil
}

type wsBookTicker struct {
	UpdateID int64  `json:"u"`
	Symbol   string `json:"s"`
	BidPrice string `json:"b"`
	BidQty   string `json:"B"`
	AskPrice string `json:"a"`
	AskQty   string `json:"A"`
}

func parseBookTicker(raw []byte) (*model.Event, error) {
	var m wsBookTicker
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, &ParseError{Stream: "bookTicker", Err: err}
	}
	bt := &model.BookTicker{
		Symbol:   m.Symbol,
		Provider: ProviderName,
		UpdateID: m.UpdateID,
	}
	var err error
	if bt.BidPrice, err = dec(m.BidPrice); err != nil {
		return nil, &ParseError{Stream: "bookTicker", Err: err}
	}
	if bt.BidQty, err = dec(m.BidQty); err != nil {
		return nil, &ParseError{Stream: "bookTicker", Err: err}
	}
	if bt.AskPrice, err = dec(m.AskPrice); err != nil {
		return nil, &ParseError{Stream: "bookTicker", Err: err}
	}
	if bt.AskQty, err = dec(m.AskQty); err != nil {
		return nil, &ParseError{Stream: "bookTicker", Err: err}
	}

	return &model.Event{
		Type:       model.DataTypeBookTicker,
		Provider:   ProviderName,
		Symbol:     m.Symbol,
		BookTicker: bt,
	}, nil
}

// parseTicker maps the 24h rolling ticker onto the best bid/ask event; the
// statistics fields it shares with bookTicker are what downstream consumes.
func parseTicker(raw []byte) (*model.Event, error) {
	ev, err := parseBookTicker(raw)
	if err != nil {
		return nil, &ParseError{Stream: "24hrTicker", Err: err}
	}
	return ev, nil
}

func parseLevels(rows [][2]string, bids bool) ([]model.PriceLevel, error) {
	out := make([]model.PriceLevel, 0, len(rows))
	for _, row := range rows {
		price, err := dec(row[0])
		if err != nil {
			return nil, err
		}
		qty, err := dec(row[1])
		if err != nil {
			return nil, err
		}
		out = append(out, model.PriceLevel{Price: price, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool {
		if bids {
			return out[i].Price.GreaterThan(out[j].Price)
		}
		return out[i].Price.LessThan(out[j].Price)
	})
	return out, nil
}

func dec(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func msTime(ms int64) time.Time {
	return time.Unix(0, ms*int64(time.Millisecond)).UTC()
}

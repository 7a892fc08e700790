package binance

import (
	"testing"

	"github.com/shopspring/decimal"

	"marketflow/internal/model"
)

func TestParseMessage_Kline(t *testing.T) {
	raw := []byte(`{"e":"kline","E":1700000000123,"s":"BTCUSDT","k":{
		"t":1699999980000,"T":1700000039999,"s":"BTCUSDT","i":"1m",
		"o":"64000.10","c":"64010.50","h":"64020.00","l":"63990.00",
		"v":"12.345","n":240,"x":true,"q":"790000.12"}}`)

	c := New()
	ev, err := c.parseMessage(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev == nil || ev.Type != model.DataTypeKline || ev.Candle == nil {
		t.Fatalf("expected kline event, got %+v", ev)
	}

	k := ev.Candle
	if k.Symbol != "BTCUSDT" || k.Interval != "1m" || !k.Closed {
		t.Errorf("candle header wrong: %+v", k)
	}
	if k.OpenTime.UnixMilli() != 1699999980000 {
		t.Errorf("open time = %d", k.OpenTime.UnixMilli())
	}
	if !k.Open.Equal(decimal.RequireFromString("64000.10")) {
		t.Errorf("open = %s", k.Open)
	}
	if !k.Close.Equal(decimal.RequireFromString("64010.50")) {
		t.Errorf("close = %s", k.Close)
	}
	if k.TradeCount != 240 {
		t.Errorf("trade count = %d", k.TradeCount)
	}
	if err := k.Validate(); err != nil {
		t.Errorf("candle invalid: %v", err)
	}
}

func TestParseMessage_Trade(t *testing.T) {
	raw := []byte(`{"e":"trade","E":1700000000123,"s":"BTCUSDT",
		"t":12345,"p":"64000.5","q":"0.25","T":1700000000100,"m":false}`)

	c := New()
	ev, err := c.parseMessage(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.Type != model.DataTypeTrade || ev.Trade == nil {
		t.Fatalf("expected trade event, got %+v", ev)
	}

	tr := ev.Trade
	if tr.ID != 12345 || tr.BuyerIsMaker {
		t.Errorf("trade header wrong: %+v", tr)
	}
	if !tr.AggressiveBuy() {
		t.Error("taker-buy trade should be an aggressive buy")
	}
	if !tr.QuoteQty.Equal(decimal.RequireFromString("16000.125")) {
		t.Errorf("quote qty = %s", tr.QuoteQty)
	}
}

func TestParseMessage_AggTrade(t *testing.T) {
	raw := []byte(`{"e":"aggTrade","E":1700000000123,"s":"ETHUSDT",
		"a":66,"p":"3100.1","q":"1.5","f":100,"l":105,"T":1700000000100,"m":true}`)

	c := New()
	ev, err := c.parseMessage(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.Type != model.DataTypeAggTrade || ev.Trade == nil {
		t.Fatalf("expected aggTrade event, got %+v", ev)
	}
	if ev.Trade.FirstID != 100 || ev.Trade.LastID != 105 {
		t.Errorf("aggregate id range wrong: %+v", ev.Trade)
	}
	if ev.Trade.AggressiveBuy() {
		t.Error("maker-buy trade should be an aggressive sell")
	}
}

func TestParseMessage_DepthUpdate(t *testing.T) {
	raw := []byte(`{"e":"depthUpdate","E":1700000000123,"s":"BNBUSDT","U":157,"u":160,
		"b":[["25.30","10"],["25.35","5"]],
		"a":[["25.40","4"],["25.36","2"]]}`)

	c := New()
	ev, err := c.parseMessage(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.Type != model.DataTypeOrderBook || ev.OrderBook == nil {
		t.Fatalf("expected order book event, got %+v", ev)
	}

	ob := ev.OrderBook
	if ob.UpdateID != 160 {
		t.Errorf("update id = %d", ob.UpdateID)
	}
	// Bids descending, asks ascending.
	if !ob.BestBid().Price.Equal(decimal.RequireFromString("25.35")) {
		t.Errorf("best bid = %s", ob.BestBid().Price)
	}
	if !ob.BestAsk().Price.Equal(decimal.RequireFromString("25.36")) {
		t.Errorf("best ask = %s", ob.BestAsk().Price)
	}
	if !ob.Spread().Equal(decimal.RequireFromString("0.01")) {
		t.Errorf("spread = %s", ob.Spread())
	}
}

func TestParseMessage_BookTicker(t *testing.T) {
	// Raw book-ticker frames carry no event tag.
	raw := []byte(`{"u":400900217,"s":"BNBUSDT","b":"25.35","B":"31.21","a":"25.36","A":"40.66"}`)

	c := New()
	ev, err := c.parseMessage(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.Type != model.DataTypeBookTicker || ev.BookTicker == nil {
		t.Fatalf("expected book ticker event, got %+v", ev)
	}
	if !ev.BookTicker.Spread().Equal(decimal.RequireFromString("0.01")) {
		t.Errorf("spread = %s", ev.BookTicker.Spread())
	}
}

func TestParseMessage_Ticker(t *testing.T) {
	raw := []byte(`{"e":"24hrTicker","E":1700000000123,"s":"BTCUSDT",
		"b":"64000.1","B":"2","a":"64000.2","A":"3"}`)

	c := New()
	ev, err := c.parseMessage(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.Type != model.DataTypeBookTicker || ev.BookTicker == nil {
		t.Fatalf("expected normalized ticker event, got %+v", ev)
	}
}

func TestParseMessage_SubscriptionAck(t *testing.T) {
	c := New()
	ev, err := c.parseMessage([]byte(`{"result":null,"id":7}`))
	if err != nil {
		t.Fatalf("ack should not error: %v", err)
	}
	if ev != nil {
		t.Fatalf("ack should produce no event, got %+v", ev)
	}
}

func TestParseMessage_UnknownEvent(t *testing.T) {
	c := New()
	_, err := c.parseMessage([]byte(`{"e":"markPriceUpdate","s":"BTCUSDT"}`))
	if err == nil {
		t.Fatal("unknown event type must error")
	}
}

func TestParseMessage_PartialDepthCorrelation(t *testing.T) {
	raw := []byte(`{"lastUpdateId":160,"bids":[["25.30","10"]],"asks":[["25.36","4"]]}`)

	// No depth subscription: frame dropped without error.
	c := New()
	ev, err := c.parseMessage(raw)
	if err != nil || ev != nil {
		t.Fatalf("expected silent drop, got ev=%+v err=%v", ev, err)
	}
	if _, _, dropped, _ := c.Stats(); dropped != 1 {
		t.Errorf("drop counter = %d, want 1", dropped)
	}

	// Exactly one depth subscription: attributed to it.
	c = New()
	c.SubscribeDepth("BNBUSDT")
	ev, err = c.parseMessage(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev == nil || ev.Symbol != "BNBUSDT" || ev.OrderBook == nil {
		t.Fatalf("expected snapshot attributed to BNBUSDT, got %+v", ev)
	}
	if ev.OrderBook.UpdateID != 160 {
		t.Errorf("update id = %d", ev.OrderBook.UpdateID)
	}

	// Several depth subscriptions: ambiguous, dropped.
	c = New()
	c.SubscribeDepth("BNBUSDT")
	c.SubscribeDepth("BTCUSDT")
	ev, err = c.parseMessage(raw)
	if err != nil || ev != nil {
		t.Fatalf("expected silent drop with 2 depth subs, got ev=%+v err=%v", ev, err)
	}
}

func TestParseMessage_MalformedFrame(t *testing.T) {
	c := New()
	if _, err := c.parseMessage([]byte(`{not json`)); err == nil {
		t.Fatal("malformed frame must error")
	}
	if _, err := c.parseMessage([]byte(`{"e":"trade","p":"not-a-number","q":"1","s":"X"}`)); err == nil {
		t.Fatal("bad decimal must error")
	}
}

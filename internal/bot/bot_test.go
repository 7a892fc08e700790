package bot

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"marketflow/internal/model"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func closedCandle(openUnix int64, close string) model.Candle {
	c := d(close)
	return model.Candle{
		Symbol:    "BTCUSDT",
		Provider:  "binance",
		Interval:  "1m",
		OpenTime:  time.Unix(openUnix, 0).UTC(),
		CloseTime: time.Unix(openUnix+60, 0).UTC(),
		Open:      c, High: c, Low: c, Close: c,
		Volume: decimal.NewFromInt(1),
		Closed: true,
	}
}

func candleEvent(c model.Candle) model.Event {
	return model.Event{Type: model.DataTypeKline, Provider: c.Provider, Symbol: c.Symbol, Candle: &c}
}

func TestSimAccount_WeightedAverageAndRealizedPnL(t *testing.T) {
	acct := NewSimAccount(decimal.NewFromInt(1000), 0)

	buy := func(qty, mark string) {
		t.Helper()
		o := &model.Order{OrderID: "o", Symbol: "BTCUSDT", Side: model.OrderSideBuy, Quantity: d(qty)}
		if _, err := acct.Execute(o, d(mark)); err != nil {
			t.Fatal(err)
		}
	}
	sell := func(qty, mark string) {
		t.Helper()
		o := &model.Order{OrderID: "o", Symbol: "BTCUSDT", Side: model.OrderSideSell, Quantity: d(qty)}
		if _, err := acct.Execute(o, d(mark)); err != nil {
			t.Fatal(err)
		}
	}

	buy("2", "100")
	buy("2", "110")
	pos, ok := acct.Position("BTCUSDT")
	if !ok {
		t.Fatal("expected open position")
	}
	if !pos.Quantity.Equal(d("4")) || !pos.AvgPrice.Equal(d("105")) {
		t.Fatalf("position qty=%s avg=%s, want 4 @ 105", pos.Quantity, pos.AvgPrice)
	}

	sell("2", "120") // realized (120-105)*2 = 30
	if !acct.RealizedPnL().Equal(d("30")) {
		t.Errorf("realized = %s, want 30", acct.RealizedPnL())
	}

	sell("2", "100") // realized (100-105)*2 = -10, position closes
	if !acct.RealizedPnL().Equal(d("20")) {
		t.Errorf("realized = %s, want 20", acct.RealizedPnL())
	}
	if _, ok := acct.Position("BTCUSDT"); ok {
		t.Error("flat position must be removed")
	}
	if !acct.Balance().Equal(d("1020")) {
		t.Errorf("balance = %s, want 1020", acct.Balance())
	}
	if got := len(acct.Fills()); got != 4 {
		t.Errorf("fill journal has %d entries, want 4", got)
	}
}

func TestSimAccount_SlippageWorksAgainstTaker(t *testing.T) {
	acct := NewSimAccount(decimal.NewFromInt(1000), 100) // 1%

	o := &model.Order{OrderID: "b", Symbol: "BTCUSDT", Side: model.OrderSideBuy, Quantity: d("1")}
	fill, err := acct.Execute(o, d("100"))
	if err != nil {
		t.Fatal(err)
	}
	if !fill.FillPrice.Equal(d("101")) {
		t.Errorf("buy fill = %s, want 101", fill.FillPrice)
	}

	o = &model.Order{OrderID: "s", Symbol: "BTCUSDT", Side: model.OrderSideSell, Quantity: d("1")}
	fill, err = acct.Execute(o, d("100"))
	if err != nil {
		t.Fatal(err)
	}
	if !fill.FillPrice.Equal(d("99")) {
		t.Errorf("sell fill = %s, want 99", fill.FillPrice)
	}
}

func TestSimAccount_FlipThroughFlat(t *testing.T) {
	acct := NewSimAccount(decimal.NewFromInt(1000), 0)

	o := &model.Order{OrderID: "a", Symbol: "BTCUSDT", Side: model.OrderSideBuy, Quantity: d("2")}
	if _, err := acct.Execute(o, d("100")); err != nil {
		t.Fatal(err)
	}
	o = &model.Order{OrderID: "b", Symbol: "BTCUSDT", Side: model.OrderSideSell, Quantity: d("5")}
	if _, err := acct.Execute(o, d("110")); err != nil {
		t.Fatal(err)
	}

	pos, ok := acct.Position("BTCUSDT")
	if !ok {
		t.Fatal("expected short position after flip")
	}
	if !pos.Quantity.Equal(d("-3")) || !pos.AvgPrice.Equal(d("110")) {
		t.Errorf("position qty=%s avg=%s, want -3 @ 110", pos.Quantity, pos.AvgPrice)
	}
	if !acct.RealizedPnL().Equal(d("20")) {
		t.Errorf("realized = %s, want 20", acct.RealizedPnL())
	}
}

func TestRiskManager_Limits(t *testing.T) {
	acct := NewSimAccount(decimal.NewFromInt(100000), 0)
	rm := NewRiskManager(RiskLimits{
		MaxPositionSize:   d("5"),
		MaxSymbolExposure: d("1000"),
		MaxTotalExposure:  d("1500"),
		MaxDailyLoss:      d("100"),
		MaxOpenPositions:  1,
	})

	if ok, _ := rm.Check("BTCUSDT", "BUY", d("3"), d("100"), acct); !ok {
		t.Error("order within all limits must pass")
	}
	if ok, reason := rm.Check("BTCUSDT", "BUY", d("6"), d("100"), acct); ok || reason != "position size exceeds limit" {
		t.Errorf("oversized order: ok=%v reason=%q", ok, reason)
	}
	if ok, reason := rm.Check("BTCUSDT", "BUY", d("5"), d("300"), acct); ok || reason != "symbol exposure exceeds limit" {
		t.Errorf("symbol exposure: ok=%v reason=%q", ok, reason)
	}

	// Open a position, then a second symbol breaches the position count.
	o := &model.Order{OrderID: "a", Symbol: "BTCUSDT", Side: model.OrderSideBuy, Quantity: d("2")}
	if _, err := acct.Execute(o, d("100")); err != nil {
		t.Fatal(err)
	}
	if ok, reason := rm.Check("ETHUSDT", "BUY", d("1"), d("100"), acct); ok || reason != "max open positions reached" {
		t.Errorf("open positions: ok=%v reason=%q", ok, reason)
	}
	// Growing the existing position is not a new position.
	if ok, _ := rm.Check("BTCUSDT", "BUY", d("2"), d("100"), acct); !ok {
		t.Error("adding to an existing position must not count as a new one")
	}

	rm.RecordPnL(d("-150"))
	if ok, reason := rm.Check("BTCUSDT", "BUY", d("1"), d("100"), acct); ok || reason != "max daily loss reached" {
		t.Errorf("daily loss: ok=%v reason=%q", ok, reason)
	}
	rm.ResetDaily()
	if ok, _ := rm.Check("BTCUSDT", "BUY", d("1"), d("100"), acct); !ok {
		t.Error("daily reset must clear the loss gate")
	}
}

// scripted emits a fixed order on the nth candle it sees.
type scripted struct {
	at     int
	order  model.Order
	candle int
}

func (s *scripted) Name() string { return "scripted" }

func (s *scripted) Analyze(ev model.Event) []model.Order {
	if ev.Type != model.DataTypeKline || !ev.Candle.Closed {
		return nil
	}
	s.candle++
	if s.candle != s.at {
		return nil
	}
	o := s.order
	return []model.Order{o}
}

func TestBot_FillRejectAndAnalysisOnly(t *testing.T) {
	var got []*model.Order
	sink := func(o *model.Order) { got = append(got, o) }

	acct := NewSimAccount(decimal.NewFromInt(100000), 0)
	rm := NewRiskManager(RiskLimits{MaxPositionSize: d("5")})

	b := New(rm, acct, false, sink)
	b.Register(&scripted{at: 1, order: model.Order{
		Symbol: "BTCUSDT", Provider: "binance", Side: model.OrderSideBuy, Quantity: d("2"),
	}})
	b.Register(&scripted{at: 2, order: model.Order{
		Symbol: "BTCUSDT", Provider: "binance", Side: model.OrderSideBuy, Quantity: d("50"),
	}})

	b.OnEvent(candleEvent(closedCandle(60, "100")))
	b.OnEvent(candleEvent(closedCandle(120, "101")))

	if len(got) != 2 {
		t.Fatalf("sink saw %d orders, want 2", len(got))
	}
	if got[0].Status != model.OrderStatusFilled {
		t.Errorf("first order status = %s, want FILLED", got[0].Status)
	}
	if !got[0].Price.Equal(d("100")) {
		t.Errorf("fill price = %s, want mark 100", got[0].Price)
	}
	if got[0].OrderID == "" || got[0].Strategy != "scripted" {
		t.Errorf("order id/strategy not stamped: %+v", got[0])
	}
	if got[1].Status != model.OrderStatusRejected || got[1].Reason == "" {
		t.Errorf("oversized order = %s (%q), want REJECTED with reason", got[1].Status, got[1].Reason)
	}

	pos, ok := acct.Position("BTCUSDT")
	if !ok || !pos.Quantity.Equal(d("2")) {
		t.Errorf("account position = %+v, want long 2", pos)
	}

	// Analysis-only: accepted orders are reported but never executed.
	got = nil
	dry := New(rm, NewSimAccount(decimal.NewFromInt(100000), 0), true, sink)
	dry.Register(&scripted{at: 1, order: model.Order{
		Symbol: "BTCUSDT", Provider: "binance", Side: model.OrderSideBuy, Quantity: d("2"),
	}})
	dry.OnEvent(candleEvent(closedCandle(60, "100")))
	if len(got) != 1 || got[0].Status != model.OrderStatusNew {
		t.Fatalf("analysis-only order = %+v, want status NEW", got)
	}

	// Disabled bot ignores events entirely.
	got = nil
	b.SetEnabled(false)
	b.OnEvent(candleEvent(closedCandle(180, "102")))
	if len(got) != 0 {
		t.Errorf("disabled bot still emitted %d orders", len(got))
	}
}

func TestSMACrossover_Signals(t *testing.T) {
	s := NewSMACrossover("binance", "BTCUSDT", "1m", 2, 3, d("1"))

	closes := []string{"10", "9", "8", "7", "12", "5", "1"}
	var orders []model.Order
	for i, c := range closes {
		orders = append(orders, s.Analyze(candleEvent(closedCandle(int64(60*(i+1)), c)))...)
	}

	if len(orders) != 2 {
		t.Fatalf("got %d orders, want golden cross then death cross", len(orders))
	}
	if orders[0].Side != model.OrderSideBuy {
		t.Errorf("first signal side = %s, want BUY", orders[0].Side)
	}
	if orders[1].Side != model.OrderSideSell {
		t.Errorf("second signal side = %s, want SELL", orders[1].Side)
	}

	// Forming candles and other symbols are ignored.
	forming := closedCandle(480, "50")
	forming.Closed = false
	if out := s.Analyze(candleEvent(forming)); out != nil {
		t.Error("forming candle must not trigger analysis")
	}
	other := closedCandle(480, "50")
	other.Symbol = "ETHUSDT"
	if out := s.Analyze(candleEvent(other)); out != nil {
		t.Error("mismatched symbol must be ignored")
	}
}

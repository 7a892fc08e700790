package indicator

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"marketflow/internal/model"
)

func bookAt(updateID int64, bidQty, askQty string) model.OrderBookSnapshot {
	return model.OrderBookSnapshot{
		Symbol:    "BTCUSDT",
		Provider:  "binance",
		UpdateID:  updateID,
		Timestamp: time.Unix(60, 0).UTC(),
		Bids:      []model.PriceLevel{{Price: decimal.NewFromInt(100), Quantity: decimal.RequireFromString(bidQty)}},
		Asks:      []model.PriceLevel{{Price: decimal.NewFromInt(101), Quantity: decimal.RequireFromString(askQty)}},
	}
}

func TestBookmap_StaleSnapshotDiscarded(t *testing.T) {
	ind := &Bookmap{}
	p, err := ResolveParams(ind.Params(), nil)
	if err != nil {
		t.Fatal(err)
	}
	st := ind.NewState(p)

	upd, st, err := ind.OnOrderBook(bookAt(10, "5", "3"), p, st)
	if err != nil {
		t.Fatal(err)
	}
	if !upd.Values["bidDepth"].Equal(decimal.NewFromInt(5)) {
		t.Fatalf("bidDepth = %s, want 5", upd.Values["bidDepth"])
	}

	// An older update id regressed: the snapshot is dropped and the
	// published depth keeps the newer view.
	upd, st, err = ind.OnOrderBook(bookAt(9, "999", "999"), p, st)
	if err != nil {
		t.Fatal(err)
	}
	if !upd.Empty() {
		t.Fatalf("stale snapshot produced values: %+v", upd.Values)
	}
	if !st.(*bookmapState).bidDepth.Equal(decimal.NewFromInt(5)) {
		t.Errorf("stale snapshot overwrote depth: %s", st.(*bookmapState).bidDepth)
	}

	// Equal id is also a regression.
	if upd, st, _ = ind.OnOrderBook(bookAt(10, "999", "999"), p, st); !upd.Empty() {
		t.Fatal("duplicate update id must be discarded")
	}

	// The next id advances normally.
	upd, _, err = ind.OnOrderBook(bookAt(11, "7", "2"), p, st)
	if err != nil {
		t.Fatal(err)
	}
	if !upd.Values["bidDepth"].Equal(decimal.NewFromInt(7)) {
		t.Errorf("bidDepth = %s, want 7", upd.Values["bidDepth"])
	}
}

func TestBookmap_BarVolumesResetOnClose(t *testing.T) {
	ind := &Bookmap{}
	p, err := ResolveParams(ind.Params(), nil)
	if err != nil {
		t.Fatal(err)
	}
	st := ind.NewState(p)

	buy := model.Trade{Symbol: "BTCUSDT", Price: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(2), BuyerIsMaker: false}
	sell := model.Trade{Symbol: "BTCUSDT", Price: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(3), BuyerIsMaker: true}
	_, st, _ = ind.OnTrade(buy, p, st)
	_, st, _ = ind.OnTrade(sell, p, st)

	upd, st, err := ind.OnCandle(flatCandleAt(60, "100"), p, st)
	if err != nil {
		t.Fatal(err)
	}
	if !upd.Values["buyVolume"].Equal(decimal.NewFromInt(2)) || !upd.Values["sellVolume"].Equal(decimal.NewFromInt(3)) {
		t.Fatalf("bar volumes = %s/%s, want 2/3", upd.Values["buyVolume"], upd.Values["sellVolume"])
	}

	upd, _, _ = ind.OnCandle(flatCandleAt(120, "100"), p, st)
	if !upd.Values["buyVolume"].Equal(decimal.Zero) {
		t.Errorf("buyVolume = %s after close, want 0", upd.Values["buyVolume"])
	}
}

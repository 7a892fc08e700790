package indicator

import (
	"github.com/shopspring/decimal"

	"marketflow/internal/model"
)

// Bookmap fuses every data stream into a liquidity view: resting depth and
// imbalance from book snapshots, spread from best bid/ask, traded volume
// per side from the tape, volume confirmation from closed candles.
type Bookmap struct{}

type bookmapState struct {
	bidDepth     decimal.Decimal
	askDepth     decimal.Decimal
	bestBid      decimal.Decimal
	bestAsk      decimal.Decimal
	barBuy       decimal.Decimal
	barSell      decimal.Decimal
	lastUpdateID int64
	haveBook     bool
	haveQuote    bool
}

func (Bookmap) Meta() Meta {
	return Meta{
		ID:   "bookmap",
		Name: "Bookmap",
		RequiredData: []model.DataType{
			model.DataTypeKline,
			model.DataTypeTrade,
			model.DataTypeAggTrade,
			model.DataTypeOrderBook,
			model.DataTypeBookTicker,
		},
		Series: map[string]SeriesStyle{
			"bidDepth":   {DisplayName: "Bid Depth", Kind: "area", Color: "#52e07a", Pane: "separate", PaneOrder: 1},
			"askDepth":   {DisplayName: "Ask Depth", Kind: "area", Color: "#e05252", Pane: "separate", PaneOrder: 1},
			"imbalance":  {DisplayName: "Imbalance", Kind: "line", Color: "#c9a227", Pane: "separate", PaneOrder: 2},
			"bestBid":    {DisplayName: "Best Bid", Kind: "line", Color: "#52e07a", Pane: "price"},
			"bestAsk":    {DisplayName: "Best Ask", Kind: "line", Color: "#e05252", Pane: "price"},
			"spread":     {DisplayName: "Spread", Kind: "line", Color: "#808080", Pane: "separate", PaneOrder: 3},
			"volume":     {DisplayName: "Volume", Kind: "histogram", Color: "#808080", Pane: "separate", PaneOrder: 4},
			"buyVolume":  {DisplayName: "Buy Volume", Kind: "histogram", Color: "#52e07a", Pane: "separate", PaneOrder: 4},
			"sellVolume": {DisplayName: "Sell Volume", Kind: "histogram", Color: "#e05252", Pane: "separate", PaneOrder: 4},
		},
	}
}

func (Bookmap) Params() []ParamSpec {
	return []ParamSpec{
		{Name: "depthLevels", Kind: ParamInt, Default: 10, Min: intPtr(1), Max: intPtr(100)},
	}
}

func (Bookmap) MinCandles(Params) int { return 1 }

func (Bookmap) NewState(Params) State { return &bookmapState{} }

func (Bookmap) OnOrderBook(ob model.OrderBookSnapshot, p Params, s State) (Update, State, error) {
	st := s.(*bookmapState)

	// updateId is authoritative for book sequencing; stale snapshots are
	// discarded.
	if ob.UpdateID != 0 && ob.UpdateID <= st.lastUpdateID {
		return Update{}, st, nil
	}
	if ob.UpdateID != 0 {
		st.lastUpdateID = ob.UpdateID
	}

	depth := p.Int("depthLevels")
	st.bidDepth = model.CumulativeVolume(ob.Bids, depth)
	st.askDepth = model.CumulativeVolume(ob.Asks, depth)
	st.haveBook = true

	values := map[string]decimal.Decimal{
		"bidDepth": st.bidDepth,
		"askDepth": st.askDepth,
	}
	if total := st.bidDepth.Add(st.askDepth); !total.IsZero() {
		values["imbalance"] = st.bidDepth.Sub(st.askDepth).Div(total)
	}
	return Update{Time: ob.Timestamp, Values: values}, st, nil
}

func (Bookmap) OnBookTicker(bt model.BookTicker, p Params, s State) (Update, State, error) {
	st := s.(*bookmapState)
	st.bestBid = bt.BidPrice
	st.bestAsk = bt.AskPrice
	st.haveQuote = true

	return Update{
		Values: map[string]decimal.Decimal{
			"bestBid": bt.BidPrice,
			"bestAsk": bt.AskPrice,
			"spread":  bt.Spread(),
		},
	}, st, nil
}

func (Bookmap) OnTrade(t model.Trade, p Params, s State) (Update, State, error) {
	st := s.(*bookmapState)
	if t.AggressiveBuy() {
		st.barBuy = st.barBuy.Add(t.Quantity)
	} else {
		st.barSell = st.barSell.Add(t.Quantity)
	}
	return Update{}, st, nil
}

func (Bookmap) OnCandle(c model.Candle, p Params, s State) (Update, State, error) {
	st := s.(*bookmapState)
	upd := Update{
		Time: c.OpenTime,
		Values: map[string]decimal.Decimal{
			"volume":     c.Volume,
			"buyVolume":  st.barBuy,
			"sellVolume": st.barSell,
		},
	}
	st.barBuy = decimal.Zero
	st.barSell = decimal.Zero
	return upd, st, nil
}

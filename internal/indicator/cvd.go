package indicator

import (
	"github.com/shopspring/decimal"

	"marketflow/internal/model"
)

// CVD is cumulative volume delta: the running sum of aggressive buy volume
// minus aggressive sell volume, snapshotted per closed candle.
type CVD struct{}

type cvdState struct {
	cumulative decimal.Decimal
	barDelta   decimal.Decimal
	barBuy     decimal.Decimal
	barSell    decimal.Decimal
}

func (CVD) Meta() Meta {
	return Meta{
		ID:           "cvd",
		Name:         "Cumulative Volume Delta",
		RequiredData: []model.DataType{model.DataTypeKline, model.DataTypeAggTrade},
		Series: map[string]SeriesStyle{
			"cvd":        {DisplayName: "CVD", Kind: "line", Color: "#4a90d9", Width: 2, Pane: "separate", PaneOrder: 1},
			"delta":      {DisplayName: "Bar Delta", Kind: "histogram", Color: "#808080", Pane: "separate", PaneOrder: 1},
			"buyVolume":  {DisplayName: "Buy Volume", Kind: "histogram", Color: "#52e07a", Pane: "separate", PaneOrder: 2},
			"sellVolume": {DisplayName: "Sell Volume", Kind: "histogram", Color: "#e05252", Pane: "separate", PaneOrder: 2},
		},
	}
}

func (CVD) Params() []ParamSpec { return nil }

func (CVD) MinCandles(Params) int { return 1 }

func (CVD) NewState(Params) State { return &cvdState{} }

func (CVD) OnTrade(t model.Trade, p Params, s State) (Update, State, error) {
	st := s.(*cvdState)
	if t.AggressiveBuy() {
		st.cumulative = st.cumulative.Add(t.Quantity)
		st.barDelta = st.barDelta.Add(t.Quantity)
		st.barBuy = st.barBuy.Add(t.Quantity)
	} else {
		st.cumulative = st.cumulative.Sub(t.Quantity)
		st.barDelta = st.barDelta.Sub(t.Quantity)
		st.barSell = st.barSell.Add(t.Quantity)
	}
	return Update{}, st, nil
}

func (CVD) OnCandle(c model.Candle, p Params, s State) (Update, State, error) {
	st := s.(*cvdState)
	upd := Update{
		Time: c.OpenTime,
		Values: map[string]decimal.Decimal{
			"cvd":        st.cumulative,
			"delta":      st.barDelta,
			"buyVolume":  st.barBuy,
			"sellVolume": st.barSell,
		},
	}
	st.barDelta = decimal.Zero
	st.barBuy = decimal.Zero
	st.barSell = decimal.Zero
	return upd, st, nil
}

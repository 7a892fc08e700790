package indicator

import (
	"github.com/shopspring/decimal"

	"marketflow/internal/model"
)

// SMA is the simple moving average over a selectable candle source.
type SMA struct{}

type smaState struct {
	win *window
}

func (SMA) Meta() Meta {
	return Meta{
		ID:           "sma",
		Name:         "Simple Moving Average",
		RequiredData: []model.DataType{model.DataTypeKline},
		Series: map[string]SeriesStyle{
			"sma": {DisplayName: "SMA", Kind: "line", Color: "#4a90d9", Width: 2, Pane: "price"},
		},
	}
}

func (SMA) Params() []ParamSpec {
	return []ParamSpec{
		{Name: "length", Kind: ParamInt, Default: 14, Min: intPtr(1), Max: intPtr(500)},
		{Name: "source", Kind: ParamSource, Default: "close"},
	}
}

func (SMA) MinCandles(p Params) int { return p.Int("length") }

func (SMA) NewState(p Params) State {
	return &smaState{win: newWindow(p.Int("length"))}
}

func (SMA) OnCandle(c model.Candle, p Params, s State) (Update, State, error) {
	st := s.(*smaState)
	st.win.push(sourceValue(p.String("source"), c.Open, c.High, c.Low, c.Close))
	if !st.win.full() {
		return Update{}, st, nil
	}
	return Update{
		Time:   c.OpenTime,
		Values: map[string]decimal.Decimal{"sma": st.win.avg()},
	}, st, nil
}

// OnTick previews the average with the forming candle included, without
// consuming window capacity.
func (SMA) OnTick(c model.Candle, p Params, s State) (Update, State, error) {
	st := s.(*smaState)
	if st.win.len() == 0 {
		return Update{}, st, nil
	}
	v := sourceValue(p.String("source"), c.Open, c.High, c.Low, c.Close)

	sum := st.win.sum.Add(v)
	n := int64(st.win.len()) + 1
	if st.win.full() {
		sum = sum.Sub(st.win.at(0))
		n--
	}
	return Update{
		Time:   c.OpenTime,
		Values: map[string]decimal.Decimal{"sma": sum.Div(decimal.NewFromInt(n))},
	}, st, nil
}

package indicator

import (
	"github.com/shopspring/decimal"

	"marketflow/internal/model"
)

// TRAMA is the trend-regularity adaptive moving average. The smoothing
// factor is the squared average of recent new-extreme signals: the average
// tracks price tightly in trends and flattens in ranges.
type TRAMA struct{}

type tramaState struct {
	src    *window // ring of source prices
	sig    *window // 0/1 new-extreme signals
	prevHH decimal.Decimal
	prevLL decimal.Decimal
	ama    decimal.Decimal
	count  int
}

func (TRAMA) Meta() Meta {
	return Meta{
		ID:           "trama",
		Name:         "Trend Regularity Adaptive Moving Average",
		RequiredData: []model.DataType{model.DataTypeKline},
		Series: map[string]SeriesStyle{
			"trama": {DisplayName: "TRAMA", Kind: "line", Color: "#c9a227", Width: 2, Pane: "price"},
			"tc":    {DisplayName: "Trend Consistency", Kind: "area", Color: "#808080", Pane: "separate", PaneOrder: 1},
		},
	}
}

func (TRAMA) Params() []ParamSpec {
	return []ParamSpec{
		{Name: "length", Kind: ParamInt, Default: 99, Min: intPtr(2), Max: intPtr(500)},
	}
}

func (TRAMA) MinCandles(p Params) int { return p.Int("length") }

func (TRAMA) NewState(p Params) State {
	n := p.Int("length")
	return &tramaState{
		src: newWindow(n),
		sig: newWindow(n),
	}
}

func (TRAMA) OnCandle(c model.Candle, p Params, s State) (Update, State, error) {
	st := s.(*tramaState)
	src := c.Close
	st.src.push(src)

	hh := st.src.max()
	ll := st.src.min()

	// A bar sets the signal when it prints a fresh rolling extreme.
	sig := decimal.Zero
	if st.count > 0 && (hh.GreaterThan(st.prevHH) || ll.LessThan(st.prevLL)) {
		sig = decimal.NewFromInt(1)
	}
	st.sig.push(sig)
	st.prevHH, st.prevLL = hh, ll

	tc := st.sig.avg()
	tc = tc.Mul(tc)

	if st.count == 0 {
		st.ama = src
	} else {
		st.ama = st.ama.Add(src.Sub(st.ama).Mul(tc))
	}
	st.count++

	if st.count < p.Int("length") {
		return Update{}, st, nil
	}
	return Update{
		Time: c.OpenTime,
		Values: map[string]decimal.Decimal{
			"trama": st.ama,
			"tc":    tc,
		},
	}, st, nil
}

package indicator

import (
	"github.com/shopspring/decimal"

	"marketflow/internal/model"
)

// Volume reports per-bar volume with a moving average and direction.
type Volume struct{}

type volumeState struct {
	ma *window
}

func (Volume) Meta() Meta {
	return Meta{
		ID:           "volume",
		Name:         "Volume",
		RequiredData: []model.DataType{model.DataTypeKline},
		Series: map[string]SeriesStyle{
			"volume":    {DisplayName: "Volume", Kind: "histogram", Color: "#808080", Pane: "separate", PaneOrder: 1},
			"direction": {DisplayName: "Direction", Kind: "line", Color: "#c9a227", Pane: "separate", PaneOrder: 1},
		},
	}
}

func (Volume) Params() []ParamSpec {
	return []ParamSpec{
		{Name: "maLength", Kind: ParamInt, Default: 20, Min: intPtr(1), Max: intPtr(500)},
	}
}

func (Volume) MinCandles(Params) int { return 1 }

func (Volume) NewState(p Params) State {
	return &volumeState{ma: newWindow(p.Int("maLength"))}
}

func (Volume) OnCandle(c model.Candle, p Params, s State) (Update, State, error) {
	st := s.(*volumeState)
	st.ma.push(c.Volume)

	// direction: +1 up bar, -1 down bar, 0 doji
	direction := decimal.Zero
	switch {
	case c.Close.GreaterThan(c.Open):
		direction = decimal.NewFromInt(1)
	case c.Close.LessThan(c.Open):
		direction = decimal.NewFromInt(-1)
	}

	values := map[string]decimal.Decimal{
		"volume":    c.Volume,
		"direction": direction,
	}
	if st.ma.full() {
		values["volumeMa"] = st.ma.avg()
	}
	return Update{Time: c.OpenTime, Values: values}, st, nil
}

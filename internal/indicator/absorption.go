package indicator

import (
	"github.com/shopspring/decimal"

	"marketflow/internal/model"
)

// Absorption flags bars where unusually high traded volume fails to move
// price: one side of the book is soaking up aggression. The absorbing side
// is inferred from the bar's trade delta.
type Absorption struct{}

type absorptionState struct {
	volWin   *window
	rangeWin *window
	barDelta decimal.Decimal
}

func (Absorption) Meta() Meta {
	return Meta{
		ID:             "absorption",
		Name:           "Absorption",
		RequiredData:   []model.DataType{model.DataTypeKline, model.DataTypeAggTrade},
		SupportsShapes: true,
		Series: map[string]SeriesStyle{
			"absorbedVolume": {DisplayName: "Absorbed Volume", Kind: "histogram", Color: "#808080", Pane: "separate", PaneOrder: 1},
			"delta":          {DisplayName: "Delta", Kind: "histogram", Color: "#c9a227", Pane: "separate", PaneOrder: 1},
		},
	}
}

func (Absorption) Params() []ParamSpec {
	return []ParamSpec{
		{Name: "lookback", Kind: ParamInt, Default: 20, Min: intPtr(2), Max: intPtr(500)},
		{Name: "volumeFactor", Kind: ParamDecimal, Default: decimal.RequireFromString("2")},
	}
}

func (Absorption) MinCandles(p Params) int { return p.Int("lookback") }

func (Absorption) NewState(p Params) State {
	n := p.Int("lookback")
	return &absorptionState{
		volWin:   newWindow(n),
		rangeWin: newWindow(n),
	}
}

func (Absorption) OnTrade(t model.Trade, p Params, s State) (Update, State, error) {
	st := s.(*absorptionState)
	if t.AggressiveBuy() {
		st.barDelta = st.barDelta.Add(t.Quantity)
	} else {
		st.barDelta = st.barDelta.Sub(t.Quantity)
	}
	return Update{}, st, nil
}

func (Absorption) OnCandle(c model.Candle, p Params, s State) (Update, State, error) {
	st := s.(*absorptionState)
	barRange := c.High.Sub(c.Low)
	delta := st.barDelta
	st.barDelta = decimal.Zero

	wasFull := st.volWin.full()
	avgVol := st.volWin.avg()
	avgRange := st.rangeWin.avg()
	st.volWin.push(c.Volume)
	st.rangeWin.push(barRange)

	if !wasFull {
		return Update{}, st, nil
	}

	// High volume, compressed range.
	half := decimal.RequireFromString("0.5")
	hot := c.Volume.GreaterThan(avgVol.Mul(p.Decimal("volumeFactor")))
	quiet := barRange.LessThan(avgRange.Mul(half))
	if !hot || !quiet {
		return Update{}, st, nil
	}

	// Sellers hit into passive bids without breaking them: bullish
	// absorption. The mirror case is bearish.
	bullish := delta.LessThanOrEqual(decimal.Zero)
	label, color, position := "Bearish Absorption", "#e05252", "above"
	price := c.High
	if bullish {
		label, color, position = "Bullish Absorption", "#52e07a", "below"
		price = c.Low
	}

	shapes := []Shape{
		Marker{Time: c.OpenTime, Price: price, Symbol: "diamond", Color: color, Label: label, Position: position},
		Box{
			Time1:  c.OpenTime,
			Time2:  c.CloseTime,
			Price1: c.Low,
			Price2: c.High,
			Color:  color,
			Label:  label,
		},
	}
	return Update{
		Time: c.OpenTime,
		Values: map[string]decimal.Decimal{
			"absorbedVolume": c.Volume,
			"delta":          delta,
		},
		Shapes: shapes,
	}, st, nil
}

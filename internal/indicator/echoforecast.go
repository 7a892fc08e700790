package indicator

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"marketflow/internal/model"
)

// EchoForecast projects price forward by finding the historical window most
// (or least) correlated with recent action and echoing the deltas that
// followed it. Correlation is a ranking metric only; the projected prices
// stay in exact decimals.
type EchoForecast struct{}

type echoState struct {
	closes []decimal.Decimal
	times  []time.Time
}

func (EchoForecast) Meta() Meta {
	return Meta{
		ID:             "echoforecast",
		Name:           "Echo Forecast",
		RequiredData:   []model.DataType{model.DataTypeKline},
		SupportsShapes: true,
		Series: map[string]SeriesStyle{
			"correlation": {DisplayName: "Correlation", Kind: "line", Color: "#c9a227", Pane: "separate", PaneOrder: 1},
			"offset":      {DisplayName: "Matched Offset", Kind: "line", Color: "#808080", Pane: "separate", PaneOrder: 1},
		},
	}
}

func (EchoForecast) Params() []ParamSpec {
	return []ParamSpec{
		{Name: "length", Kind: ParamInt, Default: 50, Min: intPtr(2), Max: intPtr(250)},
		{Name: "forecast", Kind: ParamInt, Default: 20, Min: intPtr(1), Max: intPtr(100)},
		{Name: "matching", Kind: ParamString, Default: "similarity", Options: []string{"similarity", "dissimilarity"}},
		{Name: "mode", Kind: ParamString, Default: "cumulative", Options: []string{"cumulative", "mean", "linreg"}},
	}
}

// The ring spans the evaluation range, a spacer wide enough that every
// candidate window has a full set of follow-up deltas, and the reference.
func (EchoForecast) MinCandles(p Params) int {
	return p.Int("length") + 2*p.Int("forecast")
}

func (EchoForecast) NewState(Params) State { return &echoState{} }

func (e EchoForecast) OnCandle(c model.Candle, p Params, s State) (Update, State, error) {
	st := s.(*echoState)
	length := p.Int("length")
	horizon := p.Int("forecast")
	capacity := length + 2*horizon

	st.closes = append(st.closes, c.Close)
	st.times = append(st.times, c.OpenTime)
	if len(st.closes) > capacity {
		st.closes = st.closes[1:]
		st.times = st.times[1:]
	}
	if len(st.closes) < capacity {
		return Update{}, st, nil
	}

	n := len(st.closes)
	reference := st.closes[n-horizon:]

	// Slide a forecast-size window through the evaluation range. Strict
	// comparison keeps the earliest window on ties.
	dissimilar := p.String("matching") == "dissimilarity"
	bestOffset, bestCorr := 0, math.Inf(-1)
	if dissimilar {
		bestCorr = math.Inf(1)
	}
	for d := 0; d < length; d++ {
		r := pearson(reference, st.closes[d:d+horizon])
		if (!dissimilar && r > bestCorr) || (dissimilar && r < bestCorr) {
			bestCorr, bestOffset = r, d
		}
	}

	// The deltas that followed the matched window, one per forecast step.
	// d+horizon <= length+horizon-1, so the reference is never consumed.
	deltas := make([]decimal.Decimal, horizon)
	for j := 0; j < horizon; j++ {
		deltas[j] = st.closes[bestOffset+j+1].Sub(st.closes[bestOffset+j])
	}

	points := forecastPoints(st.closes, reference, deltas, p.String("mode"))

	step, err := model.IntervalDuration(c.Interval)
	if err != nil {
		return Update{}, st, err
	}

	shapes := make([]Shape, 0, len(points)+3)
	prevPrice := c.Close
	prevTime := c.OpenTime
	for i, price := range points {
		t := c.OpenTime.Add(step * time.Duration(i+1))
		shapes = append(shapes, Line{
			Time1: prevTime, Time2: t,
			Price1: prevPrice, Price2: price,
			Color: "#c9a227", Style: "dashed",
		})
		prevPrice, prevTime = price, t
	}
	shapes = append(shapes,
		zoneBox(st, 0, length, "Evaluation", "#80808020"),
		zoneBox(st, bestOffset, bestOffset+horizon, "Correlation", "#c9a22730"),
		zoneBox(st, n-horizon, n, "Reference", "#52e07a30"),
	)

	return Update{
		Time: c.OpenTime,
		Values: map[string]decimal.Decimal{
			"correlation": decimal.NewFromFloat(bestCorr),
			"offset":      decimal.NewFromInt(int64(bestOffset)),
		},
		Shapes: shapes,
	}, st, nil
}

// zoneBox spans the half-open index range [from, to) of the ring.
func zoneBox(st *echoState, from, to int, label, color string) Box {
	lo, hi := st.closes[from], st.closes[from]
	for _, v := range st.closes[from+1 : to] {
		if v.LessThan(lo) {
			lo = v
		}
		if v.GreaterThan(hi) {
			hi = v
		}
	}
	return Box{
		Time1: st.times[from], Time2: st.times[to-1],
		Price1: lo, Price2: hi,
		Color: color, Label: label,
	}
}

// forecastPoints applies one of the three constructions to the matched
// deltas.
func forecastPoints(closes, reference, deltas []decimal.Decimal, mode string) []decimal.Decimal {
	out := make([]decimal.Decimal, len(deltas))

	switch mode {
	case "mean":
		// Walk the deltas forward from the reference-window mean.
		cur := decimal.Zero
		for _, v := range reference {
			cur = cur.Add(v)
		}
		cur = cur.Div(decimal.NewFromInt(int64(len(reference))))
		for i, d := range deltas {
			cur = cur.Add(d)
			out[i] = cur
		}

	case "linreg":
		// Least-squares fit over the reference indices, projected forward,
		// with the matched deltas accumulated on top.
		m := int64(len(reference))
		xBar := decimal.NewFromInt(m - 1).Div(decimal.NewFromInt(2))
		yBar := decimal.Zero
		for _, v := range reference {
			yBar = yBar.Add(v)
		}
		yBar = yBar.Div(decimal.NewFromInt(m))
		num, den := decimal.Zero, decimal.Zero
		for i, v := range reference {
			dx := decimal.NewFromInt(int64(i)).Sub(xBar)
			num = num.Add(dx.Mul(v.Sub(yBar)))
			den = den.Add(dx.Mul(dx))
		}
		slope := decimal.Zero
		if !den.IsZero() {
			slope = num.Div(den)
		}
		intercept := yBar.Sub(slope.Mul(xBar))
		cum := decimal.Zero
		for i, d := range deltas {
			cum = cum.Add(d)
			projected := intercept.Add(slope.Mul(decimal.NewFromInt(m + int64(i))))
			out[i] = projected.Add(cum)
		}

	default: // cumulative
		// Walk the deltas forward from the last price.
		cur := closes[len(closes)-1]
		for i, d := range deltas {
			cur = cur.Add(d)
			out[i] = cur
		}
	}
	return out
}

// pearson computes the correlation coefficient of two equal-length series.
// float64 is sufficient here: the result only ranks candidate windows.
func pearson(a, b []decimal.Decimal) float64 {
	n := len(a)
	if n == 0 || n != len(b) {
		return 0
	}
	var sumA, sumB, sumAB, sumA2, sumB2 float64
	for i := 0; i < n; i++ {
		x, _ := a[i].Float64()
		y, _ := b[i].Float64()
		sumA += x
		sumB += y
		sumAB += x * y
		sumA2 += x * x
		sumB2 += y * y
	}
	fn := float64(n)
	num := fn*sumAB - sumA*sumB
	den := math.Sqrt(fn*sumA2-sumA*sumA) * math.Sqrt(fn*sumB2-sumB*sumB)
	if den == 0 {
		return 0
	}
	return num / den
}

package indicator

import (
	"time"

	"github.com/shopspring/decimal"

	"marketflow/internal/model"
)

// avgVolumeBars is the lookback for the volume-strength denominator.
const avgVolumeBars = 20

// OrderBlock detects volume-pivot order blocks: a local volume maximum
// marks the bar where a large participant positioned. The market-structure
// oscillator decides the zone's side: a pivot inside a downtrend leaves a
// demand (bullish) zone, a pivot inside an uptrend leaves a supply
// (bearish) zone. Zones are bounded per side and removed once price closes
// through them.
type OrderBlock struct{}

type obZone struct {
	top      decimal.Decimal
	bottom   decimal.Decimal
	strength decimal.Decimal // pivot volume / rolling average volume
	created  time.Time
	touched  bool
}

type orderBlockState struct {
	candles []model.Candle
	fast    *ema
	slow    *ema
	vols    *window
	bulls   []obZone
	bears   []obZone
}

func (OrderBlock) Meta() Meta {
	return Meta{
		ID:             "orderblock",
		Name:           "Order Block Detector",
		RequiredData:   []model.DataType{model.DataTypeKline},
		SupportsShapes: true,
		Series: map[string]SeriesStyle{
			"oscillator": {DisplayName: "Market Structure", Kind: "line", Color: "#c9a227", Pane: "separate", PaneOrder: 1},
			"bullZones":  {DisplayName: "Bull Zones", Kind: "line", Color: "#52e07a", Pane: "separate", PaneOrder: 2},
			"bearZones":  {DisplayName: "Bear Zones", Kind: "line", Color: "#e05252", Pane: "separate", PaneOrder: 2},
		},
	}
}

func (OrderBlock) Params() []ParamSpec {
	return []ParamSpec{
		{Name: "pivotLookback", Kind: ParamInt, Default: 2, Min: intPtr(1), Max: intPtr(20)},
		{Name: "maxZones", Kind: ParamInt, Default: 3, Min: intPtr(1), Max: intPtr(10)},
	}
}

func (OrderBlock) MinCandles(p Params) int { return 2*p.Int("pivotLookback") + 1 }

func (OrderBlock) NewState(p Params) State {
	return &orderBlockState{
		fast: newEMA(5),
		slow: newEMA(20),
		vols: newWindow(avgVolumeBars),
	}
}

func (OrderBlock) OnCandle(c model.Candle, p Params, s State) (Update, State, error) {
	st := s.(*orderBlockState)
	lb := p.Int("pivotLookback")
	maxZones := p.Int("maxZones")
	winSize := 2*lb + 1

	// Market-structure oscillator: EMA(close,5) − EMA(close,20). Above
	// zero the structure is treated as an uptrend.
	osc := st.fast.update(c.Close).Sub(st.slow.update(c.Close))
	st.vols.push(c.Volume)

	st.candles = append(st.candles, c)
	if len(st.candles) > winSize {
		st.candles = st.candles[1:]
	}

	var shapes []Shape

	// Zone lifecycle against the current bar: a close through the far edge
	// mitigates the zone, a wick into it is a touch.
	keptBulls := st.bulls[:0]
	for _, z := range st.bulls {
		switch {
		case c.Close.LessThan(z.bottom):
			shapes = append(shapes, Marker{
				Time: c.OpenTime, Price: z.bottom,
				Symbol: "square", Color: "#808080", Label: "Bull OB Mitigated", Position: "below",
			})
		default:
			if !z.touched && c.Low.LessThanOrEqual(z.top) {
				z.touched = true
				shapes = append(shapes, Marker{
					Time: c.OpenTime, Price: z.top,
					Symbol: "circle", Color: "#52e07a", Label: "Bull OB Touch", Position: "below",
				})
			}
			keptBulls = append(keptBulls, z)
		}
	}
	st.bulls = keptBulls

	keptBears := st.bears[:0]
	for _, z := range st.bears {
		switch {
		case c.Close.GreaterThan(z.top):
			shapes = append(shapes, Marker{
				Time: c.OpenTime, Price: z.top,
				Symbol: "square", Color: "#808080", Label: "Bear OB Mitigated", Position: "above",
			})
		default:
			if !z.touched && c.High.GreaterThanOrEqual(z.bottom) {
				z.touched = true
				shapes = append(shapes, Marker{
					Time: c.OpenTime, Price: z.bottom,
					Symbol: "circle", Color: "#e05252", Label: "Bear OB Touch", Position: "above",
				})
			}
			keptBears = append(keptBears, z)
		}
	}
	st.bears = keptBears

	// Volume pivot at the window center.
	if len(st.candles) == winSize {
		center := st.candles[lb]
		pivot := true
		for i, cc := range st.candles {
			if i == lb {
				continue
			}
			if !center.Volume.GreaterThan(cc.Volume) {
				pivot = false
				break
			}
		}
		if pivot {
			hl2 := center.High.Add(center.Low).Div(decimal.NewFromInt(2))
			strength := center.Volume
			if avg := st.vols.avg(); !avg.IsZero() {
				strength = center.Volume.Div(avg)
			}

			if osc.IsNegative() {
				// Pivot inside a downtrend: demand forms under it.
				z := obZone{top: hl2, bottom: center.Low, strength: strength, created: center.OpenTime}
				st.bulls = append(st.bulls, z)
				if len(st.bulls) > maxZones {
					st.bulls = st.bulls[1:]
				}
				vs := strength
				shapes = append(shapes, Box{
					Time1: center.OpenTime, Time2: c.CloseTime,
					Price1: z.bottom, Price2: z.top,
					Color: "#52e07a", Label: "Bull OB",
					VolumeStrength: &vs,
				})
			} else if osc.IsPositive() {
				z := obZone{top: center.High, bottom: hl2, strength: strength, created: center.OpenTime}
				st.bears = append(st.bears, z)
				if len(st.bears) > maxZones {
					st.bears = st.bears[1:]
				}
				vs := strength
				shapes = append(shapes, Box{
					Time1: center.OpenTime, Time2: c.CloseTime,
					Price1: z.bottom, Price2: z.top,
					Color: "#e05252", Label: "Bear OB",
					VolumeStrength: &vs,
				})
			}
		}
	}

	return Update{
		Time: c.OpenTime,
		Values: map[string]decimal.Decimal{
			"oscillator": osc,
			"bullZones":  decimal.NewFromInt(int64(len(st.bulls))),
			"bearZones":  decimal.NewFromInt(int64(len(st.bears))),
		},
		Shapes: shapes,
	}, st, nil
}

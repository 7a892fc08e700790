package indicator

import (
	"time"

	"github.com/shopspring/decimal"

	"marketflow/internal/model"
)

// Pivot length for internal (minor) structure; swing structure is
// configurable via params.
const smcInternalLength = 5

// smcATRLength is the true-range lookback behind the order-block filter.
const smcATRLength = 14

// smcMaxFVGs bounds the tracked fair value gaps.
const smcMaxFVGs = 20

// SMC tracks market structure at two pivot lengths: configurable swing
// structure and fixed 5-bar internal structure. Each tracker raises BOS
// (continuation) and CHoCH (reversal) events when close crosses its last
// confirmed pivot; a structure break leaves an order block at the opposing
// extreme of the leg when that bar passes the ATR filter. Fair value gaps
// are tracked until price fills through them, and trailing extremes carve
// the dealing range into premium, equilibrium and discount zones.
type SMC struct{}

type swing struct {
	price decimal.Decimal
	time  time.Time
	set   bool
}

type structTracker struct {
	length    int
	swingHigh swing
	swingLow  swing
	trend     int // 1 bullish, -1 bearish, 0 undecided
}

type fvgZone struct {
	top     decimal.Decimal
	bottom  decimal.Decimal
	bullish bool
	created time.Time
}

type smcState struct {
	candles  []model.Candle
	swingT   structTracker
	internal structTracker

	tr        *window
	prevClose decimal.Decimal
	haveClose bool

	fvgs []fvgZone

	trailingHigh  decimal.Decimal
	trailingLow   decimal.Decimal
	trailingSince time.Time
	haveTrailing  bool
}

func (SMC) Meta() Meta {
	return Meta{
		ID:             "smc",
		Name:           "Smart Money Concepts",
		RequiredData:   []model.DataType{model.DataTypeKline},
		SupportsShapes: true,
		Series: map[string]SeriesStyle{
			"trend":         {DisplayName: "Swing Trend", Kind: "line", Color: "#c9a227", Pane: "separate", PaneOrder: 1},
			"internalTrend": {DisplayName: "Internal Trend", Kind: "line", Color: "#808080", Pane: "separate", PaneOrder: 1},
			"fvgs":          {DisplayName: "Open FVGs", Kind: "line", Color: "#52e07a", Pane: "separate", PaneOrder: 2},
		},
	}
}

func (SMC) Params() []ParamSpec {
	return []ParamSpec{
		{Name: "swingLength", Kind: ParamInt, Default: 50, Min: intPtr(smcInternalLength + 1), Max: intPtr(200)},
	}
}

func (SMC) MinCandles(p Params) int { return 2*p.Int("swingLength") + 1 }

func (SMC) NewState(p Params) State {
	return &smcState{
		swingT:   structTracker{length: p.Int("swingLength")},
		internal: structTracker{length: smcInternalLength},
		tr:       newWindow(smcATRLength),
	}
}

// confirmPivots checks the tracker's pivot window against the shared candle
// buffer: the candidate sits length bars back and must strictly dominate
// every neighbour on both sides.
func (tk *structTracker) confirmPivots(candles []model.Candle) {
	winSize := 2*tk.length + 1
	if len(candles) < winSize {
		return
	}
	win := candles[len(candles)-winSize:]
	center := win[tk.length]
	isHigh, isLow := true, true
	for i, cc := range win {
		if i == tk.length {
			continue
		}
		if !center.High.GreaterThan(cc.High) {
			isHigh = false
		}
		if !center.Low.LessThan(cc.Low) {
			isLow = false
		}
	}
	if isHigh {
		tk.swingHigh = swing{price: center.High, time: center.OpenTime, set: true}
	}
	if isLow {
		tk.swingLow = swing{price: center.Low, time: center.OpenTime, set: true}
	}
}

// structureBreak tests the bar's close against the tracker's confirmed
// pivots. It returns the broken swing, the break direction, and the label
// (BOS for continuation, CHoCH for reversal). The consumed swing is unset.
func (tk *structTracker) structureBreak(c model.Candle) (sw swing, bullish bool, label string, ok bool) {
	if tk.swingHigh.set && c.Close.GreaterThan(tk.swingHigh.price) {
		label = "BOS"
		if tk.trend < 0 {
			label = "CHoCH"
		}
		tk.trend = 1
		sw = tk.swingHigh
		tk.swingHigh.set = false
		return sw, true, label, true
	}
	if tk.swingLow.set && c.Close.LessThan(tk.swingLow.price) {
		label = "BOS"
		if tk.trend > 0 {
			label = "CHoCH"
		}
		tk.trend = -1
		sw = tk.swingLow
		tk.swingLow.set = false
		return sw, false, label, true
	}
	return swing{}, false, "", false
}

func (SMC) OnCandle(c model.Candle, p Params, s State) (Update, State, error) {
	st := s.(*smcState)
	maxBuf := 2*st.swingT.length + 1

	// ATR over true range.
	tr := c.High.Sub(c.Low)
	if st.haveClose {
		if d := c.High.Sub(st.prevClose).Abs(); d.GreaterThan(tr) {
			tr = d
		}
		if d := c.Low.Sub(st.prevClose).Abs(); d.GreaterThan(tr) {
			tr = d
		}
	}
	atrReady := st.tr.full()
	atr := st.tr.avg()
	st.tr.push(tr)
	st.prevClose = c.Close
	st.haveClose = true

	var shapes []Shape

	// Open gaps close once price trades through the far edge.
	kept := st.fvgs[:0]
	for _, z := range st.fvgs {
		if z.bullish && c.Close.LessThan(z.bottom) {
			continue
		}
		if !z.bullish && c.Close.GreaterThan(z.top) {
			continue
		}
		kept = append(kept, z)
	}
	st.fvgs = kept

	// Three-bar fair value gap against the bar two back.
	if n := len(st.candles); n >= 2 {
		prev2 := st.candles[n-2]
		var z fvgZone
		found := false
		if c.Low.GreaterThan(prev2.High) {
			z = fvgZone{top: c.Low, bottom: prev2.High, bullish: true, created: prev2.OpenTime}
			found = true
		} else if c.High.LessThan(prev2.Low) {
			z = fvgZone{top: prev2.Low, bottom: c.High, bullish: false, created: prev2.OpenTime}
			found = true
		}
		if found {
			st.fvgs = append(st.fvgs, z)
			if len(st.fvgs) > smcMaxFVGs {
				st.fvgs = st.fvgs[1:]
			}
			color := "#52e07a"
			if !z.bullish {
				color = "#e05252"
			}
			shapes = append(shapes, Box{
				Time1: z.created, Time2: c.CloseTime,
				Price1: z.bottom, Price2: z.top,
				Color: color, Label: "FVG",
			})
		}
	}

	// Structure breaks against both trackers, before this bar's pivots are
	// confirmed.
	type brk struct {
		tracker *structTracker
		prefix  string
	}
	for _, b := range []brk{{&st.swingT, ""}, {&st.internal, "Internal "}} {
		sw, bullish, label, ok := b.tracker.structureBreak(c)
		if !ok {
			continue
		}
		color, position := "#52e07a", "above"
		if !bullish {
			color, position = "#e05252", "below"
		}
		shapes = append(shapes,
			Line{Time1: sw.time, Time2: c.OpenTime, Price1: sw.price, Price2: sw.price, Color: color, Style: "dashed"},
			Marker{Time: c.OpenTime, Price: sw.price, Symbol: "triangle", Color: color, Label: b.prefix + label, Position: position},
		)
		if b.tracker == &st.swingT && label == "CHoCH" {
			st.trailingHigh, st.trailingLow = c.High, c.Low
			st.trailingSince = c.OpenTime
			st.haveTrailing = true
		}
		if ob, obOK := st.orderBlockFor(sw, bullish, c, atrReady, atr); obOK {
			shapes = append(shapes, ob)
		}
	}

	st.candles = append(st.candles, c)
	if len(st.candles) > maxBuf {
		st.candles = st.candles[1:]
	}
	st.swingT.confirmPivots(st.candles)
	st.internal.confirmPivots(st.candles)

	// Dealing range from trailing extremes, refreshed every bar.
	if !st.haveTrailing {
		st.trailingHigh, st.trailingLow = c.High, c.Low
		st.trailingSince = c.OpenTime
		st.haveTrailing = true
	} else {
		if c.High.GreaterThan(st.trailingHigh) {
			st.trailingHigh = c.High
		}
		if c.Low.LessThan(st.trailingLow) {
			st.trailingLow = c.Low
		}
	}
	if st.trailingHigh.GreaterThan(st.trailingLow) {
		mid := st.trailingHigh.Add(st.trailingLow).Div(decimal.NewFromInt(2))
		band := st.trailingHigh.Sub(st.trailingLow).Mul(decimal.RequireFromString("0.025"))
		shapes = append(shapes,
			Fill{ID: "premium", Time1: st.trailingSince, Time2: c.CloseTime, Price1: mid.Add(band), Price2: st.trailingHigh, Color: "#e0525230"},
			Fill{ID: "equilibrium", Time1: st.trailingSince, Time2: c.CloseTime, Price1: mid.Sub(band), Price2: mid.Add(band), Color: "#80808030"},
			Fill{ID: "discount", Time1: st.trailingSince, Time2: c.CloseTime, Price1: st.trailingLow, Price2: mid.Sub(band), Color: "#52e07a30"},
		)
	}

	return Update{
		Time: c.OpenTime,
		Values: map[string]decimal.Decimal{
			"trend":         decimal.NewFromInt(int64(st.swingT.trend)),
			"internalTrend": decimal.NewFromInt(int64(st.internal.trend)),
			"fvgs":          decimal.NewFromInt(int64(len(st.fvgs))),
		},
		Shapes: shapes,
	}, st, nil
}

// orderBlockFor finds the opposing extreme of the leg between the broken
// pivot and the current bar. The bar qualifies as an order block only when
// its range stays under twice the ATR; wide bars are liquidity, not
// positioning.
func (st *smcState) orderBlockFor(sw swing, bullish bool, cur model.Candle, atrReady bool, atr decimal.Decimal) (Box, bool) {
	if !atrReady || atr.IsZero() {
		return Box{}, false
	}
	var extreme *model.Candle
	for i := range st.candles {
		cc := &st.candles[i]
		if !cc.OpenTime.After(sw.time) {
			continue
		}
		if extreme == nil {
			extreme = cc
			continue
		}
		if bullish && cc.Low.LessThan(extreme.Low) {
			extreme = cc
		}
		if !bullish && cc.High.GreaterThan(extreme.High) {
			extreme = cc
		}
	}
	if extreme == nil {
		return Box{}, false
	}
	if extreme.High.Sub(extreme.Low).GreaterThan(atr.Mul(decimal.NewFromInt(2))) {
		return Box{}, false
	}
	color, label := "#52e07a", "Bull OB"
	if !bullish {
		color, label = "#e05252", "Bear OB"
	}
	return Box{
		Time1: extreme.OpenTime, Time2: cur.CloseTime,
		Price1: extreme.Low, Price2: extreme.High,
		Color: color, Label: label,
	}, true
}

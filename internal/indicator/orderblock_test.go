package indicator

import (
	"testing"

	"github.com/shopspring/decimal"
)

// Walks a bullish order block through its whole lifecycle: a volume pivot
// inside a downtrend creates the demand zone, a wick touches it, a close
// below mitigates it.
func TestOrderBlock_BullLifecycle(t *testing.T) {
	ind := &OrderBlock{}
	p, err := ResolveParams(ind.Params(), Params{"pivotLookback": 1})
	if err != nil {
		t.Fatal(err)
	}
	st := ind.NewState(p)

	feed := func(openUnix int64, o, h, l, c, vol string) Update {
		t.Helper()
		upd, next, err := ind.OnCandle(candleAt(openUnix, o, h, l, c, vol), p, st)
		if err != nil {
			t.Fatalf("OnCandle: %v", err)
		}
		st = next
		return upd
	}

	// Declining closes keep the market-structure oscillator below zero.
	feed(60, "112", "113", "109", "110", "10")
	// Volume spike: pivot high 111, pivot low 107.
	feed(120, "110", "111", "107", "108", "50")
	upd := feed(180, "108", "109", "105", "106", "10")

	if upd.Values["oscillator"].IsPositive() {
		t.Fatalf("oscillator = %s on declining closes, want negative", upd.Values["oscillator"])
	}

	var zone *Box
	for _, s := range upd.Shapes {
		if b, ok := s.(Box); ok {
			zone = &b
		}
	}
	if zone == nil {
		t.Fatal("expected a bull order block box on pivot confirmation")
	}
	// Bull zone spans pivot low to hl2: [107, (111+107)/2].
	if !zone.Price1.Equal(decimal.NewFromInt(107)) || !zone.Price2.Equal(decimal.NewFromInt(109)) {
		t.Errorf("zone = [%s, %s], want [107, 109]", zone.Price1, zone.Price2)
	}
	if zone.VolumeStrength == nil {
		t.Fatal("zone box must carry volume strength")
	}
	// Pivot volume 50 over the rolling average (10+50+10)/3.
	if got := zone.VolumeStrength.Round(2); !got.Equal(decimal.RequireFromString("2.14")) {
		t.Errorf("volume strength = %s, want 2.14", got)
	}
	if !upd.Values["bullZones"].Equal(decimal.NewFromInt(1)) {
		t.Errorf("bullZones = %s, want 1", upd.Values["bullZones"])
	}

	// Wick into the zone while closing above its bottom: touch, zone survives.
	upd = feed(240, "106", "110", "108", "110", "10")
	if !hasMarkerLabel(upd.Shapes, "Bull OB Touch") {
		t.Fatalf("expected touch marker, got %+v", upd.Shapes)
	}
	if !upd.Values["bullZones"].Equal(decimal.NewFromInt(1)) {
		t.Error("touched zone must survive")
	}

	// Close through the zone bottom: mitigated and removed.
	upd = feed(300, "110", "110", "101", "101", "10")
	if !hasMarkerLabel(upd.Shapes, "Bull OB Mitigated") {
		t.Fatalf("expected mitigation marker, got %+v", upd.Shapes)
	}
	if !upd.Values["bullZones"].Equal(decimal.Zero) {
		t.Errorf("bullZones = %s after mitigation, want 0", upd.Values["bullZones"])
	}
}

// A volume pivot inside an uptrend leaves a supply zone spanning hl2 to the
// pivot high.
func TestOrderBlock_BearZoneBounds(t *testing.T) {
	ind := &OrderBlock{}
	p, err := ResolveParams(ind.Params(), Params{"pivotLookback": 1})
	if err != nil {
		t.Fatal(err)
	}
	st := ind.NewState(p)

	candles := []struct{ o, h, l, c, vol string }{
		{"100", "103", "99", "102", "10"},
		{"104", "111", "107", "110", "50"}, // pivot high 111, pivot low 107
		{"110", "110.5", "108", "110", "10"},
	}
	var upd Update
	base := int64(60)
	for _, cc := range candles {
		var next State
		var err error
		upd, next, err = ind.OnCandle(candleAt(base, cc.o, cc.h, cc.l, cc.c, cc.vol), p, st)
		if err != nil {
			t.Fatal(err)
		}
		st = next
		base += 60
	}

	if !upd.Values["oscillator"].IsPositive() {
		t.Fatalf("oscillator = %s on rising closes, want positive", upd.Values["oscillator"])
	}
	var zone *Box
	for _, s := range upd.Shapes {
		if b, ok := s.(Box); ok {
			zone = &b
		}
	}
	if zone == nil {
		t.Fatal("expected a bear order block box")
	}
	if !zone.Price1.Equal(decimal.NewFromInt(109)) || !zone.Price2.Equal(decimal.NewFromInt(111)) {
		t.Errorf("zone = [%s, %s], want [109, 111]", zone.Price1, zone.Price2)
	}
	if !upd.Values["bearZones"].Equal(decimal.NewFromInt(1)) {
		t.Errorf("bearZones = %s, want 1", upd.Values["bearZones"])
	}
	if !upd.Values["bullZones"].Equal(decimal.Zero) {
		t.Errorf("bullZones = %s in an uptrend, want 0", upd.Values["bullZones"])
	}
}

func TestOrderBlock_ZoneCap(t *testing.T) {
	ind := &OrderBlock{}
	p, err := ResolveParams(ind.Params(), Params{"pivotLookback": 1, "maxZones": 2})
	if err != nil {
		t.Fatal(err)
	}
	st := ind.NewState(p)

	var last Update
	// Declining closes with a volume spike every other bar. Lows sit far
	// below the closes so no zone ever mitigates.
	base := int64(60)
	for i := 0; i < 8; i++ {
		vol := "10"
		if i%2 == 1 {
			vol = "50"
		}
		close := decimal.NewFromInt(int64(100 - i))
		high := close.Add(decimal.NewFromInt(1))
		var next State
		var err error
		last, next, err = ind.OnCandle(candleAt(base, close.String(), high.String(), "50", close.String(), vol), p, st)
		if err != nil {
			t.Fatal(err)
		}
		st = next
		base += 60
	}

	if got := last.Values["bullZones"]; !got.Equal(decimal.NewFromInt(2)) {
		t.Errorf("bullZones = %s, cap is 2", got)
	}
}

func hasMarkerLabel(shapes []Shape, label string) bool {
	for _, s := range shapes {
		if m, ok := s.(Marker); ok && m.Label == label {
			return true
		}
	}
	return false
}

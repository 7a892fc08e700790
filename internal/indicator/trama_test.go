package indicator

import (
	"testing"

	"github.com/shopspring/decimal"
)

// The extremes feeding the trend signal come from the ring of source
// prices, so wick-only extremes never register.
func TestTRAMA_WickExtremesIgnored(t *testing.T) {
	candles := []struct{ h, c string }{
		{"110", "100"},
		{"120", "100"},
		{"130", "100"},
		{"140", "100"},
	}
	p, err := ResolveParams((&TRAMA{}).Params(), Params{"length": 3})
	if err != nil {
		t.Fatal(err)
	}
	ind := &TRAMA{}
	st := ind.NewState(p)
	var last Update
	for i, bar := range candles {
		cd := candleAt(int64(60*(i+1)), "100", bar.h, "100", bar.c, "10")
		upd, next, err := ind.OnCandle(cd, p, st)
		if err != nil {
			t.Fatal(err)
		}
		st, last = next, upd
	}

	// Flat closes under rising highs: no new source extreme, TC stays zero
	// and the average never leaves the first close.
	if !last.Values["tc"].Equal(decimal.Zero) {
		t.Errorf("tc = %s, want 0 with flat closes", last.Values["tc"])
	}
	if !last.Values["trama"].Equal(decimal.NewFromInt(100)) {
		t.Errorf("trama = %s, want 100", last.Values["trama"])
	}
}

func TestTRAMA_TrendingValues(t *testing.T) {
	p, err := ResolveParams((&TRAMA{}).Params(), Params{"length": 2})
	if err != nil {
		t.Fatal(err)
	}
	ind := &TRAMA{}
	st := ind.NewState(p)

	step := func(openUnix int64, close string) Update {
		t.Helper()
		upd, next, err := ind.OnCandle(flatCandleAt(openUnix, close), p, st)
		if err != nil {
			t.Fatal(err)
		}
		st = next
		return upd
	}

	step(60, "1") // seeds AMA at 1, below warm-up

	// Bar 2: signals [0,1], TC = 0.25, AMA = 1 + (2-1)*0.25.
	upd := step(120, "2")
	if !upd.Values["trama"].Equal(decimal.RequireFromString("1.25")) {
		t.Fatalf("bar2 trama = %s, want 1.25", upd.Values["trama"])
	}

	// From bar 3 on the signal window is [1,1]: TC = 1, AMA snaps to price.
	for i, close := range []string{"3", "4", "5"} {
		upd = step(int64(60*(i+3)), close)
		want := decimal.RequireFromString(close)
		if !upd.Values["trama"].Equal(want) {
			t.Errorf("bar%d trama = %s, want %s", i+3, upd.Values["trama"], want)
		}
		if !upd.Values["tc"].Equal(decimal.NewFromInt(1)) {
			t.Errorf("bar%d tc = %s, want 1", i+3, upd.Values["tc"])
		}
	}
}

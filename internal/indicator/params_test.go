package indicator

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestResolveParams_Defaults(t *testing.T) {
	specs := (&SMA{}).Params()

	p, err := ResolveParams(specs, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if p.Int("length") != 14 {
		t.Errorf("default length = %d, want 14", p.Int("length"))
	}
	if p.String("source") != "close" {
		t.Errorf("default source = %q, want close", p.String("source"))
	}
}

func TestResolveParams_Overrides(t *testing.T) {
	specs := (&SMA{}).Params()

	p, err := ResolveParams(specs, Params{"length": 50, "source": "hl2"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if p.Int("length") != 50 || p.String("source") != "hl2" {
		t.Errorf("overrides not applied: %+v", p)
	}

	// JSON-decoded numbers arrive as float64.
	p, err = ResolveParams(specs, Params{"length": float64(21)})
	if err != nil {
		t.Fatalf("resolve float64 int: %v", err)
	}
	if p.Int("length") != 21 {
		t.Errorf("length = %d, want 21", p.Int("length"))
	}
}

func TestResolveParams_Rejections(t *testing.T) {
	specs := (&SMA{}).Params()

	cases := []Params{
		{"bogus": 1},                  // unknown name
		{"length": "ten"},             // wrong kind
		{"length": 0},                 // below min
		{"length": 10_000},            // above max
		{"source": "median"},          // not a valid source
		{"length": float64(2.5)},      // non-integral
	}
	for i, p := range cases {
		if _, err := ResolveParams(specs, p); err == nil {
			t.Errorf("case %d: expected rejection for %v", i, p)
		}
	}
}

func TestResolveParams_DecimalParam(t *testing.T) {
	specs := (&Absorption{}).Params()

	p, err := ResolveParams(specs, Params{"volumeFactor": "2.5"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !p.Decimal("volumeFactor").Equal(decimal.RequireFromString("2.5")) {
		t.Errorf("volumeFactor = %s", p.Decimal("volumeFactor"))
	}
}

func TestSourceValue(t *testing.T) {
	o := decimal.NewFromInt(10)
	h := decimal.NewFromInt(20)
	l := decimal.NewFromInt(5)
	c := decimal.NewFromInt(15)

	cases := []struct {
		src  string
		want string
	}{
		{"close", "15"},
		{"open", "10"},
		{"high", "20"},
		{"low", "5"},
		{"hl2", "12.5"},
		{"hlc3", "13.3333333333333333"},
		{"ohlc4", "12.5"},
	}
	for _, tc := range cases {
		got := sourceValue(tc.src, o, h, l, c)
		want := decimal.RequireFromString(tc.want)
		if !got.Sub(want).Abs().LessThan(decimal.RequireFromString("0.0000000001")) {
			t.Errorf("sourceValue(%s) = %s, want %s", tc.src, got, tc.want)
		}
	}
}

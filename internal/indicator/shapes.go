package indicator

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Shape is a chart annotation emitted by an indicator. DedupKey identifies
// a shape across recomputation: replaying history must not duplicate
// annotations already sent.
type Shape interface {
	Kind() string
	DedupKey() string
}

// Box is a rectangular zone between two times and two prices.
type Box struct {
	Time1  time.Time       `json:"time1"`
	Time2  time.Time       `json:"time2"`
	Price1 decimal.Decimal `json:"price1"`
	Price2 decimal.Decimal `json:"price2"`
	Color  string          `json:"color,omitempty"`
	Label  string          `json:"label,omitempty"`

	// VolumeStrength carries the pivot-volume ratio for order-block zones.
	VolumeStrength *decimal.Decimal `json:"volumeStrength,omitempty"`
}

func (b Box) Kind() string { return "box" }

// A box stretched to the right by later bars is still the same zone, so
// Time2 stays out of the identity.
func (b Box) DedupKey() string {
	return fmt.Sprintf("box:%d:%s:%s", b.Time1.Unix(), b.Price1, b.Price2)
}

// Line is a segment between two chart points.
type Line struct {
	Time1  time.Time       `json:"time1"`
	Time2  time.Time       `json:"time2"`
	Price1 decimal.Decimal `json:"price1"`
	Price2 decimal.Decimal `json:"price2"`
	Color  string          `json:"color,omitempty"`
	Style  string          `json:"style,omitempty"` // solid, dashed, dotted
}

func (l Line) Kind() string { return "line" }

func (l Line) DedupKey() string {
	return fmt.Sprintf("line:%d:%d:%s:%s", l.Time1.Unix(), l.Time2.Unix(), l.Price1, l.Price2)
}

// Marker is a point annotation attached to a candle.
type Marker struct {
	Time     time.Time       `json:"time"`
	Price    decimal.Decimal `json:"price"`
	Symbol   string          `json:"symbol,omitempty"` // circle, square, diamond
	Color    string          `json:"color,omitempty"`
	Label    string          `json:"label,omitempty"`
	Position string          `json:"position,omitempty"` // above, below
}

func (m Marker) Kind() string { return "marker" }

func (m Marker) DedupKey() string {
	return fmt.Sprintf("marker:%d:%s:%s:%s", m.Time.Unix(), m.Price, m.Symbol, m.Label)
}

// Arrow is a directional point annotation.
type Arrow struct {
	Time  time.Time       `json:"time"`
	Price decimal.Decimal `json:"price"`
	Up    bool            `json:"up"`
	Label string          `json:"label,omitempty"`
	Color string          `json:"color,omitempty"`
}

func (a Arrow) Kind() string { return "arrow" }

// Arrows at the same bar with the same direction and text are one logical
// annotation even when anchored at slightly different prices.
func (a Arrow) DedupKey() string {
	return fmt.Sprintf("arrow:%d:%t:%s", a.Time.Unix(), a.Up, a.Label)
}

// Fill is a shaded region between two price levels over a time span. ID
// names the logical region ("premium", "discount"); an instance keeps one
// fill per ID, updated in place by the client.
type Fill struct {
	ID     string          `json:"id,omitempty"`
	Time1  time.Time       `json:"time1"`
	Time2  time.Time       `json:"time2"`
	Price1 decimal.Decimal `json:"price1"`
	Price2 decimal.Decimal `json:"price2"`
	Color  string          `json:"color,omitempty"`
}

func (f Fill) Kind() string { return "fill" }

func (f Fill) DedupKey() string {
	return "fill:" + f.ID
}

// ShapeSet tracks which shapes an instance has already emitted. Not
// goroutine-safe; owned by the instance mailbox.
type ShapeSet struct {
	seen map[string]struct{}
}

// NewShapeSet creates an empty dedup set.
func NewShapeSet() *ShapeSet {
	return &ShapeSet{seen: make(map[string]struct{}, 64)}
}

// Filter returns only the shapes not seen before and records them. Fills
// always pass: the client replaces the fill with the matching ID, so
// re-emitting one moves it rather than duplicating it.
func (s *ShapeSet) Filter(shapes []Shape) []Shape {
	if len(shapes) == 0 {
		return nil
	}
	out := make([]Shape, 0, len(shapes))
	for _, sh := range shapes {
		key := sh.DedupKey()
		if _, dup := s.seen[key]; dup && sh.Kind() != "fill" {
			continue
		}
		s.seen[key] = struct{}{}
		out = append(out, sh)
	}
	return out
}

// Len returns the number of distinct shapes recorded.
func (s *ShapeSet) Len() int { return len(s.seen) }

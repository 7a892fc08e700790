// Package indicator provides the technical-indicator framework: parameter
// schemas, the computation lifecycle, chart shapes with deduplication, and
// the instance manager that runs each indicator on its own serialized
// mailbox.
//
// Indicator implementations are pure with respect to their State: every
// handler receives the current state and returns the next one. The
// dispatcher commits the returned state only when the handler succeeds, so
// a failing computation never corrupts an instance.
package indicator

import (
	"time"

	"github.com/shopspring/decimal"

	"marketflow/internal/model"
)

// SeriesStyle is the visualization config of one output series.
type SeriesStyle struct {
	DisplayName string `json:"displayName"`
	Kind        string `json:"kind"` // line, histogram, area
	Color       string `json:"color,omitempty"`
	Width       int    `json:"width,omitempty"`
	Style       string `json:"style,omitempty"` // solid, dashed, dotted
	Pane        string `json:"pane"`            // "price" or "separate"
	PaneOrder   int    `json:"paneOrder,omitempty"`
}

// Meta describes an indicator type for discovery, routing and rendering.
type Meta struct {
	ID           string           `json:"id"`   // e.g. "sma"
	Name         string           `json:"name"` // e.g. "Simple Moving Average"
	Description  string           `json:"description,omitempty"`
	RequiredData []model.DataType `json:"requiredData"`

	// Series maps each output value name to how it is drawn.
	Series map[string]SeriesStyle `json:"series,omitempty"`

	// SupportsShapes marks indicators whose historical responses are
	// shape-centric rather than series-centric.
	SupportsShapes bool `json:"supportsShapes,omitempty"`
}

// State is the opaque per-instance computation state. Handlers treat it as
// immutable input and return a successor.
type State any

// Update is the output of one handler invocation: named series values plus
// any chart shapes produced. Shapes pass through per-instance deduplication
// before reaching subscribers.
type Update struct {
	InstanceKey string                     `json:"instanceKey"`
	Time        time.Time                  `json:"time"`
	Values      map[string]decimal.Decimal `json:"values,omitempty"`
	Shapes      []Shape                    `json:"shapes,omitempty"`
}

// Empty reports whether the update carries nothing worth publishing.
func (u Update) Empty() bool {
	return len(u.Values) == 0 && len(u.Shapes) == 0
}

// Indicator is one indicator type. OnCandle is invoked for every closed
// candle, both during historical replay and live.
type Indicator interface {
	Meta() Meta
	Params() []ParamSpec

	// MinCandles returns the history depth needed before values are
	// meaningful under the given parameters.
	MinCandles(p Params) int

	// NewState returns a fresh computation state.
	NewState(p Params) State

	// OnCandle folds one closed candle into the state.
	OnCandle(c model.Candle, p Params, s State) (Update, State, error)
}

// TickHandler is implemented by indicators that react to forming-candle
// price updates.
type TickHandler interface {
	OnTick(c model.Candle, p Params, s State) (Update, State, error)
}

// TradeHandler is implemented by indicators that consume the trade stream.
type TradeHandler interface {
	OnTrade(t model.Trade, p Params, s State) (Update, State, error)
}

// BookHandler is implemented by indicators that consume order-book
// snapshots.
type BookHandler interface {
	OnOrderBook(ob model.OrderBookSnapshot, p Params, s State) (Update, State, error)
}

// BookTickerHandler is implemented by indicators that consume best bid/ask
// updates.
type BookTickerHandler interface {
	OnBookTicker(bt model.BookTicker, p Params, s State) (Update, State, error)
}

// requires reports whether the indicator consumes the given data type.
func requires(m Meta, dt model.DataType) bool {
	for _, d := range m.RequiredData {
		if d == dt {
			return true
		}
	}
	return false
}

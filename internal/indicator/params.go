package indicator

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ParamKind enumerates the parameter value types an indicator can declare.
type ParamKind string

const (
	ParamInt     ParamKind = "int"
	ParamDecimal ParamKind = "decimal"
	ParamString  ParamKind = "string"
	ParamBool    ParamKind = "bool"
	ParamSource  ParamKind = "source" // candle price selector
)

// Sources lists the valid values of a ParamSource parameter.
var Sources = []string{"close", "open", "high", "low", "hl2", "hlc3", "ohlc4"}

// ParamSpec declares one configurable parameter of an indicator.
type ParamSpec struct {
	Name    string    `json:"name"`
	Kind    ParamKind `json:"kind"`
	Default any       `json:"default"`
	Min     *int      `json:"min,omitempty"`     // int params only
	Max     *int      `json:"max,omitempty"`     // int params only
	Options []string  `json:"options,omitempty"` // string enums
}

// Params holds concrete parameter values keyed by spec name.
type Params map[string]any

// Int returns the named parameter as an int, or 0 when absent.
func (p Params) Int(name string) int {
	switch v := p[name].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// Decimal returns the named parameter as a decimal, or zero when absent.
func (p Params) Decimal(name string) decimal.Decimal {
	switch v := p[name].(type) {
	case decimal.Decimal:
		return v
	case int:
		return decimal.NewFromInt(int64(v))
	case float64:
		return decimal.NewFromFloat(v)
	case string:
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	}
	return decimal.Zero
}

// String returns the named parameter as a string, or "".
func (p Params) String(name string) string {
	if v, ok := p[name].(string); ok {
		return v
	}
	return ""
}

// Bool returns the named parameter as a bool, or false.
func (p Params) Bool(name string) bool {
	if v, ok := p[name].(bool); ok {
		return v
	}
	return false
}

// ResolveParams validates the supplied values against the specs and fills
// in defaults for anything omitted. Unknown names, wrong kinds and
// out-of-range values are rejected.
func ResolveParams(specs []ParamSpec, supplied Params) (Params, error) {
	byName := make(map[string]ParamSpec, len(specs))
	for _, s := range specs {
		byName[s.Name] = s
	}

	for name := range supplied {
		if _, ok := byName[name]; !ok {
			return nil, fmt.Errorf("indicator: unknown parameter %q", name)
		}
	}

	out := make(Params, len(specs))
	for _, spec := range specs {
		v, ok := supplied[spec.Name]
		if !ok {
			out[spec.Name] = spec.Default
			continue
		}
		checked, err := checkParam(spec, v)
		if err != nil {
			return nil, err
		}
		out[spec.Name] = checked
	}
	return out, nil
}

func checkParam(spec ParamSpec, v any) (any, error) {
	switch spec.Kind {
	case ParamInt:
		n, ok := asInt(v)
		if !ok {
			return nil, fmt.Errorf("indicator: parameter %q: expected int, got %T", spec.Name, v)
		}
		if spec.Min != nil && n < *spec.Min {
			return nil, fmt.Errorf("indicator: parameter %q: %d below minimum %d", spec.Name, n, *spec.Min)
		}
		if spec.Max != nil && n > *spec.Max {
			return nil, fmt.Errorf("indicator: parameter %q: %d above maximum %d", spec.Name, n, *spec.Max)
		}
		return n, nil

	case ParamDecimal:
		switch d := v.(type) {
		case decimal.Decimal:
			return d, nil
		case int:
			return decimal.NewFromInt(int64(d)), nil
		case float64:
			return decimal.NewFromFloat(d), nil
		case string:
			dd, err := decimal.NewFromString(d)
			if err != nil {
				return nil, fmt.Errorf("indicator: parameter %q: %w", spec.Name, err)
			}
			return dd, nil
		}
		return nil, fmt.Errorf("indicator: parameter %q: expected decimal, got %T", spec.Name, v)

	case ParamString, ParamSource:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("indicator: parameter %q: expected string, got %T", spec.Name, v)
		}
		options := spec.Options
		if spec.Kind == ParamSource && len(options) == 0 {
			options = Sources
		}
		if len(options) > 0 {
			for _, o := range options {
				if s == o {
					return s, nil
				}
			}
			return nil, fmt.Errorf("indicator: parameter %q: %q not in %v", spec.Name, s, options)
		}
		return s, nil

	case ParamBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("indicator: parameter %q: expected bool, got %T", spec.Name, v)
		}
		return b, nil
	}
	return nil, fmt.Errorf("indicator: parameter %q: unknown kind %q", spec.Name, spec.Kind)
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	}
	return 0, false
}

// intPtr is a convenience for ParamSpec bounds.
func intPtr(n int) *int { return &n }

// sourceValue extracts the selected price from a candle.
func sourceValue(src string, o, h, l, c decimal.Decimal) decimal.Decimal {
	two := decimal.NewFromInt(2)
	three := decimal.NewFromInt(3)
	four := decimal.NewFromInt(4)
	switch src {
	case "open":
		return o
	case "high":
		return h
	case "low":
		return l
	case "hl2":
		return h.Add(l).Div(two)
	case "hlc3":
		return h.Add(l).Add(c).Div(three)
	case "ohlc4":
		return o.Add(h).Add(l).Add(c).Div(four)
	default:
		return c
	}
}

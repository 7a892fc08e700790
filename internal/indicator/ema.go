package indicator

import "github.com/shopspring/decimal"

// ema is an incremental exponential moving average in exact decimals.
type ema struct {
	alpha decimal.Decimal
	value decimal.Decimal
	count int
}

func newEMA(period int) *ema {
	return &ema{
		alpha: decimal.NewFromInt(2).Div(decimal.NewFromInt(int64(period) + 1)),
	}
}

func (e *ema) update(v decimal.Decimal) decimal.Decimal {
	e.count++
	if e.count == 1 {
		e.value = v
		return e.value
	}
	// value += alpha * (v - value)
	e.value = e.value.Add(v.Sub(e.value).Mul(e.alpha))
	return e.value
}

// window is a bounded FIFO of decimals with rolling aggregates.
type window struct {
	vals []decimal.Decimal
	size int
	sum  decimal.Decimal
}

func newWindow(size int) *window {
	return &window{vals: make([]decimal.Decimal, 0, size), size: size}
}

func (w *window) push(v decimal.Decimal) {
	w.vals = append(w.vals, v)
	w.sum = w.sum.Add(v)
	if len(w.vals) > w.size {
		w.sum = w.sum.Sub(w.vals[0])
		w.vals = w.vals[1:]
	}
}

func (w *window) full() bool { return len(w.vals) >= w.size }
func (w *window) len() int   { return len(w.vals) }

func (w *window) avg() decimal.Decimal {
	if len(w.vals) == 0 {
		return decimal.Zero
	}
	return w.sum.Div(decimal.NewFromInt(int64(len(w.vals))))
}

func (w *window) max() decimal.Decimal {
	if len(w.vals) == 0 {
		return decimal.Zero
	}
	m := w.vals[0]
	for _, v := range w.vals[1:] {
		if v.GreaterThan(m) {
			m = v
		}
	}
	return m
}

func (w *window) min() decimal.Decimal {
	if len(w.vals) == 0 {
		return decimal.Zero
	}
	m := w.vals[0]
	for _, v := range w.vals[1:] {
		if v.LessThan(m) {
			m = v
		}
	}
	return m
}

// at returns the i-th oldest value.
func (w *window) at(i int) decimal.Decimal { return w.vals[i] }

// last returns the newest value.
func (w *window) last() decimal.Decimal { return w.vals[len(w.vals)-1] }

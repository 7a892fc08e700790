// Package history holds the canonical in-memory candlestick history.
// One bounded, time-ordered series is kept per (provider, symbol, interval)
// key. All mutation happens on the ingress path; readers get copied slices.
package history

import (
	"log"
	"sync"
	"time"

	"marketflow/internal/model"
)

// AddResult describes what Add did with a candle.
type AddResult int

const (
	AddAppended AddResult = iota // candle extended the series by one step
	AddReplaced                  // candle revised the latest bar in place
	AddGap                       // candle appended but left missing bars behind it
	AddDropped                   // candle was late or out of order
)

// Gap records a range of missing candle open-times detected on insertion.
type Gap struct {
	Key   string
	Start time.Time // first missing open-time
	End   time.Time // last missing open-time
}

// BackfillFunc is invoked asynchronously when a gap is detected, so the
// owning provider can fetch the missing range over REST.
type BackfillFunc func(provider, symbol, interval string, start, end time.Time)

// series is the bounded ring of closed candles for one key, newest last.
type series struct {
	candles []model.Candle
}

// Store is the process-wide candlestick history, keyed by
// "provider:symbol:interval". Single writer per key (the ingress goroutine);
// concurrent readers receive copies.
type Store struct {
	mu     sync.RWMutex
	data   map[string]*series
	bound  int
	gaps   []Gap
	gapCap int

	// OnGap is called (outside the store lock) when Add detects a gap.
	OnGap BackfillFunc
}

// New creates a Store retaining at most bound candles per key.
func New(bound int) *Store {
	if bound <= 0 {
		bound = 500
	}
	return &Store{
		data:   make(map[string]*series, 64),
		bound:  bound,
		gapCap: 100,
	}
}

// Add inserts a closed candle, keeping open-times strictly increasing per key.
// Same open-time as the latest bar replaces it (in-bar revision); one interval
// step ahead appends; further ahead records a gap and appends; behind drops.
func (s *Store) Add(c model.Candle) AddResult {
	step, err := model.IntervalDuration(c.Interval)
	if err != nil {
		log.Printf("[history] dropping candle with bad interval %q: %v", c.Interval, err)
		return AddDropped
	}
	if err := c.Validate(); err != nil {
		log.Printf("[history] dropping invalid candle %s: %v", c.Key(), err)
		return AddDropped
	}

	key := c.Key()
	var gap *Gap

	s.mu.Lock()
	ser, ok := s.data[key]
	if !ok {
		ser = &series{candles: make([]model.Candle, 0, s.bound)}
		s.data[key] = ser
	}

	result := AddAppended
	if n := len(ser.candles); n > 0 {
		last := ser.candles[n-1].OpenTime
		switch {
		case c.OpenTime.Equal(last):
			ser.candles[n-1] = c
			s.mu.Unlock()
			return AddReplaced
		case !c.OpenTime.After(last):
			s.mu.Unlock()
			return AddDropped
		case c.OpenTime.After(last.Add(step)):
			g := Gap{Key: key, Start: last.Add(step), End: c.OpenTime.Add(-step)}
			s.gaps = append(s.gaps, g)
			if len(s.gaps) > s.gapCap {
				s.gaps = s.gaps[len(s.gaps)-s.gapCap:]
			}
			gap = &g
			result = AddGap
		}
	}

	ser.candles = append(ser.candles, c)
	if len(ser.candles) > s.bound {
		// FIFO eviction by open-time
		ser.candles = ser.candles[len(ser.candles)-s.bound:]
	}
	s.mu.Unlock()

	if gap != nil {
		log.Printf("[history] gap on %s: %v .. %v", key, gap.Start, gap.End)
		if s.OnGap != nil {
			go s.OnGap(c.Provider, c.Symbol, c.Interval, gap.Start, gap.End)
		}
	}
	return result
}

// Bound returns the per-key retention limit.
func (s *Store) Bound() int { return s.bound }

// LastN returns up to n most recent candles for the key, oldest first.
// The returned slice is a copy and safe to retain.
func (s *Store) LastN(provider, symbol, interval string, n int) []model.Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ser, ok := s.data[provider+":"+symbol+":"+interval]
	if !ok || n <= 0 {
		return nil
	}
	start := len(ser.candles) - n
	if start < 0 {
		start = 0
	}
	out := make([]model.Candle, len(ser.candles)-start)
	copy(out, ser.candles[start:])
	return out
}

// HasEnoughData reports whether at least n candles are stored for the key.
func (s *Store) HasEnoughData(provider, symbol, interval string, n int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ser, ok := s.data[provider+":"+symbol+":"+interval]
	return ok && len(ser.candles) >= n
}

// Range returns candles whose open-time lies in [start, end], oldest first.
func (s *Store) Range(provider, symbol, interval string, start, end time.Time) []model.Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ser, ok := s.data[provider+":"+symbol+":"+interval]
	if !ok {
		return nil
	}
	var out []model.Candle
	for _, c := range ser.candles {
		if c.OpenTime.Before(start) || c.OpenTime.After(end) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Len returns the number of candles stored for the key.
func (s *Store) Len(provider, symbol, interval string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ser, ok := s.data[provider+":"+symbol+":"+interval]
	if !ok {
		return 0
	}
	return len(ser.candles)
}

// Gaps returns the recently recorded gaps, newest last.
func (s *Store) Gaps() []Gap {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Gap, len(s.gaps))
	copy(out, s.gaps)
	return out
}

// Keys returns all keys currently holding candles.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.data))
	for k := range s.data {
		out = append(out, k)
	}
	return out
}

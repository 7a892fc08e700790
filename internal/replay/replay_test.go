package replay

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"marketflow/internal/history"
	"marketflow/internal/model"
)

type report struct {
	state  string
	index  int
	total  int
	candle *model.Candle
}

type recorder struct {
	mu      sync.Mutex
	reports []report
}

func (r *recorder) sink(state string, index, total int, _ decimal.Decimal, c *model.Candle) {
	r.mu.Lock()
	r.reports = append(r.reports, report{state, index, total, c})
	r.mu.Unlock()
}

func (r *recorder) snapshot() []report {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]report, len(r.reports))
	copy(out, r.reports)
	return out
}

func (r *recorder) waitState(t *testing.T, state string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		for _, rep := range r.snapshot() {
			if rep.state == state {
				return
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for state %q, have %+v", state, r.snapshot())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func seeded(n int) *history.Store {
	s := history.New(500)
	for i := 0; i < n; i++ {
		open := int64(60 * (i + 1))
		price := decimal.NewFromInt(int64(100 + i))
		s.Add(model.Candle{
			Symbol:    "BTCUSDT",
			Provider:  "binance",
			Interval:  "1m",
			OpenTime:  time.Unix(open, 0).UTC(),
			CloseTime: time.Unix(open+60, 0).UTC(),
			Open:      price, High: price, Low: price, Close: price,
			Closed: true,
		})
	}
	return s
}

func TestController_PlaysToCompletion(t *testing.T) {
	c := NewController(seeded(5))
	var rec recorder

	// 6000x turns the 60s candle gaps into 10ms steps.
	if err := c.Start("sess1", "binance", "BTCUSDT", "1m", decimal.NewFromInt(6000), rec.sink); err != nil {
		t.Fatalf("start: %v", err)
	}
	rec.waitState(t, StateFinished)

	reports := rec.snapshot()
	var candles []report
	for _, rep := range reports {
		if rep.candle != nil {
			candles = append(candles, rep)
		}
	}
	if len(candles) != 5 {
		t.Fatalf("replayed %d candles, want 5", len(candles))
	}
	for i, rep := range candles {
		if rep.state != StatePlaying || rep.index != i+1 || rep.total != 5 {
			t.Errorf("report %d = %+v", i, rep)
		}
	}
	if !candles[4].candle.Close.Equal(decimal.NewFromInt(104)) {
		t.Errorf("last candle close = %s, want 104", candles[4].candle.Close)
	}

	if c.Running("sess1") {
		t.Error("finished replay must unregister itself")
	}
}

func TestController_PauseResumeStop(t *testing.T) {
	c := NewController(seeded(200))
	var rec recorder

	// Slow enough that the run is still going when we pause.
	if err := c.Start("sess1", "binance", "BTCUSDT", "1m", decimal.NewFromInt(600), rec.sink); err != nil {
		t.Fatalf("start: %v", err)
	}
	rec.waitState(t, StatePlaying)

	if err := c.Pause("sess1"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	rec.waitState(t, StatePaused)

	// While paused, no new candles arrive.
	count := func() int {
		n := 0
		for _, rep := range rec.snapshot() {
			if rep.candle != nil {
				n++
			}
		}
		return n
	}
	before := count()
	time.Sleep(150 * time.Millisecond)
	if after := count(); after > before+1 {
		t.Errorf("paused replay emitted %d candles", after-before)
	}

	if err := c.Resume("sess1"); err != nil {
		t.Fatalf("resume: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for count() <= before {
		if time.Now().After(deadline) {
			t.Fatal("resume produced no further candles")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := c.SetSpeed("sess1", decimal.NewFromInt(100000)); err != nil {
		t.Fatalf("set speed: %v", err)
	}
	if err := c.Stop("sess1"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if c.Running("sess1") {
		t.Error("stopped replay still registered")
	}
}

func TestController_Rejections(t *testing.T) {
	c := NewController(seeded(3))
	var rec recorder
	one := decimal.NewFromInt(1)

	if err := c.Start("s", "binance", "BTCUSDT", "1m", decimal.Zero, rec.sink); err != ErrBadSpeed {
		t.Errorf("zero speed: %v, want ErrBadSpeed", err)
	}
	if err := c.Start("s", "binance", "ETHUSDT", "1m", one, rec.sink); err != ErrNoData {
		t.Errorf("unknown series: %v, want ErrNoData", err)
	}
	if err := c.Pause("s"); err != ErrNotRunning {
		t.Errorf("pause without run: %v, want ErrNotRunning", err)
	}

	if err := c.Start("s", "binance", "BTCUSDT", "1m", one, rec.sink); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.Start("s", "binance", "BTCUSDT", "1m", one, rec.sink); err != ErrAlreadyRunning {
		t.Errorf("double start: %v, want ErrAlreadyRunning", err)
	}
	c.StopAll()
	if c.Running("s") {
		t.Error("StopAll left a replay registered")
	}
}

// Package replay plays stored candles back at a configurable speed
// multiplier. Each replay belongs to one owner (typically a gateway
// session) and can be paused, resumed, re-speeded, and stopped.
package replay

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"marketflow/internal/history"
	"marketflow/internal/model"
)

// Replay states carried on every progress report.
const (
	StatePlaying  = "playing"
	StatePaused   = "paused"
	StateStopped  = "stopped"
	StateFinished = "finished"
)

// maxStep caps the simulated gap between candles so sparse history does
// not stall playback.
const maxStep = 5 * time.Second

// Sink receives every replay progress report. c is nil for terminal
// reports that carry no candle.
type Sink func(state string, index, total int, speed decimal.Decimal, c *model.Candle)

var (
	ErrAlreadyRunning = errors.New("replay: already running for this owner")
	ErrNotRunning     = errors.New("replay: no replay running for this owner")
	ErrNoData         = errors.New("replay: no stored candles for that series")
	ErrBadSpeed       = errors.New("replay: speed must be positive")
)

type command struct {
	pause bool
	play  bool
	speed decimal.Decimal
}

type run struct {
	owner   string
	candles []model.Candle
	sink    Sink

	ctrl chan command
	quit chan struct{}
	done chan struct{}
}

// Controller manages at most one replay per owner.
type Controller struct {
	hist *history.Store

	mu   sync.Mutex
	runs map[string]*run
}

func NewController(hist *history.Store) *Controller {
	return &Controller{hist: hist, runs: make(map[string]*run)}
}

// Start begins a replay of the stored series for owner. speed 1 is
// real-time, 10 is ten times faster.
func (c *Controller) Start(owner, provider, symbol, interval string, speed decimal.Decimal, sink Sink) error {
	if !speed.IsPositive() {
		return ErrBadSpeed
	}
	candles := c.hist.LastN(provider, symbol, interval, c.hist.Bound())
	if len(candles) == 0 {
		return ErrNoData
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.runs[owner]; exists {
		return ErrAlreadyRunning
	}

	r := &run{
		owner:   owner,
		candles: candles,
		sink:    sink,
		ctrl:    make(chan command, 4),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	c.runs[owner] = r
	go c.play(r, speed)

	log.Printf("[replay] %s: started %s:%s:%s, %d candles at %sx",
		owner, provider, symbol, interval, len(candles), speed)
	return nil
}

// Pause suspends playback; Resume continues it.
func (c *Controller) Pause(owner string) error { return c.send(owner, command{pause: true}) }

func (c *Controller) Resume(owner string) error { return c.send(owner, command{play: true}) }

// SetSpeed changes the playback multiplier mid-run.
func (c *Controller) SetSpeed(owner string, speed decimal.Decimal) error {
	if !speed.IsPositive() {
		return ErrBadSpeed
	}
	return c.send(owner, command{speed: speed})
}

// Stop terminates the owner's replay and waits for its goroutine.
func (c *Controller) Stop(owner string) error {
	c.mu.Lock()
	r, ok := c.runs[owner]
	if ok {
		delete(c.runs, owner)
	}
	c.mu.Unlock()
	if !ok {
		return ErrNotRunning
	}
	close(r.quit)
	<-r.done
	return nil
}

// StopAll terminates every running replay.
func (c *Controller) StopAll() {
	c.mu.Lock()
	runs := c.runs
	c.runs = make(map[string]*run)
	c.mu.Unlock()
	for _, r := range runs {
		close(r.quit)
		<-r.done
	}
}

// Running reports whether the owner has an active replay.
func (c *Controller) Running(owner string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.runs[owner]
	return ok
}

func (c *Controller) send(owner string, cmd command) error {
	c.mu.Lock()
	r, ok := c.runs[owner]
	c.mu.Unlock()
	if !ok {
		return ErrNotRunning
	}
	select {
	case r.ctrl <- cmd:
		return nil
	case <-r.quit:
		return ErrNotRunning
	}
}

// finish removes a run that completed on its own.
func (c *Controller) finish(r *run) {
	c.mu.Lock()
	if c.runs[r.owner] == r {
		delete(c.runs, r.owner)
	}
	c.mu.Unlock()
}

func (c *Controller) play(r *run, speed decimal.Decimal) {
	defer close(r.done)

	total := len(r.candles)
	playing := true
	timer := time.NewTimer(0)
	defer timer.Stop()

	for idx := 0; idx < total; {
		if !playing {
			select {
			case <-r.quit:
				r.sink(StateStopped, idx, total, speed, nil)
				return
			case cmd := <-r.ctrl:
				playing, speed = applyCommand(cmd, playing, speed)
				if playing {
					r.sink(StatePlaying, idx, total, speed, nil)
					timer.Reset(0)
				}
			}
			continue
		}

		select {
		case <-r.quit:
			r.sink(StateStopped, idx, total, speed, nil)
			return
		case cmd := <-r.ctrl:
			wasPlaying := playing
			playing, speed = applyCommand(cmd, playing, speed)
			if wasPlaying && !playing {
				r.sink(StatePaused, idx, total, speed, nil)
			}
		case <-timer.C:
			candle := r.candles[idx]
			idx++
			r.sink(StatePlaying, idx, total, speed, &candle)
			if idx < total {
				timer.Reset(stepDelay(candle, r.candles[idx], speed))
			}
		}
	}

	r.sink(StateFinished, total, total, speed, nil)
	c.finish(r)
	log.Printf("[replay] %s: finished, %d candles", r.owner, total)
}

func applyCommand(cmd command, playing bool, speed decimal.Decimal) (bool, decimal.Decimal) {
	if cmd.pause {
		playing = false
	}
	if cmd.play {
		playing = true
	}
	if cmd.speed.IsPositive() {
		speed = cmd.speed
	}
	return playing, speed
}

// stepDelay scales the real gap between consecutive candles by the speed
// multiplier, capped at maxStep.
func stepDelay(cur, next model.Candle, speed decimal.Decimal) time.Duration {
	gap := next.OpenTime.Sub(cur.OpenTime)
	if gap <= 0 {
		return 0
	}
	scaled, _ := decimal.NewFromInt(int64(gap)).Div(speed).Float64()
	d := time.Duration(scaled)
	if d > maxStep {
		d = maxStep
	}
	if d < 0 {
		d = 0
	}
	return d
}

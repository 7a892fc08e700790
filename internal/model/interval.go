package model

import (
	"fmt"
	"strconv"
	"time"
)

// SupportedIntervals lists the kline interval labels the engine accepts,
// shortest first.
var SupportedIntervals = []string{
	"1m", "3m", "5m", "15m", "30m", "1h", "2h", "4h", "6h", "8h", "12h", "1d",
}

// IntervalDuration parses an interval label like "1m", "4h" or "1d".
func IntervalDuration(interval string) (time.Duration, error) {
	if len(interval) < 2 {
		return 0, fmt.Errorf("interval %q: too short", interval)
	}
	n, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("interval %q: bad multiplier", interval)
	}
	switch interval[len(interval)-1] {
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("interval %q: unknown unit", interval)
}

// FloorToInterval floors ts to the interval boundary (UTC).
func FloorToInterval(ts time.Time, interval time.Duration) time.Time {
	return ts.UTC().Truncate(interval)
}

package binance

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when a frame is written with no live session.
	ErrNotConnected = errors.New("binance: not connected")

	// ErrEmptyResponse marks a kline fetch that returned no rows; the REST
	// client retries it.
	ErrEmptyResponse = errors.New("binance: empty kline response")
)

// StatusError is a non-200 REST response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("binance: http status %d: %s", e.Code, e.Body)
}

// ParseError wraps a malformed wire message.
type ParseError struct {
	Stream string // event discriminator, if known
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("binance: parse %s: %v", e.Stream, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

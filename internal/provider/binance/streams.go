package binance

import "strings"

// Binance stream names are the lowercased symbol plus a stream suffix,
// e.g. "btcusdt@kline_1m".

func tickerStream(symbol string) string {
	return strings.ToLower(symbol) + "@ticker"
}

func klineStream(symbol, interval string) string {
	return strings.ToLower(symbol) + "@kline_" + interval
}

func tradeStream(symbol string) string {
	return strings.ToLower(symbol) + "@trade"
}

func aggTradeStream(symbol string) string {
	return strings.ToLower(symbol) + "@aggTrade"
}

func depthStream(symbol string) string {
	return strings.ToLower(symbol) + "@depth"
}

func bookTickerStream(symbol string) string {
	return strings.ToLower(symbol) + "@bookTicker"
}

// wsRequest is the subscription control frame Binance expects.
type wsRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

const (
	methodSubscribe   = "SUBSCRIBE"
	methodUnsubscribe = "UNSUBSCRIBE"
)

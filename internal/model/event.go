package model

// DataType discriminates the kinds of normalized market-data events.
type DataType string

const (
	DataTypeKline      DataType = "KLINE"
	DataTypeTrade      DataType = "TRADE"
	DataTypeAggTrade   DataType = "AGGREGATE_TRADE"
	DataTypeOrderBook  DataType = "ORDER_BOOK"
	DataTypeBookTicker DataType = "BOOK_TICKER"
)

// ParseDataType maps a wire string to a DataType. ok is false for unknown values.
func ParseDataType(s string) (DataType, bool) {
	switch DataType(s) {
	case DataTypeKline, DataTypeTrade, DataTypeAggTrade, DataTypeOrderBook, DataTypeBookTicker:
		return DataType(s), true
	}
	return "", false
}

// Event is a normalized market-data event emitted by a provider.
// Exactly one of the payload pointers is non-nil, matching Type.
type Event struct {
	Type     DataType
	Provider string
	Symbol   string

	Candle     *Candle
	Trade      *Trade
	OrderBook  *OrderBookSnapshot
	BookTicker *BookTicker
}

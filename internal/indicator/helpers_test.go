package indicator

import (
	"time"

	"github.com/shopspring/decimal"

	"marketflow/internal/model"
)

// candleAt builds a closed 1m BTCUSDT candle for tests.
func candleAt(openUnix int64, o, h, l, c, vol string) model.Candle {
	open := time.Unix(openUnix, 0).UTC()
	return model.Candle{
		Symbol:    "BTCUSDT",
		Provider:  "binance",
		Interval:  "1m",
		OpenTime:  open,
		CloseTime: open.Add(time.Minute),
		Open:      decimal.RequireFromString(o),
		High:      decimal.RequireFromString(h),
		Low:       decimal.RequireFromString(l),
		Close:     decimal.RequireFromString(c),
		Volume:    decimal.RequireFromString(vol),
		Closed:    true,
	}
}

// flatCandleAt builds a candle whose OHLC all sit at the close price.
func flatCandleAt(openUnix int64, close string) model.Candle {
	return candleAt(openUnix, close, close, close, close, "10")
}

// runCandles replays candles through an indicator from a fresh state and
// returns every non-empty update.
func runCandles(ind Indicator, params Params, candles []model.Candle) []Update {
	resolved, err := ResolveParams(ind.Params(), params)
	if err != nil {
		panic(err)
	}
	st := ind.NewState(resolved)
	var out []Update
	for _, c := range candles {
		upd, next, err := ind.OnCandle(c, resolved, st)
		if err != nil {
			continue
		}
		st = next
		if !upd.Empty() {
			out = append(out, upd)
		}
	}
	return out
}

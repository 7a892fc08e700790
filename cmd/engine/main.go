package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"marketflow/config"
	"marketflow/internal/bot"
	"marketflow/internal/footprint"
	"marketflow/internal/gateway"
	"marketflow/internal/history"
	"marketflow/internal/indicator"
	"marketflow/internal/logger"
	"marketflow/internal/metrics"
	"marketflow/internal/mirror"
	"marketflow/internal/model"
	"marketflow/internal/notification"
	"marketflow/internal/provider"
	"marketflow/internal/provider/binance"
	"marketflow/internal/replay"
)

func main() {
	logger.Init("engine", logger.LevelFromEnv())
	log.Println("[engine] starting...")

	cfg := config.Load()
	symbols := config.ParseList(cfg.Symbols)
	intervals := config.ParseList(cfg.Intervals)
	log.Printf("[engine] symbols=%v intervals=%v history=%d", symbols, intervals, cfg.HistoryLimit)

	// ---- Metrics & health ----
	prom := metrics.New()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, prom, health)
	metricsSrv.Start()

	// ---- Shutdown context ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Providers ----
	registry := provider.NewRegistry()
	bnc := binance.New(binance.WithMaxReconnectWait(time.Duration(cfg.ReconnectMaxSec) * time.Second))
	registry.Register(bnc)

	// ---- History store with gap backfill ----
	hist := history.New(cfg.HistoryLimit)
	hist.OnGap = func(providerName, symbol, interval string, start, end time.Time) {
		prom.HistoryGaps.Inc()
		p, ok := registry.Get(providerName)
		if !ok {
			return
		}
		fillCtx, cancelFill := context.WithTimeout(ctx, 30*time.Second)
		defer cancelFill()
		candles, err := p.HistoricalKlinesRange(fillCtx, symbol, interval, start, end)
		if err != nil {
			log.Printf("[engine] gap backfill %s:%s:%s failed: %v", providerName, symbol, interval, err)
			return
		}
		for _, c := range candles {
			hist.Add(c)
		}
		log.Printf("[engine] gap backfill %s:%s:%s: %d candles", providerName, symbol, interval, len(candles))
	}

	// ---- Footprint aggregator ----
	prints := footprint.New(cfg.HistoryLimit)

	// ---- Gateway hubs ----
	orderflowTypes := []string{
		string(model.DataTypeTrade), string(model.DataTypeAggTrade),
		string(model.DataTypeOrderBook), string(model.DataTypeBookTicker),
	}
	allTypes := append([]string{string(model.DataTypeKline)}, orderflowTypes...)
	orderflowHub := gateway.NewHub("orderflow", intervals, orderflowTypes, registry.Names)
	tradingHub := gateway.NewHub("trading", intervals, allTypes, registry.Names)
	indicatorHub := gateway.NewHub("indicators", intervals, allTypes, registry.Names)

	// ---- Optional Redis mirror (off the hot path) ----
	var mir *mirror.Mirror
	if cfg.RedisAddr != "" {
		var err error
		mir, err = mirror.New(mirror.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err != nil {
			log.Printf("[engine] WARNING: redis mirror unavailable: %v (continuing without it)", err)
		}
	}
	mirrorCh := make(chan func(), 1024)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case fn := <-mirrorCh:
				fn()
			}
		}
	}()
	mirrorAsync := func(fn func()) {
		select {
		case mirrorCh <- fn:
		default:
			prom.MirrorDrops.Inc()
		}
	}

	// ---- Indicator manager ----
	manager := indicator.NewManager(indicator.Builtins(), hist, func(upd indicator.Update) {
		prom.IndicatorUpdates.Inc()
		frame := gateway.IndicatorEnvelope(upd)
		indicatorHub.Broadcast(symbolOfKey(upd.InstanceKey), model.DataTypeKline, frame)
		if mir != nil {
			key := upd.InstanceKey
			mirrorAsync(func() { mir.PublishIndicator(ctx, key, frame) })
		}
	})
	defer manager.Close()
	manager.SetBackfill(func(providerName, symbol, interval string, need int) error {
		p, ok := registry.Get(providerName)
		if !ok {
			return fmt.Errorf("unknown provider %q", providerName)
		}
		fillCtx, cancelFill := context.WithTimeout(ctx, 30*time.Second)
		defer cancelFill()
		candles, err := p.HistoricalKlines(fillCtx, symbol, interval, need)
		if err != nil {
			return err
		}
		for _, c := range candles {
			hist.Add(c)
		}
		log.Printf("[engine] warm-up backfill %s:%s:%s: %d candles", providerName, symbol, interval, len(candles))
		return nil
	})

	// ---- Alerts ----
	var notifier notification.Notifier = notification.NewLogNotifier()
	if cfg.WebhookURL != "" {
		notifier = notification.NewWebhookNotifier(cfg.WebhookURL)
	}

	// ---- Bot: strategies -> risk -> account ----
	account := bot.NewSimAccount(cfg.AccountBalance, 5)
	riskMgr := bot.NewRiskManager(bot.DefaultRiskLimits())
	trader := bot.New(riskMgr, account, !cfg.TradingEnabled, func(o *model.Order) {
		prom.OrdersTotal.WithLabelValues(string(o.Status)).Inc()
		tradingHub.Broadcast(o.Symbol, model.DataTypeKline, gateway.OrderEnvelope(o))
		alert := notification.FromOrder(o)
		go func() {
			notifyCtx, cancelNotify := context.WithTimeout(ctx, 10*time.Second)
			defer cancelNotify()
			if err := notifier.Send(notifyCtx, alert); err != nil {
				log.Printf("[engine] alert delivery failed: %v", err)
			}
		}()
	})
	if len(symbols) > 0 && len(intervals) > 0 {
		trader.Register(bot.NewSMACrossover(bnc.Name(), symbols[0], intervals[0], 9, 21, decimal.NewFromInt(1)))
	}

	// ---- Replay controller on the trading endpoint ----
	replayCtrl := replay.NewController(hist)
	defer replayCtrl.StopAll()
	tradingHub.SetControl(replayControl(replayCtrl))
	tradingHub.SetOnClose(func(sessionID string) {
		if replayCtrl.Running(sessionID) {
			replayCtrl.Stop(sessionID)
		}
	})
	indicatorHub.SetControl(indicatorControl(manager))

	// ---- Global event handler: the single fan-in ----
	registry.SetHandler(func(ev model.Event) {
		prom.EventsTotal.WithLabelValues(ev.Provider, string(ev.Type)).Inc()
		health.SetLastEventTime(time.Now())
		tradingHub.Stats().Observe(ev)
		orderflowHub.Stats().Observe(ev)

		switch ev.Type {
		case model.DataTypeKline:
			c := ev.Candle
			if err := c.Validate(); err != nil {
				prom.DroppedEvents.WithLabelValues("validation").Inc()
				log.Printf("[engine] dropping invalid candle %s:%s:%s: %v", c.Provider, c.Symbol, c.Interval, err)
				return
			}
			if res := hist.Add(*c); res != history.AddDropped {
				prom.HistoryCandles.Inc()
			}
			tradingHub.Broadcast(c.Symbol, model.DataTypeKline, gateway.CandleEnvelope(c))
			if c.Closed {
				if buckets := prints.Buckets(c.Symbol, c.Interval, c.OpenTime); len(buckets) > 0 {
					frame := gateway.FootprintEnvelope(c.Provider, c.Symbol, c.Interval, c.OpenTime, buckets)
					orderflowHub.Broadcast(c.Symbol, model.DataTypeKline, frame)
				}
				if mir != nil {
					candle := *c
					mirrorAsync(func() { mir.PublishCandle(ctx, &candle) })
				}
			}

		case model.DataTypeTrade, model.DataTypeAggTrade:
			prints.OnTrade(ev.Trade, intervals)
			tradingHub.Broadcast(ev.Symbol, ev.Type, gateway.TradeEnvelope(ev.Trade, ev.Type))
			orderflowHub.Broadcast(ev.Symbol, ev.Type, gateway.OrderFlowEnvelope(ev))

		case model.DataTypeOrderBook, model.DataTypeBookTicker:
			// Raw book events reach order-flow subscribers and instances only.
			orderflowHub.Broadcast(ev.Symbol, ev.Type, gateway.OrderFlowEnvelope(ev))
		}

		manager.OnEvent(ev)
		trader.OnEvent(ev)
	})

	// ---- Connect & subscribe ----
	connectCtx, cancelConnect := context.WithTimeout(ctx, 15*time.Second)
	if err := bnc.Connect(connectCtx); err != nil {
		log.Printf("[engine] initial connect failed: %v (reconnect loop will retry)", err)
	}
	cancelConnect()
	health.SetProviderConnected(bnc.Name(), bnc.Connected())

	for _, symbol := range symbols {
		for _, interval := range intervals {
			bnc.SubscribeKline(symbol, interval)
			backfill(ctx, bnc, hist, symbol, interval, cfg.BackfillLimit)
		}
		bnc.SubscribeTrades(symbol)
		bnc.SubscribeAggTrades(symbol)
		bnc.SubscribeBookTicker(symbol)
	}
	if len(symbols) > 0 {
		// One depth stream keeps partial-depth frames attributable.
		bnc.SubscribeDepth(symbols[0])
	}

	// ---- Periodic health & gauge refresh ----
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		var lastReconnects, lastParseErrors, lastDropped uint64
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				health.SetProviderConnected(bnc.Name(), bnc.Connected())
				health.SetSessionCount("orderflow", orderflowHub.SessionCount())
				health.SetSessionCount("trading", tradingHub.SessionCount())
				health.SetSessionCount("indicators", indicatorHub.SessionCount())
				health.SetMirrorState(mir.BreakerState())
				health.SetHistoryGaps(len(hist.Gaps()))

				prom.SessionsOpen.WithLabelValues("orderflow").Set(float64(orderflowHub.SessionCount()))
				prom.SessionsOpen.WithLabelValues("trading").Set(float64(tradingHub.SessionCount()))
				prom.SessionsOpen.WithLabelValues("indicators").Set(float64(indicatorHub.SessionCount()))
				prom.IndicatorInstances.Set(float64(len(manager.List())))
				prom.MirrorBreakerState.Set(breakerGauge(mir.BreakerState()))

				reconnects, parseErrors, dropped, _ := bnc.Stats()
				prom.WSReconnects.WithLabelValues(bnc.Name()).Add(float64(reconnects - lastReconnects))
				prom.ParseErrors.WithLabelValues(bnc.Name()).Add(float64(parseErrors - lastParseErrors))
				prom.DroppedEvents.WithLabelValues("provider").Add(float64(dropped - lastDropped))
				lastReconnects, lastParseErrors, lastDropped = reconnects, parseErrors, dropped
			}
		}
	}()

	// ---- Websocket endpoints ----
	mux := http.NewServeMux()
	mux.Handle("/ws/orderflow", orderflowHub)
	mux.Handle("/ws/trading", tradingHub)
	mux.Handle("/ws/indicators", indicatorHub)
	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	go func() {
		log.Printf("[engine] websocket server listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[engine] server error: %v", err)
		}
	}()

	<-sigCh
	log.Println("[engine] shutting down...")
	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	srv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)
	bnc.Disconnect()
	replayCtrl.StopAll()
	manager.Close()
	mir.Close()
	log.Println("[engine] bye")
}

// backfill seeds the history store from REST before live klines arrive.
func backfill(ctx context.Context, p provider.Provider, hist *history.Store, symbol, interval string, limit int) {
	fillCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	candles, err := p.HistoricalKlines(fillCtx, symbol, interval, limit)
	if err != nil {
		log.Printf("[engine] backfill %s:%s failed: %v", symbol, interval, err)
		return
	}
	for _, c := range candles {
		hist.Add(c)
	}
	log.Printf("[engine] backfilled %s:%s: %d candles", symbol, interval, len(candles))
}

// symbolOfKey extracts the symbol from "provider:symbol:interval:indicator:rand".
func symbolOfKey(key string) string {
	start := -1
	for i := 0; i < len(key); i++ {
		if key[i] != ':' {
			continue
		}
		if start < 0 {
			start = i + 1
			continue
		}
		return key[start:i]
	}
	return key
}

func breakerGauge(state string) float64 {
	switch state {
	case "open":
		return 1
	case "half-open":
		return 2
	default:
		return 0
	}
}

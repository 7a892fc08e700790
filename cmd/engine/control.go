package main

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"marketflow/internal/gateway"
	"marketflow/internal/indicator"
	"marketflow/internal/model"
	"marketflow/internal/replay"
)

// replayControl handles replay actions on the trading endpoint. Each
// session owns at most one replay; progress frames go only to it.
func replayControl(ctrl *replay.Controller) gateway.ControlFunc {
	return func(s *gateway.Session, action, reqID string, payload []byte) bool {
		switch action {
		case "replayStart":
			var req struct {
				Provider string          `json:"provider"`
				Symbol   string          `json:"symbol"`
				Interval string          `json:"interval"`
				Speed    decimal.Decimal `json:"speed"`
			}
			if err := json.Unmarshal(payload, &req); err != nil {
				s.Send(gateway.ErrorEnvelope("malformed replay request", reqID))
				return true
			}
			if req.Speed.IsZero() {
				req.Speed = decimal.NewFromInt(1)
			}
			sink := func(state string, index, total int, speed decimal.Decimal, c *model.Candle) {
				s.Send(gateway.ReplayEnvelope(state, index, total, speed, c))
			}
			if err := ctrl.Start(s.ID, req.Provider, req.Symbol, req.Interval, req.Speed, sink); err != nil {
				s.Send(gateway.ErrorEnvelope("replay: "+err.Error(), reqID))
			}
			return true

		case "replayPause":
			if err := ctrl.Pause(s.ID); err != nil {
				s.Send(gateway.ErrorEnvelope("replay: "+err.Error(), reqID))
			}
			return true

		case "replayResume":
			if err := ctrl.Resume(s.ID); err != nil {
				s.Send(gateway.ErrorEnvelope("replay: "+err.Error(), reqID))
			}
			return true

		case "replaySpeed":
			var req struct {
				Speed decimal.Decimal `json:"speed"`
			}
			if err := json.Unmarshal(payload, &req); err != nil {
				s.Send(gateway.ErrorEnvelope("malformed speed request", reqID))
				return true
			}
			if err := ctrl.SetSpeed(s.ID, req.Speed); err != nil {
				s.Send(gateway.ErrorEnvelope("replay: "+err.Error(), reqID))
			}
			return true

		case "replayStop":
			if err := ctrl.Stop(s.ID); err != nil {
				s.Send(gateway.ErrorEnvelope("replay: "+err.Error(), reqID))
			}
			return true
		}
		return false
	}
}

// indicatorControl handles instance management on the indicator endpoint.
func indicatorControl(mgr *indicator.Manager) gateway.ControlFunc {
	return func(s *gateway.Session, action, reqID string, payload []byte) bool {
		switch action {
		case "createIndicator":
			var req struct {
				Provider  string           `json:"provider"`
				Symbol    string           `json:"symbol"`
				Interval  string           `json:"interval"`
				Indicator string           `json:"indicator"`
				Params    indicator.Params `json:"params"`
			}
			if err := json.Unmarshal(payload, &req); err != nil {
				s.Send(gateway.ErrorEnvelope("malformed create request", reqID))
				return true
			}
			in, historical, err := mgr.Create(req.Provider, req.Symbol, req.Interval, req.Indicator, req.Params)
			if err != nil {
				s.Send(gateway.ErrorEnvelope("create indicator: "+err.Error(), reqID))
				return true
			}
			// The replayed series goes to the creating session only, in one frame.
			s.Send(gateway.HistoryEnvelope(reqID, in.Key, in.Meta(), historical))
			return true

		case "destroyIndicator":
			var req struct {
				InstanceKey string `json:"instanceKey"`
			}
			if err := json.Unmarshal(payload, &req); err != nil {
				s.Send(gateway.ErrorEnvelope("malformed destroy request", reqID))
				return true
			}
			if !mgr.Destroy(req.InstanceKey) {
				s.Send(gateway.ErrorEnvelope("unknown instance: "+req.InstanceKey, reqID))
				return true
			}
			b, _ := json.Marshal(map[string]any{
				"type":        "indicatorDestroyed",
				"reqId":       reqID,
				"instanceKey": req.InstanceKey,
			})
			s.Send(b)
			return true

		case "listIndicators":
			b, _ := json.Marshal(map[string]any{
				"type":      "indicatorList",
				"reqId":     reqID,
				"instances": mgr.List(),
			})
			s.Send(b)
			return true

		case "indicatorTypes":
			b, _ := json.Marshal(map[string]any{
				"type":  "indicatorTypes",
				"reqId": reqID,
				"types": mgr.Types(),
			})
			s.Send(b)
			return true
		}
		return false
	}
}

// Package notification delivers trading alerts (order fills, rejections,
// connection loss) to external channels.
package notification

import (
	"context"
	"log"

	"marketflow/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// FromOrder builds an alert for a simulated order outcome.
func FromOrder(o *model.Order) Alert {
	switch o.Status {
	case model.OrderStatusRejected:
		return Alert{
			Level:   AlertWarning,
			Title:   "order rejected",
			Message: string(o.Side) + " " + o.Quantity.String() + " " + o.Symbol + ": " + o.Reason,
		}
	default:
		return Alert{
			Level:   AlertInfo,
			Title:   "order " + string(o.Status),
			Message: string(o.Side) + " " + o.Quantity.String() + " " + o.Symbol + " @ " + o.Price.String(),
		}
	}
}

// LogNotifier logs alerts instead of delivering them, for development.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

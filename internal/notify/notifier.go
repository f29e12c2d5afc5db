// Package notify dispatches best-effort outbound notifications, such as
// emailing the PIX code after a payment is created. Failures are logged and
// never block the checkout flow.
package notify

import (
	"context"

	"go.uber.org/zap"
)

// PixCodeNotification carries what a customer needs to pay a pending PIX.
type PixCodeNotification struct {
	Email     string
	Name      string
	PixCode   string
	ProductID string
	Amount    float64
}

// Notifier dispatches checkout notifications.
type Notifier interface {
	SendPixCode(ctx context.Context, n PixCodeNotification) error
}

// LogNotifier records notifications to the structured log instead of sending
// them. Used until an email sender is wired in.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// SendPixCode implements Notifier.
func (n *LogNotifier) SendPixCode(_ context.Context, notification PixCodeNotification) error {
	n.logger.Info("pix code notification",
		zap.String("email", notification.Email),
		zap.String("productId", notification.ProductID),
		zap.Float64("amount", notification.Amount),
	)
	return nil
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

// SendPixCode implements Notifier.
func (NopNotifier) SendPixCode(context.Context, PixCodeNotification) error { return nil }

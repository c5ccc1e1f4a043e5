package sender

import (
	"context"

	"go.uber.org/zap/zapcore"

	"github.com/oshokin/deadman/internal/domain/liveness"
	"github.com/oshokin/deadman/internal/logger"
)

// LogSender writes notifications to the log instead of delivering them.
type LogSender struct {
	level zapcore.Level
}

// NewLogSender creates a sender whose entries are written at info level
// even when the service log level is higher.
func NewLogSender() *LogSender {
	return &LogSender{
		level: zapcore.InfoLevel,
	}
}

// Send logs the rendered message. It never fails.
func (s *LogSender) Send(ctx context.Context, n *liveness.Notification, to liveness.Recipient) error {
	msg := Compose(n, to)

	logger.FromContext(ctx).
		Desugar().
		WithOptions(logger.WithLevel(s.level)).
		Sugar().
		Infow("Notification delivered to log",
			"notification_id", msg.ID,
			"kind", msg.Kind,
			"channel", msg.Channel,
			"to", msg.To,
			"attempt", msg.Attempt,
			"subject", msg.Subject)

	return nil
}

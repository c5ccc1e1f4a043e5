package sender

import (
	"context"
	"fmt"

	"github.com/oshokin/deadman/internal/config"
	"github.com/oshokin/deadman/internal/domain/liveness"
)

// Sender is implemented by every delivery backend.
type Sender interface {
	Send(ctx context.Context, n *liveness.Notification, to liveness.Recipient) error
}

// NewFromConfig builds the sender selected by the sender settings.
func NewFromConfig(cfg config.Sender) (Sender, error) {
	switch cfg.Type {
	case config.SenderLog, "":
		return NewLogSender(), nil
	case config.SenderHTTP:
		return NewHTTPSender(HTTPOptions{
			BaseURL: cfg.BaseURL,
			Token:   cfg.Token,
			Retries: cfg.Retries,
			Timeout: cfg.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unknown sender type: %s", cfg.Type)
	}
}

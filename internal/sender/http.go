package sender

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/oshokin/deadman/internal/domain/liveness"
	"github.com/oshokin/deadman/internal/logger"
)

// messagesPath is the gateway endpoint accepting one message per request.
const messagesPath = "/v1/messages"

// HTTPOptions configures an HTTPSender.
type HTTPOptions struct {
	// BaseURL is the gateway root URL.
	BaseURL string
	// Token is sent as a bearer token when set.
	Token string
	// Retries is the number of retries on transport errors and 5xx responses.
	Retries int
	// Timeout bounds one request.
	Timeout time.Duration
}

// gatewayError is the error body returned by the gateway.
type gatewayError struct {
	Message string `json:"message"`
}

// HTTPSender delivers notifications through a messaging gateway.
type HTTPSender struct {
	client *resty.Client
}

// NewHTTPSender creates a gateway sender.
func NewHTTPSender(opts HTTPOptions) *HTTPSender {
	client := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.Retries).
		SetRetryWaitTime(200*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		}).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	if opts.Token != "" {
		client.SetAuthToken(opts.Token)
	}

	return &HTTPSender{
		client: client,
	}
}

// Send posts the rendered notification. Any non-2xx answer is a dispatch failure.
func (s *HTTPSender) Send(ctx context.Context, n *liveness.Notification, to liveness.Recipient) error {
	msg := Compose(n, to)

	var apiErr gatewayError

	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(msg).
		SetError(&apiErr).
		Post(messagesPath)
	if err != nil {
		return fmt.Errorf("%w: post %s: %w", liveness.ErrDispatch, msg.ID, err)
	}

	if resp.IsError() {
		detail := apiErr.Message
		if detail == "" {
			detail = resp.Status()
		}

		return fmt.Errorf("%w: gateway answered %d: %s", liveness.ErrDispatch, resp.StatusCode(), detail)
	}

	logger.DebugKV(ctx, "Notification accepted by gateway",
		"notification_id", msg.ID,
		"channel", msg.Channel,
		"status_code", resp.StatusCode())

	return nil
}

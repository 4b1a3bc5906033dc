package sink

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultNotifyTimeout = 10 * time.Second

type notifyRequest struct {
	Recipient string `json:"recipient"`
	Asset     string `json:"asset"`
	Amount    string `json:"amount"`
}

// HTTPSink posts notify calls to the bribe-sink gateway, which routes them to
// the recipient contract adapters.
type HTTPSink struct {
	client  *resty.Client
	baseURL string
}

func NewHTTPSink(baseURL string) (*HTTPSink, error) {
	client := resty.New()
	client.SetTimeout(defaultNotifyTimeout)
	client.SetRetryCount(0)

	return NewHTTPSinkWithClient(baseURL, client)
}

func NewHTTPSinkWithClient(baseURL string, client *resty.Client) (*HTTPSink, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("sink base url is required")
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("invalid sink base url: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultNotifyTimeout)
	}
	client.SetRetryCount(0)

	return &HTTPSink{
		client:  client,
		baseURL: trimmed,
	}, nil
}

func (s *HTTPSink) Notify(ctx context.Context, recipient, asset string, amount *big.Int) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("sink client is not initialized")
	}
	if strings.TrimSpace(recipient) == "" {
		return fmt.Errorf("recipient is required")
	}
	if strings.TrimSpace(asset) == "" {
		return fmt.Errorf("asset is required")
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("amount must be positive")
	}

	response, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(notifyRequest{
			Recipient: recipient,
			Asset:     asset,
			Amount:    amount.String(),
		}).
		Post(s.baseURL + "/v1/notify")
	if err != nil {
		return fmt.Errorf("sink notify failed for %s: %w", recipient, err)
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return nil
	}

	body := strings.TrimSpace(response.String())
	if body == "" {
		return fmt.Errorf("sink notify for %s returned status %d", recipient, statusCode)
	}
	return fmt.Errorf("sink notify for %s returned status %d: %s", recipient, statusCode, body)
}

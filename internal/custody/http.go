package custody

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultCustodyTimeout = 10 * time.Second

type transferRequest struct {
	Account string `json:"account"`
	Asset   string `json:"asset"`
	Amount  string `json:"amount"`
}

// HTTPCustody talks to the treasury custody service over its REST API.
type HTTPCustody struct {
	client  *resty.Client
	baseURL string
}

func NewHTTPCustody(baseURL string) (*HTTPCustody, error) {
	client := resty.New()
	client.SetTimeout(defaultCustodyTimeout)
	client.SetRetryCount(0)

	return NewHTTPCustodyWithClient(baseURL, client)
}

func NewHTTPCustodyWithClient(baseURL string, client *resty.Client) (*HTTPCustody, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("custody base url is required")
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("invalid custody base url: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultCustodyTimeout)
	}
	client.SetRetryCount(0)

	return &HTTPCustody{
		client:  client,
		baseURL: trimmed,
	}, nil
}

func (c *HTTPCustody) TransferIn(ctx context.Context, from, asset string, amount *big.Int) error {
	return c.post(ctx, "/v1/transfers/in", from, asset, amount)
}

func (c *HTTPCustody) TransferOut(ctx context.Context, to, asset string, amount *big.Int) error {
	return c.post(ctx, "/v1/transfers/out", to, asset, amount)
}

func (c *HTTPCustody) Approve(ctx context.Context, spender, asset string, amount *big.Int) error {
	return c.post(ctx, "/v1/approvals", spender, asset, amount)
}

func (c *HTTPCustody) post(ctx context.Context, path, account, asset string, amount *big.Int) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("custody client is not initialized")
	}
	if strings.TrimSpace(account) == "" {
		return fmt.Errorf("account is required")
	}
	if strings.TrimSpace(asset) == "" {
		return fmt.Errorf("asset is required")
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("amount must be positive")
	}

	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(transferRequest{
			Account: account,
			Asset:   asset,
			Amount:  amount.String(),
		}).
		Post(c.baseURL + path)
	if err != nil {
		return &CustodyError{
			Message:   "custody request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return &CustodyError{
			Message:   "custody returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return nil
	}

	body := strings.TrimSpace(response.String())
	message := fmt.Sprintf("custody returned status %d", statusCode)
	if body != "" {
		message = fmt.Sprintf("%s: %s", message, body)
	}

	return &CustodyError{
		StatusCode: statusCode,
		Message:    message,
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

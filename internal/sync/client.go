package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/rpattn/homegraph/internal/domain"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Client is the HTTP transport for exchanges with a remote replica. It
// implements Transport over POST /sync.
type Client struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewClient builds a transport for the replica at baseURL.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{httpClient: httpClient, logger: logger}
}

// Exchange posts one sync request and decodes the response. Failures surface
// as a domain.TransportError so callers can tell network trouble from
// protocol trouble.
func (c *Client) Exchange(ctx context.Context, req Request) (Response, error) {
	var response Response
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&response).
		Post("/sync")
	if err != nil {
		return Response{}, &domain.TransportError{Op: "post /sync", Err: err}
	}
	if resp.IsError() {
		c.logger.Warn("sync endpoint rejected request",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("body", resp.String()),
		)
		return Response{}, &domain.TransportError{
			Op:  "post /sync",
			Err: fmt.Errorf("remote returned status %d", resp.StatusCode()),
		}
	}
	return response, nil
}

var _ Transport = (*Client)(nil)

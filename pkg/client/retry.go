package client

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

// IsTransient reports whether an error is a transport failure worth
// retrying. Errors the node itself reported (JSON-RPC error responses,
// missing objects) are authoritative and never retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	// A JSON-RPC error means the node received and rejected the request.
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return false
	}
	// HTTP-level failures come from gateways in front of the node.
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 500 || httpErr.StatusCode == 429
	}
	if errors.Is(err, ethereum.NotFound) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	if errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// withRetry runs fn, retrying transient failures up to the configured
// attempt count with a fixed delay between attempts.
func (c *Client) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil || !IsTransient(err) || attempt >= c.retries {
			return err
		}

		c.logger.Warn("transient RPC failure, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.retryDelay):
		}
	}
}

package stub

import (
	"context"
	"sync"

	"swap-authority/internal/solana"
)

// WSClient implements solana.WSClient over a single channel fed by Publish.
type WSClient struct {
	mu      sync.Mutex
	ch      chan solana.LogNotification
	closed  bool
	Filters []solana.LogsFilter
}

var _ solana.WSClient = (*WSClient)(nil)

// NewWSClient creates a stub with the given notification buffer.
func NewWSClient(buffer int) *WSClient {
	return &WSClient{ch: make(chan solana.LogNotification, buffer)}
}

// SubscribeLogs records the filter and returns the shared channel. After
// Close the channel still yields what was published before it.
func (c *WSClient) SubscribeLogs(_ context.Context, filter solana.LogsFilter) (<-chan solana.LogNotification, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Filters = append(c.Filters, filter)
	return c.ch, nil
}

// Publish delivers a notification to the subscriber.
func (c *WSClient) Publish(n solana.LogNotification) {
	c.ch <- n
}

// Close closes the notification channel.
func (c *WSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
	return nil
}

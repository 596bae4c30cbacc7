package solana

import "context"

// WSClient streams program logs over the pubsub endpoint.
type WSClient interface {
	// SubscribeLogs starts a logsSubscribe for filter. Subscriptions survive
	// reconnects; the channel is closed by Close.
	SubscribeLogs(ctx context.Context, filter LogsFilter) (<-chan LogNotification, error)
	Close() error
}

// LogsFilter selects transactions by the accounts they mention.
type LogsFilter struct {
	Mentions []string // the node accepts a single key
}

// LogNotification is one transaction's logs.
type LogNotification struct {
	Signature string
	Slot      int64
	Logs      []string
	Err       interface{} // runtime error, nil on success
}

// Failed reports whether the notified transaction was rejected.
func (n *LogNotification) Failed() bool {
	return n.Err != nil
}

package chain

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"swap-authority/internal/address"
	"swap-authority/internal/solana"
	"swap-authority/internal/storage"
)

// ErrSubscriptionClosed is returned by Watcher.Run when the log stream ends.
var ErrSubscriptionClosed = errors.New("log subscription closed")

// WatcherOptions contains configuration for creating a Watcher.
type WatcherOptions struct {
	WS        solana.WSClient
	ProgramID address.Pubkey
	Store     storage.ExchangeEventStore
	Sink      storage.ExchangeEventStore // optional analytics copy
	Logger    zerolog.Logger
}

// Watcher indexes exchange events from live program logs.
type Watcher struct {
	ws solana.WSClient
	ix *indexer
}

// NewWatcher creates a Watcher.
func NewWatcher(opts WatcherOptions) *Watcher {
	logger := opts.Logger.With().Str("component", "watcher").Logger()
	return &Watcher{
		ws: opts.WS,
		ix: &indexer{
			programID: opts.ProgramID,
			store:     opts.Store,
			sink:      opts.Sink,
			logger:    logger,
		},
	}
}

// Run subscribes to logs mentioning the program and indexes events until ctx
// is cancelled. Failed transactions are skipped. Store errors are logged and
// do not stop the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	logs, err := w.ws.SubscribeLogs(ctx, solana.LogsFilter{
		Mentions: []string{w.ix.programID.String()},
	})
	if err != nil {
		return err
	}

	w.ix.logger.Info().Stringer("program", w.ix.programID).Msg("watching program logs")

	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-logs:
			if !ok {
				return ErrSubscriptionClosed
			}
			if n.Failed() {
				w.ix.logger.Debug().Str("signature", n.Signature).Msg("skipping failed transaction")
				continue
			}
			if _, err := w.ix.index(ctx, "ws", n.Signature, n.Slot, n.Logs); err != nil {
				w.ix.logger.Error().Err(err).Str("signature", n.Signature).Msg("index transaction")
			}
		}
	}
}

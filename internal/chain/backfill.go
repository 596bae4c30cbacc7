package chain

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"swap-authority/internal/address"
	"swap-authority/internal/solana"
	"swap-authority/internal/storage"
)

// DefaultPageSize is the getSignaturesForAddress page size.
const DefaultPageSize = 1000

// BackfillOptions contains configuration for creating a Backfiller.
type BackfillOptions struct {
	RPC       solana.RPCClient
	ProgramID address.Pubkey
	Store     storage.ExchangeEventStore
	Sink      storage.ExchangeEventStore // optional analytics copy
	Cursors   storage.CursorStore
	PageSize  int
	Logger    zerolog.Logger
}

// Backfiller indexes exchange events from the program's transaction history.
type Backfiller struct {
	rpc      solana.RPCClient
	cursors  storage.CursorStore
	pageSize int
	ix       *indexer
}

// BackfillResult contains statistics from a backfill operation.
type BackfillResult struct {
	Transactions int
	Events       int
	Duplicates   int
	Skipped      int // failed or unavailable transactions
	Cursor       *storage.Cursor
	Duration     time.Duration
}

// NewBackfiller creates a new Backfiller.
func NewBackfiller(opts BackfillOptions) *Backfiller {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	return &Backfiller{
		rpc:      opts.RPC,
		cursors:  opts.Cursors,
		pageSize: pageSize,
		ix: &indexer{
			programID: opts.ProgramID,
			store:     opts.Store,
			sink:      opts.Sink,
			logger:    opts.Logger.With().Str("component", "backfill").Logger(),
		},
	}
}

// Run indexes every transaction newer than the stored cursor, oldest first,
// and advances the cursor once all of them are stored. An interrupted run
// leaves the cursor in place; the next run re-reads the same range and
// duplicate events are skipped.
func (b *Backfiller) Run(ctx context.Context) (*BackfillResult, error) {
	start := time.Now()
	result := &BackfillResult{}
	program := b.ix.programID.String()

	cursor, err := b.cursors.GetCursor(ctx, program)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		cursor = nil
	case err != nil:
		return nil, fmt.Errorf("get cursor: %w", err)
	}

	sigs, err := b.signaturesSince(ctx, cursor)
	if err != nil {
		return nil, err
	}

	b.ix.logger.Info().Int("signatures", len(sigs)).Msg("backfill started")

	// Pages arrive newest first.
	for _, sig := range slices.Backward(sigs) {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if sig.Err != nil {
			result.Skipped++
			continue
		}

		tx, err := b.rpc.GetTransaction(ctx, sig.Signature)
		if err != nil {
			return result, fmt.Errorf("get transaction %s: %w", sig.Signature, err)
		}
		if tx == nil || tx.Failed() {
			result.Skipped++
			continue
		}

		stats, err := b.ix.index(ctx, "rpc", tx.Signature, tx.Slot, tx.Logs)
		if err != nil {
			return result, err
		}
		result.Transactions++
		result.Events += stats.Events
		result.Duplicates += stats.Duplicates
	}

	if len(sigs) > 0 {
		newest := &storage.Cursor{Slot: sigs[0].Slot, Signature: sigs[0].Signature}
		if err := b.cursors.SetCursor(ctx, program, newest); err != nil {
			return result, fmt.Errorf("set cursor: %w", err)
		}
		result.Cursor = newest
	} else {
		result.Cursor = cursor
	}

	result.Duration = time.Since(start)
	b.ix.logger.Info().
		Int("transactions", result.Transactions).
		Int("events", result.Events).
		Int("duplicates", result.Duplicates).
		Int("skipped", result.Skipped).
		Dur("duration", result.Duration).
		Msg("backfill complete")

	return result, nil
}

// signaturesSince pages backwards from the newest signature to the cursor.
func (b *Backfiller) signaturesSince(ctx context.Context, cursor *storage.Cursor) ([]solana.SignatureInfo, error) {
	opts := &solana.SignaturesOpts{Limit: b.pageSize}
	if cursor != nil {
		opts.Until = cursor.Signature
	}

	var all []solana.SignatureInfo
	for {
		page, err := b.rpc.GetSignaturesForAddress(ctx, b.ix.programID.String(), opts)
		if err != nil {
			return nil, fmt.Errorf("get signatures: %w", err)
		}
		all = append(all, page...)
		if len(page) < b.pageSize {
			return all, nil
		}
		opts.Before = page[len(page)-1].Signature
	}
}

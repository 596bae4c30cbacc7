package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"swap-authority/internal/address"
	"swap-authority/internal/observability"
	"swap-authority/internal/storage"
)

// indexer stores the events of one transaction. Event ids are derived from
// the signature, so indexing a transaction twice is harmless.
type indexer struct {
	programID address.Pubkey
	store     storage.ExchangeEventStore
	sink      storage.ExchangeEventStore
	logger    zerolog.Logger
}

// indexStats counts what one or more transactions contributed.
type indexStats struct {
	Events     int
	Duplicates int
}

func (ix *indexer) index(ctx context.Context, source, signature string, slot int64, logs []string) (indexStats, error) {
	var stats indexStats

	for _, e := range eventsFromLogs(ix.programID, signature, slot, logs) {
		err := ix.store.Insert(ctx, e)
		switch {
		case errors.Is(err, storage.ErrDuplicateKey):
			stats.Duplicates++
			continue
		case err != nil:
			return stats, fmt.Errorf("store event %s of %s: %w", e.ID, signature, err)
		}

		stats.Events++
		observability.RecordEventIndexed(source)

		if ix.sink != nil {
			if err := ix.sink.Insert(ctx, e); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
				ix.logger.Warn().Err(err).Str("event", e.ID).Msg("analytics sink insert failed")
			}
		}

		ix.logger.Info().
			Str("signature", signature).
			Int64("slot", slot).
			Stringer("caller", e.Caller).
			Uint64("old_amount", e.OldAmount).
			Uint64("new_amount", e.NewAmount).
			Msg("exchange indexed")
	}

	observability.UpdateHighestSlot(slot)
	return stats, nil
}

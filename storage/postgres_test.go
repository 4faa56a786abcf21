package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A second ingestion of the same (source, source_id) must update the row in
// place, never duplicate it and never be silently dropped. The statement
// shape carries that guarantee, so pin it down.
func TestUpsertStatementUpdatesOnConflict(t *testing.T) {
	assert.Contains(t, upsertSQL, "ON CONFLICT (source, source_id) DO UPDATE SET")
	assert.NotContains(t, upsertSQL, "DO NOTHING")

	_, setList, ok := strings.Cut(upsertSQL, "DO UPDATE SET")
	require.True(t, ok)

	// every mutable column takes the later ingestion's value
	mutable := []string{
		"title", "price", "currency", "price_sqm", "area", "rooms",
		"floor", "construction_type", "year_built", "description",
		"location", "district", "city", "url", "agency", "phone",
		"scraped_at",
	}
	for _, col := range mutable {
		assert.Contains(t, setList, col+" = EXCLUDED."+col, "column %s", col)
	}

	// the identity never changes on conflict
	assert.NotContains(t, setList, "id = EXCLUDED.")
	assert.NotContains(t, setList, "source = EXCLUDED.")
	assert.NotContains(t, setList, "source_id = EXCLUDED.")
}

func TestPingRetryGivesEachAttemptItsOwnBudget(t *testing.T) {
	const timeout = 10 * time.Second

	var budgets []time.Duration
	calls := 0

	err := pingWithRetry(context.Background(), 2, timeout, func(ctx context.Context) error {
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		budgets = append(budgets, time.Until(deadline))
		calls++
		if calls == 1 {
			return errors.New("not ready")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)

	// the retry after the backoff sleep still starts with a full timeout
	for i, budget := range budgets {
		assert.Greater(t, budget, timeout-time.Second, "attempt %d", i+1)
	}
}

package infra

import (
	"context"
	"testing"

	"story-chain/story/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStatsStore_CountsOutcomes(t *testing.T) {
	s := NewMemoryStatsStore(WithTrackKeys(true))
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, domain.StatsEvent{Key: "a", Outcome: domain.OutcomeAccepted}))
	require.NoError(t, s.Record(ctx, domain.StatsEvent{Key: "a", Outcome: domain.OutcomeRateLimited}))
	require.NoError(t, s.Record(ctx, domain.StatsEvent{Key: "b", Outcome: domain.OutcomeAccepted}))
	require.NoError(t, s.Record(ctx, domain.StatsEvent{Outcome: domain.OutcomeInvalid}))

	total := s.Total()
	assert.EqualValues(t, 2, total[domain.OutcomeAccepted])
	assert.EqualValues(t, 1, total[domain.OutcomeRateLimited])
	assert.EqualValues(t, 1, total[domain.OutcomeInvalid])

	assert.Equal(t, map[domain.Outcome]int64{
		domain.OutcomeAccepted:    1,
		domain.OutcomeRateLimited: 1,
	}, s.ByKey("a"))
}

func TestMemoryStatsStore_KeysNotTrackedByDefault(t *testing.T) {
	s := NewMemoryStatsStore()
	require.NoError(t, s.Record(context.Background(), domain.StatsEvent{Key: "a", Outcome: domain.OutcomeAccepted}))
	assert.Empty(t, s.ByKey("a"))
}

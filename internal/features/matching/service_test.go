package matching_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/dating-core/internal/common"
	"serotonyl.ru/dating-core/internal/features/matching"
	"serotonyl.ru/dating-core/internal/store/memory"
)

func setup() (*matching.Service, *memory.Store) {
	st := memory.New()
	for id := int64(1); id <= 9; id++ {
		_, _ = st.CreateUser(context.Background(), id, 0)
	}
	return matching.NewService(st, nil), st
}

func TestNewPairIsCanonical(t *testing.T) {
	assert.Equal(t, matching.Pair{Low: 3, High: 9}, matching.NewPair(9, 3))
	assert.Equal(t, matching.NewPair(3, 9), matching.NewPair(9, 3))
	assert.Equal(t, int64(9), matching.NewPair(3, 9).Other(3))
	assert.Equal(t, int64(3), matching.NewPair(3, 9).Other(9))
}

func TestOneSidedThenMatched(t *testing.T) {
	svc, st := setup()
	ctx := context.Background()

	res, err := svc.SignalInterest(ctx, 5, 2)
	require.NoError(t, err)
	assert.False(t, res.Matched)
	assert.True(t, res.NewSignal)

	// Повтор — не ошибка и не матч
	res, err = svc.SignalInterest(ctx, 5, 2)
	require.NoError(t, err)
	assert.False(t, res.Matched)
	assert.False(t, res.NewSignal)

	res, err = svc.SignalInterest(ctx, 2, 5)
	require.NoError(t, err)
	assert.True(t, res.Matched)
	require.NotNil(t, res.Match)
	assert.Equal(t, matching.Pair{Low: 2, High: 5}, res.Match.Pair)
	assert.Equal(t, int64(2), res.Match.InitiatedBy)
	assert.True(t, res.Match.IsActive)

	matched, err := svc.IsMatched(ctx, 5, 2)
	require.NoError(t, err)
	assert.True(t, matched)
	assert.Equal(t, 1, st.MatchCount())
}

func TestRepeatedSignalsKeepOneMatch(t *testing.T) {
	svc, st := setup()
	ctx := context.Background()

	for range 3 {
		_, err := svc.SignalInterest(ctx, 1, 2)
		require.NoError(t, err)
		res, err := svc.SignalInterest(ctx, 2, 1)
		require.NoError(t, err)
		assert.True(t, res.Matched)
	}
	assert.Equal(t, 1, st.MatchCount())

	res, err := svc.SignalInterest(ctx, 1, 2)
	require.NoError(t, err)
	assert.True(t, res.Matched, "повторный сигнал в уже сматченной паре сообщает о матче")
}

func TestConcurrentReciprocalSignals(t *testing.T) {
	for range 50 {
		svc, st := setup()
		ctx := context.Background()

		var (
			wg      sync.WaitGroup
			results [2]*matching.SignalResult
		)
		for i, p := range [][2]int64{{7, 8}, {8, 7}} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := svc.SignalInterest(ctx, p[0], p[1])
				assert.NoError(t, err)
				results[i] = res
			}()
		}
		wg.Wait()

		require.Equal(t, 1, st.MatchCount())
		// Хотя бы одна сторона видит встречный сигнал
		assert.True(t, results[0].Matched || results[1].Matched)
		if results[0].Matched && results[1].Matched {
			assert.Equal(t, results[0].Match.ID, results[1].Match.ID)
		}
	}
}

func TestSelfSignal(t *testing.T) {
	svc, _ := setup()
	_, err := svc.SignalInterest(context.Background(), 4, 4)
	assert.ErrorIs(t, err, common.ErrSelfAction)
}

func TestListMatches(t *testing.T) {
	svc, _ := setup()
	ctx := context.Background()

	for _, other := range []int64{2, 3} {
		_, err := svc.SignalInterest(ctx, 1, other)
		require.NoError(t, err)
		_, err = svc.SignalInterest(ctx, other, 1)
		require.NoError(t, err)
	}
	_, err := svc.SignalInterest(ctx, 1, 4)
	require.NoError(t, err)

	matches, err := svc.ListMatches(ctx, 1)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, int64(3), matches[0].Pair.Other(1))

	matched, err := svc.IsMatched(ctx, 1, 4)
	require.NoError(t, err)
	assert.False(t, matched)
}

func TestSignalToUnknownUser(t *testing.T) {
	svc, st := setup()
	ctx := context.Background()

	_, err := svc.SignalInterest(ctx, 1, 404)
	require.ErrorIs(t, err, common.ErrUserNotFound)
	assert.True(t, common.IsClientError(err))
	assert.False(t, common.IsFatal(err))

	exists, err := st.SignalExists(ctx, 1, 404)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = svc.SignalInterest(ctx, 404, 1)
	assert.ErrorIs(t, err, common.ErrUserNotFound)
	assert.Equal(t, 0, st.MatchCount())
}

func TestStoreRejectsMatchWithUnknownUser(t *testing.T) {
	_, st := setup()
	_, err := st.CreateMatch(context.Background(), matching.NewPair(1, 404), 1)
	assert.ErrorIs(t, err, common.ErrUserNotFound)
}

func TestStoreRejectsDuplicateMatch(t *testing.T) {
	_, st := setup()
	ctx := context.Background()

	_, err := st.CreateMatch(ctx, matching.NewPair(1, 2), 1)
	require.NoError(t, err)
	_, err = st.CreateMatch(ctx, matching.NewPair(2, 1), 2)
	assert.ErrorIs(t, err, common.ErrAlreadyMatched)
}

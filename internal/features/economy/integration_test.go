//go:build integration

package economy_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/dating-core/internal/common"
	"serotonyl.ru/dating-core/internal/db/postgres/pgtest"
	"serotonyl.ru/dating-core/internal/features/economy"
	"serotonyl.ru/dating-core/internal/features/ledger"
)

func TestRepositoryConcurrentDebitsNeverOverdraw(t *testing.T) {
	pool := pgtest.Pool(t)
	ctx := context.Background()
	pgtest.User(t, pool, 1, 100)
	repo := economy.NewRepository(pool)

	var (
		wg           sync.WaitGroup
		ok, rejected atomic.Int64
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Debit(ctx, 1, 30, ledger.ReasonUnlock, "photos:2")
			switch {
			case err == nil:
				ok.Add(1)
			case assert.ErrorIs(t, err, common.ErrInsufficientFunds):
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(3), ok.Load())
	assert.Equal(t, int64(17), rejected.Load())

	balance, err := repo.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance)

	rec, err := ledger.NewRepository(pool).Snapshot(ctx, 1)
	require.NoError(t, err)
	assert.True(t, rec.Consistent())
	assert.Equal(t, int64(-90), rec.SumOfDeltas)
}

func TestRepositoryInsufficientFundsReportsShortfall(t *testing.T) {
	pool := pgtest.Pool(t)
	ctx := context.Background()
	pgtest.User(t, pool, 1, 50)
	repo := economy.NewRepository(pool)

	_, err := repo.Debit(ctx, 1, 70, ledger.ReasonUnlock, "photos:2")
	var insufficient *common.InsufficientFundsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(20), insufficient.Shortfall())

	entries, err := ledger.NewRepository(pool).ListEntries(ctx, 1, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, entries, "отклонённое списание не пишет в журнал")

	_, err = repo.Debit(ctx, 404, 1, ledger.ReasonUnlock, "")
	assert.ErrorIs(t, err, common.ErrUserNotFound)
	_, err = repo.Credit(ctx, 404, 1, ledger.ReasonPurchase, "")
	assert.ErrorIs(t, err, common.ErrUserNotFound)
}

func TestServiceGiftOverPostgres(t *testing.T) {
	pool := pgtest.Pool(t)
	ctx := context.Background()
	pgtest.User(t, pool, 1, 100)
	pgtest.User(t, pool, 2, 0)
	svc := economy.NewService(economy.NewRepository(pool), nil)

	res, err := svc.Gift(ctx, 1, 2, 40)
	require.NoError(t, err)
	assert.Equal(t, int64(60), res.NewBalance)

	// Получателя нет: списание возвращено, ошибка клиентская
	_, err = svc.Gift(ctx, 1, 404, 40)
	require.ErrorIs(t, err, common.ErrUserNotFound)
	assert.False(t, common.IsFatal(err))

	balance, err := svc.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(60), balance)
	balance, err = svc.GetBalance(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(40), balance)
}

//go:build integration

package app

import (
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/dating-core/internal/cache"
	"serotonyl.ru/dating-core/internal/common"
	"serotonyl.ru/dating-core/internal/db/postgres/pgtest"
	"serotonyl.ru/dating-core/internal/features/payments"
	"serotonyl.ru/dating-core/internal/features/subscription"
	"serotonyl.ru/dating-core/internal/metrics"
)

func newPostgresApp(t *testing.T) *App {
	t.Helper()
	pool := pgtest.Pool(t)
	return Assemble(testConfig(), PostgresStores(pool), cache.NewMemoryCache(), metrics.MustNew(prometheus.NewRegistry()))
}

func TestPostgresAppEndToEnd(t *testing.T) {
	a := newPostgresApp(t)
	ctx := context.Background()

	const viewer, target int64 = 1, 2
	for _, id := range []int64{viewer, target} {
		_, err := a.Members.Register(ctx, id)
		require.NoError(t, err)
	}

	ev := payments.Event{UserID: viewer, Amount: 9900, PackageID: "starter", ProviderReference: "pi_pg_1"}
	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := a.Payments.ApplyPaymentSucceeded(ctx, ev)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	balance, err := a.Economy.GetBalance(ctx, viewer)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance, "повторные уведомления не начисляют дважды")

	unlock, err := a.Entitlements.UnlockPhotos(ctx, viewer, target)
	require.NoError(t, err)
	assert.Equal(t, int64(30), unlock.Balance)

	plan, err := a.Payments.ApplyPaymentSucceeded(ctx, payments.Event{
		UserID: target, Amount: 49900, PlanID: "premium", ProviderReference: "pi_pg_2",
	})
	require.NoError(t, err)
	require.NotNil(t, plan.Subscription)
	assert.Equal(t, subscription.StatusActive, plan.Subscription.Status)

	rec, err := a.Ledger.Reconcile(ctx, viewer)
	require.NoError(t, err)
	assert.True(t, rec.Consistent())
}

func TestPostgresPaymentForUnknownUser(t *testing.T) {
	a := newPostgresApp(t)
	ctx := context.Background()

	_, err := a.Payments.ApplyPaymentSucceeded(ctx, payments.Event{
		UserID: 404, PackageID: "starter", ProviderReference: "pi_ghost",
	})
	require.ErrorIs(t, err, common.ErrUserNotFound)
	assert.False(t, common.IsFatal(err))

	// После регистрации провайдер может повторить то же уведомление
	_, err = a.Members.Register(ctx, 404)
	require.NoError(t, err)
	res, err := a.Payments.ApplyPaymentSucceeded(ctx, payments.Event{
		UserID: 404, PackageID: "starter", ProviderReference: "pi_ghost",
	})
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, int64(100), res.Balance)
}

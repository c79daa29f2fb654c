package payments_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/dating-core/internal/common"
	"serotonyl.ru/dating-core/internal/config"
	"serotonyl.ru/dating-core/internal/features/economy"
	"serotonyl.ru/dating-core/internal/features/ledger"
	"serotonyl.ru/dating-core/internal/features/payments"
	"serotonyl.ru/dating-core/internal/features/subscription"
	"serotonyl.ru/dating-core/internal/metrics"
	"serotonyl.ru/dating-core/internal/store/memory"
)

var testCfg = &config.Config{
	CoinPackages:       map[string]int64{"starter": 100, "popular": 550},
	BillingPeriod:      30 * 24 * time.Hour,
	RenewalBatchSize:   10,
	RenewalConcurrency: 1,
}

type env struct {
	svc  *payments.Service
	st   *memory.Store
	econ *economy.Service
}

func setup(t *testing.T) env {
	t.Helper()
	st := memory.New()
	_, err := st.CreateUser(context.Background(), 1, 0)
	require.NoError(t, err)

	m := metrics.MustNew(prometheus.NewRegistry())
	econ := economy.NewService(st, m)
	subs := subscription.NewService(st, testCfg, m)
	return env{svc: payments.NewService(st, econ, subs, testCfg, m), st: st, econ: econ}
}

func TestCoinPackageCreditsOnce(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	ev := payments.Event{UserID: 1, Amount: 49900, PackageID: "popular", ProviderReference: "pi_123"}

	res, err := e.svc.ApplyPaymentSucceeded(ctx, ev)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, int64(550), res.Coins)
	assert.Equal(t, int64(550), res.Balance)

	res, err = e.svc.ApplyPaymentSucceeded(ctx, ev)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.True(t, res.Duplicate)

	balance, err := e.econ.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(550), balance)

	entries, err := e.st.ListEntries(ctx, 1, nil, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.ReasonPurchase, entries[0].Reason)
	assert.Equal(t, "pi_123", entries[0].RelatedEntityID)

	p, ok := e.st.Payment("pi_123")
	require.True(t, ok)
	assert.Equal(t, payments.StatusApplied, p.Status)
	assert.NotNil(t, p.AppliedAt)
}

func TestConcurrentDeliveriesApplyOnce(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	ev := payments.Event{UserID: 1, PackageID: "starter", ProviderReference: "pi_dup"}

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.svc.ApplyPaymentSucceeded(ctx, ev)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	balance, err := e.econ.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)
}

func TestPlanPaymentActivates(t *testing.T) {
	e := setup(t)
	res, err := e.svc.ApplyPaymentSucceeded(context.Background(), payments.Event{
		UserID: 1, Amount: 99900, PlanID: "vip", ProviderReference: "pi_plan",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Subscription)
	assert.Equal(t, subscription.PlanVIP, res.Subscription.Plan)
	assert.True(t, res.Subscription.HasAccess())
}

func TestRejectsUnknownProducts(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	_, err := e.svc.ApplyPaymentSucceeded(ctx, payments.Event{UserID: 1, PackageID: "mega", ProviderReference: "a"})
	assert.ErrorIs(t, err, common.ErrUnknownProduct)

	_, err = e.svc.ApplyPaymentSucceeded(ctx, payments.Event{UserID: 1, PlanID: "none", ProviderReference: "b"})
	assert.ErrorIs(t, err, common.ErrInvalidPlan)

	_, err = e.svc.ApplyPaymentSucceeded(ctx, payments.Event{UserID: 1, PackageID: "starter", PlanID: "vip", ProviderReference: "c"})
	assert.ErrorIs(t, err, common.ErrUnknownProduct)

	_, err = e.svc.ApplyPaymentSucceeded(ctx, payments.Event{UserID: 1, PackageID: "starter"})
	assert.ErrorIs(t, err, common.ErrUnknownProduct)

	_, ok := e.st.Payment("a")
	assert.False(t, ok)
}

type failingCredit struct {
	calls int
}

func (f *failingCredit) Credit(context.Context, int64, int64, ledger.Reason, string) (*ledger.Entry, error) {
	f.calls++
	return nil, errors.New("db down")
}

func TestFailedApplyReleasesClaim(t *testing.T) {
	st := memory.New()
	_, err := st.CreateUser(context.Background(), 1, 0)
	require.NoError(t, err)
	credit := &failingCredit{}
	svc := payments.NewService(st, credit, nil, testCfg, nil)
	ev := payments.Event{UserID: 1, PackageID: "starter", ProviderReference: "pi_retry"}

	_, err = svc.ApplyPaymentSucceeded(context.Background(), ev)
	require.Error(t, err)
	_, ok := st.Payment("pi_retry")
	assert.False(t, ok, "бронь снята, провайдер может повторить")

	// Повтор снова доходит до начисления, а не отбрасывается как дубликат
	_, err = svc.ApplyPaymentSucceeded(context.Background(), ev)
	require.Error(t, err)
	assert.Equal(t, 2, credit.calls)
}

func TestUnknownUserLeavesNoClaim(t *testing.T) {
	e := setup(t)
	_, err := e.svc.ApplyPaymentSucceeded(context.Background(), payments.Event{
		UserID: 404, PackageID: "starter", ProviderReference: "pi_ghost",
	})
	assert.ErrorIs(t, err, common.ErrUserNotFound)
	_, ok := e.st.Payment("pi_ghost")
	assert.False(t, ok)
}

func TestPackagesIsACopy(t *testing.T) {
	e := setup(t)
	pk := e.svc.Packages()
	pk["starter"] = 1
	assert.Equal(t, int64(100), e.svc.Packages()["starter"])
}

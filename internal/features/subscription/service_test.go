package subscription_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/dating-core/internal/common"
	"serotonyl.ru/dating-core/internal/config"
	"serotonyl.ru/dating-core/internal/features/subscription"
	"serotonyl.ru/dating-core/internal/store/memory"
)

const period = 30 * 24 * time.Hour

var start = time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newService(t *testing.T, store subscription.Store, batch int) (*subscription.Service, *clock) {
	t.Helper()
	cfg := &config.Config{BillingPeriod: period, RenewalBatchSize: batch, RenewalConcurrency: 4}
	svc := subscription.NewService(store, cfg, nil)
	clk := &clock{now: start}
	svc.SetClock(clk.Now)
	return svc, clk
}

func users(t *testing.T, st *memory.Store, ids ...int64) {
	t.Helper()
	for _, id := range ids {
		_, err := st.CreateUser(context.Background(), id, 0)
		require.NoError(t, err)
	}
}

func TestActivate(t *testing.T) {
	st := memory.New()
	users(t, st, 1)
	svc, _ := newService(t, st, 10)
	ctx := context.Background()

	state, err := svc.Activate(ctx, 1, subscription.PlanVIP)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, state.Status)
	assert.Equal(t, start.Add(period), state.CurrentPeriodEnd)
	assert.True(t, state.HasAccess())

	_, err = svc.Activate(ctx, 1, "platinum")
	assert.ErrorIs(t, err, common.ErrInvalidPlan)
	_, err = svc.Activate(ctx, 1, subscription.PlanNone)
	assert.ErrorIs(t, err, common.ErrInvalidPlan)

	_, err = svc.Activate(ctx, 404, subscription.PlanPremium)
	assert.ErrorIs(t, err, common.ErrUserNotFound)
}

func TestSetCancelStateRequiresActive(t *testing.T) {
	st := memory.New()
	users(t, st, 1)
	svc, _ := newService(t, st, 10)
	ctx := context.Background()

	_, err := svc.SetCancelState(ctx, 1, true)
	assert.ErrorIs(t, err, common.ErrNoActiveSubscription)

	_, err = svc.Activate(ctx, 1, subscription.PlanPremium)
	require.NoError(t, err)

	state, err := svc.SetCancelState(ctx, 1, true)
	require.NoError(t, err)
	assert.True(t, state.CancelAtPeriodEnd)
	assert.True(t, state.HasAccess(), "отмена в конце периода не отнимает доступ сразу")

	state, err = svc.SetCancelState(ctx, 1, false)
	require.NoError(t, err)
	assert.False(t, state.CancelAtPeriodEnd)
}

func TestTerminate(t *testing.T) {
	st := memory.New()
	users(t, st, 1)
	svc, _ := newService(t, st, 10)
	ctx := context.Background()

	_, err := svc.Terminate(ctx, 1)
	assert.ErrorIs(t, err, common.ErrNoActiveSubscription)

	_, err = svc.Activate(ctx, 1, subscription.PlanPremium)
	require.NoError(t, err)
	state, err := svc.Terminate(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCanceled, state.Status)
	assert.False(t, state.HasAccess())
}

func TestRenewAllIsIdempotent(t *testing.T) {
	st := memory.New()
	users(t, st, 1, 2, 3)
	svc, clk := newService(t, st, 2)
	ctx := context.Background()

	for _, id := range []int64{1, 2, 3} {
		_, err := svc.Activate(ctx, id, subscription.PlanPremium)
		require.NoError(t, err)
	}
	_, err := svc.SetCancelState(ctx, 3, true)
	require.NoError(t, err)

	// До конца периода делать нечего
	report, err := svc.RenewAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Total())

	clk.Advance(period)
	report, err = svc.RenewAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, subscription.SweepReport{Renewed: 2, Expired: 1}, report)

	// Повторный запуск в тот же момент ничего не меняет
	report, err = svc.RenewAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Total())

	state, err := svc.State(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, start.Add(2*period), state.CurrentPeriodEnd)
	assert.Equal(t, subscription.StatusActive, state.Status)

	state, err = svc.State(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusExpired, state.Status)
	assert.Equal(t, subscription.PlanPremium, state.Plan)
	assert.False(t, state.HasAccess())
}

func TestRenewAllCatchesUpMissedPeriods(t *testing.T) {
	st := memory.New()
	users(t, st, 1, 2)
	svc, clk := newService(t, st, 10)
	ctx := context.Background()

	_, err := svc.Activate(ctx, 1, subscription.PlanVIP)
	require.NoError(t, err)
	clk.Advance(period / 2)
	_, err = svc.Activate(ctx, 2, subscription.PlanVIP)
	require.NoError(t, err)

	// Проход не запускался: первый отстал на два полных периода, второй на полтора
	clk.Advance(period*5/2)

	report, err := svc.RenewAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, subscription.SweepReport{Renewed: 2}, report)

	report, err = svc.RenewAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Total(), "повторный проход сразу после первого ничего не продлевает")

	state, err := svc.State(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, start.Add(4*period), state.CurrentPeriodEnd)
	assert.True(t, state.CurrentPeriodEnd.After(clk.Now()))

	state, err = svc.State(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, start.Add(period*7/2), state.CurrentPeriodEnd)
}

func TestConcurrentSweepsRenewOnce(t *testing.T) {
	st := memory.New()
	svc, clk := newService(t, st, 7)
	ctx := context.Background()

	const n = 25
	for id := int64(1); id <= n; id++ {
		users(t, st, id)
		_, err := svc.Activate(ctx, id, subscription.PlanVIP)
		require.NoError(t, err)
	}
	clk.Advance(period)

	var (
		wg      sync.WaitGroup
		reports [3]subscription.SweepReport
	)
	for i := range reports {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := svc.RenewAll(ctx)
			assert.NoError(t, err)
			reports[i] = r
		}()
	}
	wg.Wait()

	renewed := 0
	for _, r := range reports {
		renewed += r.Renewed
		assert.Zero(t, r.Failed)
	}
	assert.Equal(t, n, renewed)

	for id := int64(1); id <= n; id++ {
		state, err := svc.State(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, start.Add(2*period), state.CurrentPeriodEnd, "user %d", id)
	}
}

// flakyStore отказывает в продлении одному пользователю.
type flakyStore struct {
	*memory.Store
	broken int64
}

func (f flakyStore) RenewPeriod(ctx context.Context, userID int64, observedEnd, newEnd, now time.Time) (bool, error) {
	if userID == f.broken {
		return false, errors.New("deadlock detected")
	}
	return f.Store.RenewPeriod(ctx, userID, observedEnd, newEnd, now)
}

func TestRenewAllCountsFailuresAndContinues(t *testing.T) {
	st := memory.New()
	users(t, st, 1, 2, 3)
	svc, clk := newService(t, flakyStore{Store: st, broken: 2}, 10)
	ctx := context.Background()

	for _, id := range []int64{1, 2, 3} {
		_, err := svc.Activate(ctx, id, subscription.PlanPremium)
		require.NoError(t, err)
	}
	clk.Advance(period + time.Hour)

	report, err := svc.RenewAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, subscription.SweepReport{Renewed: 2, Failed: 1}, report)

	// Следующий проход подбирает упавшего пользователя, когда хранилище оживёт
	svc2, clk2 := newService(t, st, 10)
	clk2.Advance(period + time.Hour)
	report, err = svc2.RenewAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Renewed)
}

type brokenList struct {
	*memory.Store
}

func (brokenList) ListDue(context.Context, time.Time, int64, int) ([]subscription.Due, error) {
	return nil, errors.New("connection reset")
}

func TestRenewAllAbortsWhenListingFails(t *testing.T) {
	svc, _ := newService(t, brokenList{memory.New()}, 10)
	_, err := svc.RenewAll(context.Background())
	assert.Error(t, err)
}

func TestParsePlanAndStatus(t *testing.T) {
	p, err := subscription.ParsePlan("vip")
	require.NoError(t, err)
	assert.True(t, p.Purchasable())
	assert.False(t, subscription.PlanNone.Purchasable())

	_, err = subscription.ParseStatus("paused")
	assert.Error(t, err)

	var nilState *subscription.State
	assert.False(t, nilState.HasAccess())
}

// Package subscription — service.go содержит state-машину подписки и проход продления.
package subscription

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"serotonyl.ru/dating-core/internal/common"
	"serotonyl.ru/dating-core/internal/config"
	"serotonyl.ru/dating-core/internal/metrics"
)

// Store — условные переходы подписки. Реализуется Repository и хранилищем в памяти.
type Store interface {
	GetSubscription(ctx context.Context, userID int64) (*State, error)
	ActivateSubscription(ctx context.Context, userID int64, plan Plan, periodEnd time.Time) (*State, error)
	SetCancelAtPeriodEnd(ctx context.Context, userID int64, cancel bool) (*State, error)
	TerminateSubscription(ctx context.Context, userID int64, now time.Time) (*State, error)
	ListDue(ctx context.Context, now time.Time, afterUserID int64, limit int) ([]Due, error)
	RenewPeriod(ctx context.Context, userID int64, observedEnd, newEnd, now time.Time) (bool, error)
	ExpireSubscription(ctx context.Context, userID int64, observedEnd, now time.Time) (bool, error)
}

// Service управляет подписками. Баланс монет не трогает:
// подписки оплачиваются внешним платёжным провайдером.
type Service struct {
	store       Store
	period      time.Duration
	batchSize   int
	concurrency int
	metrics     *metrics.Metrics
	now         common.Clock
}

// NewService создаёт сервис подписок.
func NewService(store Store, cfg *config.Config, m *metrics.Metrics) *Service {
	return &Service{
		store:       store,
		period:      cfg.BillingPeriod,
		batchSize:   cfg.RenewalBatchSize,
		concurrency: cfg.RenewalConcurrency,
		metrics:     m,
		now:         common.SystemClock,
	}
}

// SetClock подменяет источник времени (для тестов и ручных прогонов).
func (s *Service) SetClock(clock common.Clock) {
	s.now = clock
}

// State возвращает текущее состояние подписки.
func (s *Service) State(ctx context.Context, userID int64) (*State, error) {
	return s.store.GetSubscription(ctx, userID)
}

// Activate включает тариф на один расчётный период от текущего момента.
func (s *Service) Activate(ctx context.Context, userID int64, plan Plan) (*State, error) {
	if !plan.Purchasable() {
		return nil, fmt.Errorf("%w: %q", common.ErrInvalidPlan, plan)
	}
	periodEnd := s.now().Add(s.period)
	st, err := s.store.ActivateSubscription(ctx, userID, plan, periodEnd)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"user_id":    userID,
		"plan":       plan,
		"period_end": periodEnd,
	}).Info("Подписка активирована")
	return st, nil
}

// SetCancelState включает или снимает отмену в конце периода.
// Работает только для активной подписки.
func (s *Service) SetCancelState(ctx context.Context, userID int64, cancelAtPeriodEnd bool) (*State, error) {
	st, err := s.store.SetCancelAtPeriodEnd(ctx, userID, cancelAtPeriodEnd)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"user_id":              userID,
		"cancel_at_period_end": cancelAtPeriodEnd,
	}).Info("Флаг отмены подписки изменён")
	return st, nil
}

// Terminate прекращает подписку немедленно (например, после возврата платежа).
func (s *Service) Terminate(ctx context.Context, userID int64) (*State, error) {
	st, err := s.store.TerminateSubscription(ctx, userID, s.now())
	if err != nil {
		return nil, err
	}
	log.WithField("user_id", userID).Warn("Подписка прекращена досрочно")
	return st, nil
}

// RenewAll — проход продления. Для каждой активной подписки с наступившим
// концом периода: с флагом отмены — expired, иначе конец периода сдвигается
// за now (обычно ровно на один период).
//
// Безопасен при повторных и параллельных запусках: каждый переход — условный
// UPDATE, который проверяет, что конец периода всё ещё в прошлом и не сдвинут.
// Ошибка по одному пользователю не прерывает проход; прерывает только
// невозможность получить список.
func (s *Service) RenewAll(ctx context.Context) (SweepReport, error) {
	now := s.now()
	started := time.Now()

	var renewed, expired, skipped, failed atomic.Int64
	var afterID int64

	for {
		batch, err := s.store.ListDue(ctx, now, afterID, s.batchSize)
		if err != nil {
			report := s.report(&renewed, &expired, &skipped, &failed)
			return report, fmt.Errorf("проход продления прерван: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		var g errgroup.Group
		g.SetLimit(s.concurrency)
		for _, due := range batch {
			g.Go(func() error {
				switch res, err := s.renewOne(ctx, due, now); {
				case err != nil:
					failed.Add(1)
					log.WithError(err).WithFields(log.Fields{
						"user_id":    due.UserID,
						"period_end": due.CurrentPeriodEnd,
					}).Error("Ошибка продления подписки")
				case res == outcomeRenewed:
					renewed.Add(1)
				case res == outcomeExpired:
					expired.Add(1)
				default:
					skipped.Add(1)
				}
				// Ошибки не возвращаем: они не должны останавливать остальных
				return nil
			})
		}
		_ = g.Wait()

		afterID = batch[len(batch)-1].UserID
		if len(batch) < s.batchSize {
			break
		}
		if err := ctx.Err(); err != nil {
			report := s.report(&renewed, &expired, &skipped, &failed)
			return report, err
		}
	}

	report := s.report(&renewed, &expired, &skipped, &failed)
	log.WithFields(log.Fields{
		"renewed":  report.Renewed,
		"expired":  report.Expired,
		"skipped":  report.Skipped,
		"failed":   report.Failed,
		"duration": time.Since(started).String(),
	}).Info("Проход продления подписок завершён")
	return report, nil
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeRenewed
	outcomeExpired
)

func (s *Service) renewOne(ctx context.Context, due Due, now time.Time) (outcome, error) {
	if due.CancelAtPeriodEnd {
		ok, err := s.store.ExpireSubscription(ctx, due.UserID, due.CurrentPeriodEnd, now)
		if err != nil || !ok {
			return outcomeSkipped, err
		}
		log.WithField("user_id", due.UserID).Info("Подписка истекла по отмене")
		return outcomeExpired, nil
	}

	newEnd := nextPeriodEnd(due.CurrentPeriodEnd, now, s.period)
	ok, err := s.store.RenewPeriod(ctx, due.UserID, due.CurrentPeriodEnd, newEnd, now)
	if err != nil || !ok {
		return outcomeSkipped, err
	}
	log.WithFields(log.Fields{
		"user_id":    due.UserID,
		"period_end": newEnd,
	}).Debug("Подписка продлена")
	return outcomeRenewed, nil
}

// nextPeriodEnd сдвигает конец периода на целое число периодов так,
// чтобы он оказался строго после now. Пропущенные периоды не продлеваются
// по одному за проход.
func nextPeriodEnd(end, now time.Time, period time.Duration) time.Time {
	next := end.Add(period)
	if next.After(now) {
		return next
	}
	missed := now.Sub(end) / period
	return end.Add((missed + 1) * period)
}

func (s *Service) report(renewed, expired, skipped, failed *atomic.Int64) SweepReport {
	r := SweepReport{
		Renewed: int(renewed.Load()),
		Expired: int(expired.Load()),
		Skipped: int(skipped.Load()),
		Failed:  int(failed.Load()),
	}
	s.metrics.Renewal("renewed", r.Renewed)
	s.metrics.Renewal("expired", r.Expired)
	s.metrics.Renewal("skipped", r.Skipped)
	s.metrics.Renewal("failed", r.Failed)
	return r
}


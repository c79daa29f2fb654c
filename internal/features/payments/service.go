// Package payments — service.go применяет события об оплате.
package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/dating-core/internal/common"
	"serotonyl.ru/dating-core/internal/config"
	"serotonyl.ru/dating-core/internal/features/ledger"
	"serotonyl.ru/dating-core/internal/features/subscription"
	"serotonyl.ru/dating-core/internal/metrics"
)

// Store — таблица платежей.
type Store interface {
	ClaimPayment(ctx context.Context, p *Payment) error
	ReleasePayment(ctx context.Context, id uuid.UUID) error
	MarkPaymentApplied(ctx context.Context, id uuid.UUID) error
}

// Crediter начисляет монеты (economy.Service).
type Crediter interface {
	Credit(ctx context.Context, userID, amount int64, reason ledger.Reason, relatedID string) (*ledger.Entry, error)
}

// Activator включает тариф (subscription.Service).
type Activator interface {
	Activate(ctx context.Context, userID int64, plan subscription.Plan) (*subscription.State, error)
}

// Service применяет платежи.
type Service struct {
	store         Store
	economy       Crediter
	subscriptions Activator
	packages      map[string]int64
	metrics       *metrics.Metrics
}

// NewService создаёт сервис платежей. Пакеты монет берутся из COIN_PACKAGES.
func NewService(store Store, economy Crediter, subscriptions Activator, cfg *config.Config, m *metrics.Metrics) *Service {
	return &Service{
		store:         store,
		economy:       economy,
		subscriptions: subscriptions,
		packages:      cfg.CoinPackages,
		metrics:       m,
	}
}

// Packages возвращает каталог пакетов монет.
func (s *Service) Packages() map[string]int64 {
	out := make(map[string]int64, len(s.packages))
	for id, coins := range s.packages {
		out[id] = coins
	}
	return out
}

// ApplyPaymentSucceeded применяет оплату: бронь reference → начисление или активация → отметка.
// Повторное уведомление с тем же reference ничего не меняет и возвращает Duplicate.
func (s *Service) ApplyPaymentSucceeded(ctx context.Context, ev Event) (*Result, error) {
	p, err := s.newPayment(ev)
	if err != nil {
		s.metrics.Payment("unknown", "rejected")
		return nil, err
	}

	if err := s.store.ClaimPayment(ctx, p); err != nil {
		if errors.Is(err, common.ErrDuplicatePayment) {
			s.metrics.Payment(string(p.Kind), "duplicate")
			log.WithFields(log.Fields{
				"user_id":   ev.UserID,
				"reference": ev.ProviderReference,
			}).Info("Повторное уведомление о платеже, пропускаем")
			return &Result{Duplicate: true}, nil
		}
		s.metrics.Payment(string(p.Kind), "error")
		return nil, err
	}

	res, err := s.apply(ctx, p)
	if err != nil {
		s.metrics.Payment(string(p.Kind), "error")
		if relErr := s.store.ReleasePayment(context.WithoutCancel(ctx), p.ID); relErr != nil {
			log.WithError(relErr).WithFields(log.Fields{
				"payment_id": p.ID,
				"reference":  p.ProviderReference,
			}).Error("Не удалось снять бронь платежа после ошибки")
		}
		return nil, err
	}

	if err := s.store.MarkPaymentApplied(ctx, p.ID); err != nil {
		// Эффект уже применён, бронь защищает от повтора
		log.WithError(err).WithField("payment_id", p.ID).Warn("Платёж применён, но не отмечен")
	}

	s.metrics.Payment(string(p.Kind), "applied")
	log.WithFields(log.Fields{
		"user_id":   p.UserID,
		"kind":      p.Kind,
		"product":   p.ProductID,
		"reference": p.ProviderReference,
	}).Info("Платёж применён")
	return res, nil
}

func (s *Service) newPayment(ev Event) (*Payment, error) {
	if ev.ProviderReference == "" {
		return nil, fmt.Errorf("%w: пустой provider reference", common.ErrUnknownProduct)
	}
	p := &Payment{
		ID:                uuid.New(),
		ProviderReference: ev.ProviderReference,
		UserID:            ev.UserID,
		Amount:            ev.Amount,
	}
	switch {
	case ev.PackageID != "" && ev.PlanID == "":
		if _, ok := s.packages[ev.PackageID]; !ok {
			return nil, fmt.Errorf("%w: пакет %q", common.ErrUnknownProduct, ev.PackageID)
		}
		p.Kind, p.ProductID = KindCoins, ev.PackageID
	case ev.PlanID != "" && ev.PackageID == "":
		plan, err := subscription.ParsePlan(ev.PlanID)
		if err != nil || !plan.Purchasable() {
			return nil, fmt.Errorf("%w: тариф %q", common.ErrInvalidPlan, ev.PlanID)
		}
		p.Kind, p.ProductID = KindPlan, ev.PlanID
	default:
		return nil, fmt.Errorf("%w: нужен ровно один из package/plan", common.ErrUnknownProduct)
	}
	return p, nil
}

func (s *Service) apply(ctx context.Context, p *Payment) (*Result, error) {
	res := &Result{Applied: true, PaymentID: p.ID}
	switch p.Kind {
	case KindCoins:
		coins := s.packages[p.ProductID]
		entry, err := s.economy.Credit(ctx, p.UserID, coins, ledger.ReasonPurchase, p.ProviderReference)
		if err != nil {
			return nil, err
		}
		res.Coins = coins
		res.Balance = entry.BalanceAfter
	case KindPlan:
		st, err := s.subscriptions.Activate(ctx, p.UserID, subscription.Plan(p.ProductID))
		if err != nil {
			return nil, err
		}
		res.Subscription = st
	}
	return res, nil
}

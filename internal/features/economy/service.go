// Package economy — service.go содержит координатор списаний:
// условное списание, зависимая запись и компенсирующий возврат при её неудаче.
package economy

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/dating-core/internal/common"
	"serotonyl.ru/dating-core/internal/features/ledger"
	"serotonyl.ru/dating-core/internal/metrics"
)

// Store — атомарные изменения баланса с записью в журнал.
type Store interface {
	GetBalance(ctx context.Context, userID int64) (int64, error)
	Debit(ctx context.Context, userID, amount int64, reason ledger.Reason, relatedID string) (*ledger.Entry, error)
	Credit(ctx context.Context, userID, amount int64, reason ledger.Reason, relatedID string) (*ledger.Entry, error)
}

// DependentWrite — запись, ради которой списываются монеты (выдача доступа,
// начисление получателю подарка). Вызывается только после успешного списания.
type DependentWrite func(ctx context.Context, debit *ledger.Entry) (Outcome, error)

// Service управляет монетами. Все траты идут через Spend.
type Service struct {
	store   Store
	metrics *metrics.Metrics
}

// NewService создаёт новый сервис экономики.
func NewService(store Store, m *metrics.Metrics) *Service {
	return &Service{store: store, metrics: m}
}

// GetBalance возвращает текущий баланс пользователя.
func (s *Service) GetBalance(ctx context.Context, userID int64) (int64, error) {
	return s.store.GetBalance(ctx, userID)
}

// Credit начисляет монеты (покупка, бонус, корректировка).
func (s *Service) Credit(ctx context.Context, userID, amount int64, reason ledger.Reason, relatedID string) (*ledger.Entry, error) {
	if amount <= 0 {
		return nil, common.ErrInvalidAmount
	}
	if !reason.Valid() {
		return nil, fmt.Errorf("начисление: неизвестная причина %q", reason)
	}
	entry, err := s.store.Credit(ctx, userID, amount, reason, relatedID)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"user_id": userID,
		"amount":  amount,
		"reason":  reason,
		"related": relatedID,
		"balance": entry.BalanceAfter,
	}).Info("Монеты начислены")
	return entry, nil
}

// Spend списывает монеты и выполняет зависимую запись.
//
//  1. Условное списание (balance >= amount). При нехватке монет
//     *common.InsufficientFundsError, баланс и журнал не меняются.
//  2. dependent(ctx, debit). При dependent == nil зависимой записи нет.
//  3. Committed: готово. Superseded: возврат, результат успешный.
//     Ошибка: возврат и *RolledBackError с исходной причиной.
//  4. Если сам возврат не удался, возвращается common.ErrUnreconciledDebit
//     и пишется лог уровня error со всем контекстом для ручной сверки.
func (s *Service) Spend(ctx context.Context, req SpendRequest, dependent DependentWrite) (*SpendResult, error) {
	if req.Amount <= 0 {
		return nil, common.ErrInvalidAmount
	}
	if !req.Reason.Valid() {
		return nil, fmt.Errorf("списание: неизвестная причина %q", req.Reason)
	}

	debit, err := s.store.Debit(ctx, req.UserID, req.Amount, req.Reason, req.RelatedID)
	if err != nil {
		outcome := "error"
		if errors.Is(err, common.ErrInsufficientFunds) {
			outcome = "insufficient_funds"
		}
		s.metrics.Spend(string(req.Reason), outcome)
		return nil, err
	}

	result := &SpendResult{
		UserID:     req.UserID,
		Amount:     req.Amount,
		NewBalance: debit.BalanceAfter,
		Debit:      debit,
		Outcome:    Committed,
	}
	if dependent == nil {
		s.metrics.Spend(string(req.Reason), "committed")
		return result, nil
	}

	outcome, depErr := dependent(ctx, debit)
	if depErr == nil && outcome == Committed {
		s.metrics.Spend(string(req.Reason), "committed")
		log.WithFields(log.Fields{
			"user_id": req.UserID,
			"amount":  req.Amount,
			"reason":  req.Reason,
			"related": req.RelatedID,
			"balance": debit.BalanceAfter,
		}).Info("Монеты списаны")
		return result, nil
	}

	// Зависимая запись не закрепилась, возвращаем списание.
	// Возврат не должен зависеть от отмены контекста запроса.
	refund, refundErr := s.store.Credit(context.WithoutCancel(ctx), req.UserID, req.Amount, ledger.ReasonRefund, req.RelatedID)
	if refundErr != nil {
		s.metrics.UnreconciledDebit()
		log.WithError(refundErr).WithFields(log.Fields{
			"user_id":         req.UserID,
			"amount":          req.Amount,
			"reason":          req.Reason,
			"related":         req.RelatedID,
			"debit_entry_id":  debit.ID,
			"balance_after":   debit.BalanceAfter,
			"dependent_error": fmt.Sprint(depErr),
			"outcome":         outcome.String(),
		}).Error("ВНИМАНИЕ: списание без выдачи, возврат не выполнен, нужна ручная сверка")
		return nil, fmt.Errorf("%w: %w", common.ErrUnreconciledDebit, errors.Join(depErr, refundErr))
	}
	s.metrics.Refund(string(req.Reason))

	if depErr != nil {
		s.metrics.Spend(string(req.Reason), "rolled_back")
		log.WithError(depErr).WithFields(log.Fields{
			"user_id": req.UserID,
			"amount":  req.Amount,
			"related": req.RelatedID,
		}).Warn("Зависимая запись не удалась, монеты возвращены")
		return nil, &RolledBackError{Cause: depErr, Refund: refund}
	}

	s.metrics.Spend(string(req.Reason), "superseded")
	log.WithFields(log.Fields{
		"user_id": req.UserID,
		"amount":  req.Amount,
		"related": req.RelatedID,
	}).Debug("Ресурс уже выдан параллельным запросом, монеты возвращены")
	result.Refund = refund
	result.NewBalance = refund.BalanceAfter
	result.Outcome = Superseded
	return result, nil
}

// Gift переводит монеты от одного пользователя другому.
// Две строки баланса не меняются одной транзакцией: списание у отправителя
// идёт обычным Spend, а начисление получателю служит его зависимой записью.
func (s *Service) Gift(ctx context.Context, fromUserID, toUserID, amount int64) (*SpendResult, error) {
	if fromUserID == toUserID {
		return nil, common.ErrSelfAction
	}
	req := SpendRequest{
		UserID:    fromUserID,
		Amount:    amount,
		Reason:    ledger.ReasonGift,
		RelatedID: fmt.Sprintf("user:%d", toUserID),
	}
	return s.Spend(ctx, req, func(ctx context.Context, debit *ledger.Entry) (Outcome, error) {
		_, err := s.store.Credit(ctx, toUserID, amount, ledger.ReasonGift, fmt.Sprintf("user:%d", fromUserID))
		if err != nil {
			return Committed, err
		}
		return Committed, nil
	})
}

// Package ledger — service.go отдаёт историю движений и сверяет журнал с балансом.
package ledger

import (
	"context"
	"iter"

	log "github.com/sirupsen/logrus"
)

// DefaultPageSize — размер страницы истории по умолчанию.
const DefaultPageSize = 50

// Store — чтение журнала. Реализуется Repository и хранилищем в памяти.
type Store interface {
	ListEntries(ctx context.Context, userID int64, before *Cursor, limit int) ([]*Entry, error)
	Snapshot(ctx context.Context, userID int64) (*Reconciliation, error)
}

// Service предоставляет журнал только для чтения.
type Service struct {
	store Store
}

// NewService создаёт сервис журнала.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// History возвращает ленивую последовательность записей пользователя от новых
// к старым. Страницы по pageSize подгружаются по мере обхода; каждый новый
// range начинается заново с самой свежей записи. Ошибка чтения отдаётся
// последним элементом, после неё обход заканчивается.
func (s *Service) History(ctx context.Context, userID int64, pageSize int) iter.Seq2[*Entry, error] {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return func(yield func(*Entry, error) bool) {
		var cursor *Cursor
		for {
			page, err := s.store.ListEntries(ctx, userID, cursor, pageSize)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, e := range page {
				if !yield(e, nil) {
					return
				}
			}
			if len(page) < pageSize {
				return
			}
			cursor = After(page[len(page)-1])
		}
	}
}

// Recent возвращает до limit последних записей одним срезом.
func (s *Service) Recent(ctx context.Context, userID int64, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	return s.store.ListEntries(ctx, userID, nil, limit)
}

// Reconcile сверяет сумму дельт журнала с текущим балансом.
// Расхождение логируется как ошибка: журнал и баланс обязаны сходиться всегда.
func (s *Service) Reconcile(ctx context.Context, userID int64) (*Reconciliation, error) {
	rec, err := s.store.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !rec.Consistent() {
		log.WithFields(log.Fields{
			"user_id":         userID,
			"balance":         rec.Balance,
			"initial_balance": rec.InitialBalance,
			"sum_of_deltas":   rec.SumOfDeltas,
			"drift":           rec.Drift(),
		}).Error("Журнал не сходится с балансом")
	}
	return rec, nil
}

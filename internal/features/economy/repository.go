// Package economy — repository.go выполняет изменения баланса в таблице users.
// Каждое изменение — условный UPDATE и запись в журнал в одной транзакции БД,
// так что баланс и журнал не могут разойтись.
package economy

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"serotonyl.ru/dating-core/internal/common"
	"serotonyl.ru/dating-core/internal/db/postgres"
	"serotonyl.ru/dating-core/internal/features/ledger"
)

// Repository предоставляет методы изменения баланса.
type Repository struct {
	db postgres.DB
}

// NewRepository создаёт новый репозиторий экономики.
func NewRepository(db postgres.DB) *Repository {
	return &Repository{db: db}
}

// GetBalance возвращает текущий баланс пользователя.
func (r *Repository) GetBalance(ctx context.Context, userID int64) (int64, error) {
	var balance int64
	err := r.db.QueryRow(ctx, `SELECT balance FROM users WHERE id = $1`, userID).Scan(&balance)
	if err != nil {
		if postgres.IsNoRows(err) {
			return 0, fmt.Errorf("баланс (user_id=%d): %w", userID, common.ErrUserNotFound)
		}
		return 0, postgres.Wrap(err, "ошибка получения баланса")
	}
	return balance, nil
}

// Debit списывает amount, только если на счёте не меньше amount.
// Проверка и списание — один UPDATE (compare-and-swap на стороне БД),
// без чтения баланса в приложении.
func (r *Repository) Debit(ctx context.Context, userID, amount int64, reason ledger.Reason, relatedID string) (*ledger.Entry, error) {
	entry := &ledger.Entry{UserID: userID, Delta: -amount, Reason: reason, RelatedEntityID: relatedID}

	err := postgres.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			UPDATE users
			SET balance = balance - $2, updated_at = NOW()
			WHERE id = $1 AND balance >= $2
			RETURNING balance
		`, userID, amount).Scan(&entry.BalanceAfter)
		if postgres.IsNoRows(err) {
			return r.insufficient(ctx, tx, userID, amount)
		}
		if err != nil {
			return postgres.Wrap(err, "ошибка списания")
		}
		return ledger.Append(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// insufficient объясняет, почему условное списание не затронуло строк:
// пользователя нет или не хватает монет.
func (r *Repository) insufficient(ctx context.Context, q postgres.Querier, userID, amount int64) error {
	var balance int64
	err := q.QueryRow(ctx, `SELECT balance FROM users WHERE id = $1`, userID).Scan(&balance)
	if postgres.IsNoRows(err) {
		return fmt.Errorf("списание (user_id=%d): %w", userID, common.ErrUserNotFound)
	}
	if err != nil {
		return postgres.Wrap(err, "ошибка получения баланса")
	}
	return &common.InsufficientFundsError{UserID: userID, Required: amount, Available: balance}
}

// Credit начисляет amount и пишет запись в журнал.
// Используется для покупок, подарков, бонусов и компенсирующих возвратов.
func (r *Repository) Credit(ctx context.Context, userID, amount int64, reason ledger.Reason, relatedID string) (*ledger.Entry, error) {
	entry := &ledger.Entry{UserID: userID, Delta: amount, Reason: reason, RelatedEntityID: relatedID}

	err := postgres.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			UPDATE users
			SET balance = balance + $2, updated_at = NOW()
			WHERE id = $1
			RETURNING balance
		`, userID, amount).Scan(&entry.BalanceAfter)
		if postgres.IsNoRows(err) {
			return fmt.Errorf("начисление (user_id=%d): %w", userID, common.ErrUserNotFound)
		}
		if err != nil {
			return postgres.Wrap(err, "ошибка начисления")
		}
		return ledger.Append(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

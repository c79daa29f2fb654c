// Package ledger — repository.go выполняет операции с таблицей ledger_entries.
package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"serotonyl.ru/dating-core/internal/common"
	"serotonyl.ru/dating-core/internal/db/postgres"
)

// Repository читает журнал. Запись идёт только через Append внутри
// транзакции, меняющей баланс.
type Repository struct {
	db postgres.DB
}

// NewRepository создаёт репозиторий журнала.
func NewRepository(db postgres.DB) *Repository {
	return &Repository{db: db}
}

// Append добавляет запись в журнал через q (обычно pgx.Tx той же операции,
// что изменила баланс). Заполняет ID и CreatedAt.
func Append(ctx context.Context, q postgres.Querier, e *Entry) error {
	if !e.Reason.Valid() {
		return fmt.Errorf("запись журнала: неизвестная причина %q", e.Reason)
	}
	var related *string
	if e.RelatedEntityID != "" {
		related = &e.RelatedEntityID
	}
	err := q.QueryRow(ctx, `
		INSERT INTO ledger_entries (user_id, delta, balance_after, reason, related_entity_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, e.UserID, e.Delta, e.BalanceAfter, string(e.Reason), related).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return postgres.Wrap(err, "ошибка записи в журнал")
	}
	return nil
}

// ListEntries возвращает до limit записей пользователя от новых к старым,
// начиная сразу после курсора (nil — с самой новой).
func (r *Repository) ListEntries(ctx context.Context, userID int64, before *Cursor, limit int) ([]*Entry, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if before == nil {
		rows, err = r.db.Query(ctx, `
			SELECT id, user_id, delta, balance_after, reason, COALESCE(related_entity_id, ''), created_at
			FROM ledger_entries
			WHERE user_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		`, userID, limit)
	} else {
		rows, err = r.db.Query(ctx, `
			SELECT id, user_id, delta, balance_after, reason, COALESCE(related_entity_id, ''), created_at
			FROM ledger_entries
			WHERE user_id = $1 AND (created_at, id) < ($2, $3)
			ORDER BY created_at DESC, id DESC
			LIMIT $4
		`, userID, before.CreatedAt, before.ID, limit)
	}
	if err != nil {
		return nil, postgres.Wrap(err, "ошибка чтения журнала")
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		var (
			e      Entry
			reason string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Delta, &e.BalanceAfter, &reason, &e.RelatedEntityID, &e.CreatedAt); err != nil {
			return nil, postgres.Wrap(err, "ошибка сканирования записи журнала")
		}
		if e.Reason, err = ParseReason(reason); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.Wrap(err, "ошибка чтения строк журнала")
	}
	return out, nil
}

// Snapshot возвращает текущий и стартовый баланс пользователя и сумму всех дельт
// одним запросом, чтобы сверка видела согласованный срез.
func (r *Repository) Snapshot(ctx context.Context, userID int64) (*Reconciliation, error) {
	rec := &Reconciliation{UserID: userID}
	err := r.db.QueryRow(ctx, `
		SELECT u.balance, u.initial_balance,
		       COALESCE((SELECT SUM(delta) FROM ledger_entries WHERE user_id = u.id), 0)::BIGINT
		FROM users u
		WHERE u.id = $1
	`, userID).Scan(&rec.Balance, &rec.InitialBalance, &rec.SumOfDeltas)
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, fmt.Errorf("сверка (user_id=%d): %w", userID, common.ErrUserNotFound)
		}
		return nil, postgres.Wrap(err, "ошибка сверки журнала")
	}
	return rec, nil
}

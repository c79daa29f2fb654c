// Package payments — repository.go работает с таблицей payments.
package payments

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"serotonyl.ru/dating-core/internal/common"
	"serotonyl.ru/dating-core/internal/db/postgres"
)

// Repository работает с таблицей payments.
type Repository struct {
	db postgres.DB
}

// NewRepository создаёт репозиторий платежей.
func NewRepository(db postgres.DB) *Repository {
	return &Repository{db: db}
}

// ClaimPayment резервирует provider reference. Повтор — common.ErrDuplicatePayment.
func (r *Repository) ClaimPayment(ctx context.Context, p *Payment) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO payments (id, provider_reference, user_id, amount, kind, product_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, p.ID, p.ProviderReference, p.UserID, p.Amount, string(p.Kind), p.ProductID, string(StatusClaimed)).Scan(&p.CreatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("платёж %q: %w", p.ProviderReference, common.ErrDuplicatePayment)
		}
		if postgres.IsForeignKeyViolation(err) {
			return fmt.Errorf("платёж %q (user_id=%d): %w", p.ProviderReference, p.UserID, common.ErrUserNotFound)
		}
		return postgres.Wrap(err, "ошибка записи платежа")
	}
	p.Status = StatusClaimed
	return nil
}

// ReleasePayment удаляет неприменённую бронь, чтобы провайдер мог повторить уведомление.
func (r *Repository) ReleasePayment(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM payments WHERE id = $1 AND status = $2`, id, string(StatusClaimed))
	if err != nil {
		return postgres.Wrap(err, "ошибка снятия брони платежа")
	}
	return nil
}

// MarkPaymentApplied помечает платёж применённым.
func (r *Repository) MarkPaymentApplied(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		UPDATE payments SET status = $2, applied_at = NOW() WHERE id = $1
	`, id, string(StatusApplied))
	if err != nil {
		return postgres.Wrap(err, "ошибка отметки платежа")
	}
	return nil
}

// Package members — repository.go отвечает за операции с таблицей users.
// Каждая функция выполняет один SQL-запрос и возвращает результат или ошибку.
package members

import (
	"context"
	"fmt"
	"time"

	"serotonyl.ru/dating-core/internal/common"
	"serotonyl.ru/dating-core/internal/db/postgres"
	"serotonyl.ru/dating-core/internal/features/subscription"
)

type Repository struct {
	db postgres.DB
}

func NewRepository(db postgres.DB) *Repository {
	return &Repository{db: db}
}

// CreateUser создаёт запись пользователя со стартовым балансом.
// Повторный вызов ничего не меняет (ON CONFLICT DO NOTHING) и возвращает false.
func (r *Repository) CreateUser(ctx context.Context, userID, startingBalance int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO users (id, balance, initial_balance)
		VALUES ($1, $2, $2)
		ON CONFLICT (id) DO NOTHING
	`, userID, startingBalance)
	if err != nil {
		return false, postgres.Wrap(err, "ошибка создания пользователя")
	}
	return tag.RowsAffected() == 1, nil
}

// GetUser: если не найден — ошибка с common.ErrUserNotFound.
func (r *Repository) GetUser(ctx context.Context, userID int64) (*User, error) {
	var (
		u            User
		plan, status string
		periodEnd    *time.Time
	)
	err := r.db.QueryRow(ctx, `
		SELECT id, balance, initial_balance, plan, sub_status, current_period_end,
		       cancel_at_period_end, created_at, updated_at
		FROM users
		WHERE id = $1
	`, userID).Scan(
		&u.ID, &u.Balance, &u.InitialBalance, &plan, &status, &periodEnd,
		&u.Subscription.CancelAtPeriodEnd, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, fmt.Errorf("пользователь (user_id=%d): %w", userID, common.ErrUserNotFound)
		}
		return nil, postgres.Wrap(err, fmt.Sprintf("ошибка чтения пользователя (user_id=%d)", userID))
	}

	u.Subscription.UserID = u.ID
	if u.Subscription.Plan, err = subscription.ParsePlan(plan); err != nil {
		return nil, err
	}
	if u.Subscription.Status, err = subscription.ParseStatus(status); err != nil {
		return nil, err
	}
	if periodEnd != nil {
		u.Subscription.CurrentPeriodEnd = periodEnd.UTC()
	}
	return &u, nil
}

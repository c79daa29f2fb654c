// Package subscription — repository.go выполняет условные обновления подписок в таблице users.
// Каждый переход состояния — один UPDATE с проверкой исходного состояния в WHERE,
// поэтому параллельные вызовы не могут применить переход дважды.
package subscription

import (
	"context"
	"fmt"
	"time"

	"serotonyl.ru/dating-core/internal/common"
	"serotonyl.ru/dating-core/internal/db/postgres"
)

// Repository работает с колонками подписки в таблице users.
type Repository struct {
	db postgres.DB
}

// NewRepository создаёт репозиторий подписок.
func NewRepository(db postgres.DB) *Repository {
	return &Repository{db: db}
}

const stateColumns = `id, plan, sub_status, current_period_end, cancel_at_period_end`

func scanState(row interface{ Scan(dest ...any) error }) (*State, error) {
	var (
		st           State
		plan, status string
		periodEnd    *time.Time
		err          error
	)
	if err = row.Scan(&st.UserID, &plan, &status, &periodEnd, &st.CancelAtPeriodEnd); err != nil {
		return nil, err
	}
	if st.Plan, err = ParsePlan(plan); err != nil {
		return nil, err
	}
	if st.Status, err = ParseStatus(status); err != nil {
		return nil, err
	}
	if periodEnd != nil {
		st.CurrentPeriodEnd = periodEnd.UTC()
	}
	return &st, nil
}

// GetSubscription возвращает состояние подписки пользователя.
func (r *Repository) GetSubscription(ctx context.Context, userID int64) (*State, error) {
	st, err := scanState(r.db.QueryRow(ctx, `SELECT `+stateColumns+` FROM users WHERE id = $1`, userID))
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, fmt.Errorf("подписка (user_id=%d): %w", userID, common.ErrUserNotFound)
		}
		return nil, postgres.Wrap(err, "ошибка чтения подписки")
	}
	return st, nil
}

// ActivateSubscription переводит подписку в active с новым периодом.
func (r *Repository) ActivateSubscription(ctx context.Context, userID int64, plan Plan, periodEnd time.Time) (*State, error) {
	st, err := scanState(r.db.QueryRow(ctx, `
		UPDATE users
		SET plan = $2, sub_status = 'active', current_period_end = $3,
		    cancel_at_period_end = FALSE, updated_at = NOW()
		WHERE id = $1
		RETURNING `+stateColumns,
		userID, string(plan), periodEnd))
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, fmt.Errorf("активация (user_id=%d): %w", userID, common.ErrUserNotFound)
		}
		return nil, postgres.Wrap(err, "ошибка активации подписки")
	}
	return st, nil
}

// SetCancelAtPeriodEnd меняет флаг отмены только у активной подписки.
func (r *Repository) SetCancelAtPeriodEnd(ctx context.Context, userID int64, cancel bool) (*State, error) {
	st, err := scanState(r.db.QueryRow(ctx, `
		UPDATE users
		SET cancel_at_period_end = $2, updated_at = NOW()
		WHERE id = $1 AND sub_status = 'active'
		RETURNING `+stateColumns,
		userID, cancel))
	if err == nil {
		return st, nil
	}
	if !postgres.IsNoRows(err) {
		return nil, postgres.Wrap(err, "ошибка изменения флага отмены")
	}
	// Ноль строк: либо пользователя нет, либо подписка не активна
	if _, getErr := r.GetSubscription(ctx, userID); getErr != nil {
		return nil, getErr
	}
	return nil, common.ErrNoActiveSubscription
}

// TerminateSubscription досрочно прекращает активную подписку (status=canceled).
func (r *Repository) TerminateSubscription(ctx context.Context, userID int64, now time.Time) (*State, error) {
	st, err := scanState(r.db.QueryRow(ctx, `
		UPDATE users
		SET sub_status = 'canceled', current_period_end = $2,
		    cancel_at_period_end = FALSE, updated_at = NOW()
		WHERE id = $1 AND sub_status = 'active'
		RETURNING `+stateColumns,
		userID, now))
	if err == nil {
		return st, nil
	}
	if !postgres.IsNoRows(err) {
		return nil, postgres.Wrap(err, "ошибка прекращения подписки")
	}
	if _, getErr := r.GetSubscription(ctx, userID); getErr != nil {
		return nil, getErr
	}
	return nil, common.ErrNoActiveSubscription
}

// ListDue возвращает активные подписки с истёкшим к now периодом,
// упорядоченные по user_id, начиная после afterUserID.
func (r *Repository) ListDue(ctx context.Context, now time.Time, afterUserID int64, limit int) ([]Due, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, current_period_end, cancel_at_period_end
		FROM users
		WHERE sub_status = 'active' AND current_period_end <= $1 AND id > $2
		ORDER BY id
		LIMIT $3
	`, now, afterUserID, limit)
	if err != nil {
		return nil, postgres.Wrap(err, "ошибка выборки подписок к продлению")
	}
	defer rows.Close()

	var out []Due
	for rows.Next() {
		var d Due
		if err := rows.Scan(&d.UserID, &d.CurrentPeriodEnd, &d.CancelAtPeriodEnd); err != nil {
			return nil, postgres.Wrap(err, "ошибка сканирования подписки")
		}
		d.CurrentPeriodEnd = d.CurrentPeriodEnd.UTC()
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.Wrap(err, "ошибка чтения строк подписок")
	}
	return out, nil
}

// RenewPeriod сдвигает конец периода с observedEnd на newEnd.
// Срабатывает, только если подписка всё ещё активна, без флага отмены,
// а конец периода не сдвинут никем другим и уже наступил.
func (r *Repository) RenewPeriod(ctx context.Context, userID int64, observedEnd, newEnd, now time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE users
		SET current_period_end = $3, updated_at = NOW()
		WHERE id = $1
		  AND sub_status = 'active'
		  AND cancel_at_period_end = FALSE
		  AND current_period_end = $2
		  AND current_period_end <= $4
	`, userID, observedEnd, newEnd, now)
	if err != nil {
		return false, postgres.Wrap(err, "ошибка продления подписки")
	}
	return tag.RowsAffected() == 1, nil
}

// ExpireSubscription переводит подписку с флагом отмены и истёкшим периодом в expired.
// Тариф остаётся для отображения.
func (r *Repository) ExpireSubscription(ctx context.Context, userID int64, observedEnd, now time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE users
		SET sub_status = 'expired', updated_at = NOW()
		WHERE id = $1
		  AND sub_status = 'active'
		  AND cancel_at_period_end = TRUE
		  AND current_period_end = $2
		  AND current_period_end <= $3
	`, userID, observedEnd, now)
	if err != nil {
		return false, postgres.Wrap(err, "ошибка завершения подписки")
	}
	return tag.RowsAffected() == 1, nil
}

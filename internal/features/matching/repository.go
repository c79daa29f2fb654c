// Package matching — repository.go работает с таблицами interest_signals и matches.
package matching

import (
	"context"
	"fmt"

	"serotonyl.ru/dating-core/internal/common"
	"serotonyl.ru/dating-core/internal/db/postgres"
)

// Repository работает с сигналами и матчами.
type Repository struct {
	db postgres.DB
}

// NewRepository создаёт репозиторий матчинга.
func NewRepository(db postgres.DB) *Repository {
	return &Repository{db: db}
}

const matchColumns = `id, participant_low, participant_high, initiated_by, matched_at, is_active, unmatched_at`

func scanMatch(row interface{ Scan(dest ...any) error }) (*Match, error) {
	var m Match
	err := row.Scan(&m.ID, &m.Pair.Low, &m.Pair.High, &m.InitiatedBy, &m.MatchedAt, &m.IsActive, &m.UnmatchedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// InsertSignal записывает сигнал. Повтор — не ошибка: created=false.
func (r *Repository) InsertSignal(ctx context.Context, fromUserID, toUserID int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO interest_signals (from_user_id, to_user_id)
		VALUES ($1, $2)
		ON CONFLICT (from_user_id, to_user_id) DO NOTHING
	`, fromUserID, toUserID)
	if err != nil {
		if postgres.IsForeignKeyViolation(err) {
			return false, fmt.Errorf("сигнал %d→%d: %w", fromUserID, toUserID, common.ErrUserNotFound)
		}
		return false, postgres.Wrap(err, "ошибка записи сигнала")
	}
	return tag.RowsAffected() == 1, nil
}

// SignalExists проверяет наличие сигнала from → to.
func (r *Repository) SignalExists(ctx context.Context, fromUserID, toUserID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM interest_signals WHERE from_user_id = $1 AND to_user_id = $2)
	`, fromUserID, toUserID).Scan(&exists)
	if err != nil {
		return false, postgres.Wrap(err, "ошибка проверки сигнала")
	}
	return exists, nil
}

// CreateMatch создаёт матч. Пара уже существует — common.ErrAlreadyMatched.
func (r *Repository) CreateMatch(ctx context.Context, pair Pair, initiatedBy int64) (*Match, error) {
	m, err := scanMatch(r.db.QueryRow(ctx, `
		INSERT INTO matches (participant_low, participant_high, initiated_by)
		VALUES ($1, $2, $3)
		RETURNING `+matchColumns,
		pair.Low, pair.High, initiatedBy))
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return nil, fmt.Errorf("матч %d-%d: %w", pair.Low, pair.High, common.ErrAlreadyMatched)
		}
		if postgres.IsForeignKeyViolation(err) {
			return nil, fmt.Errorf("матч %d-%d: %w", pair.Low, pair.High, common.ErrUserNotFound)
		}
		return nil, postgres.Wrap(err, "ошибка создания матча")
	}
	return m, nil
}

// GetMatch возвращает матч пары или nil, если его нет.
func (r *Repository) GetMatch(ctx context.Context, pair Pair) (*Match, error) {
	m, err := scanMatch(r.db.QueryRow(ctx, `
		SELECT `+matchColumns+`
		FROM matches
		WHERE participant_low = $1 AND participant_high = $2
	`, pair.Low, pair.High))
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, nil
		}
		return nil, postgres.Wrap(err, "ошибка чтения матча")
	}
	return m, nil
}

// ListMatches возвращает активные матчи пользователя, новые первыми.
func (r *Repository) ListMatches(ctx context.Context, userID int64) ([]Match, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+matchColumns+`
		FROM matches
		WHERE (participant_low = $1 OR participant_high = $1) AND is_active
		ORDER BY matched_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, postgres.Wrap(err, "ошибка выборки матчей")
	}
	defer rows.Close()

	var out []Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, postgres.Wrap(err, "ошибка сканирования матча")
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.Wrap(err, "ошибка чтения матчей")
	}
	return out, nil
}

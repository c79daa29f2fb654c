// Package entitlement — repository.go работает с таблицей photo_unlocks.
package entitlement

import (
	"context"
	"fmt"

	"serotonyl.ru/dating-core/internal/common"
	"serotonyl.ru/dating-core/internal/db/postgres"
)

// Repository работает с таблицей photo_unlocks.
type Repository struct {
	db postgres.DB
}

// NewRepository создаёт репозиторий доступов.
func NewRepository(db postgres.DB) *Repository {
	return &Repository{db: db}
}

// CreateGrant вставляет доступ. Уникальный ключ (subject_id, object_id)
// превращает повторную вставку в common.ErrAlreadyGranted, внешний ключ
// на users — ссылку на несуществующего пользователя в common.ErrUserNotFound.
func (r *Repository) CreateGrant(ctx context.Context, subjectID, objectID, cost int64) (*Grant, error) {
	g := Grant{SubjectID: subjectID, ObjectID: objectID, Cost: cost}
	err := r.db.QueryRow(ctx, `
		INSERT INTO photo_unlocks (subject_id, object_id, cost)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, subjectID, objectID, cost).Scan(&g.ID, &g.CreatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return nil, fmt.Errorf("доступ %d→%d: %w", subjectID, objectID, common.ErrAlreadyGranted)
		}
		if postgres.IsForeignKeyViolation(err) {
			return nil, fmt.Errorf("доступ %d→%d: %w", subjectID, objectID, common.ErrUserNotFound)
		}
		return nil, postgres.Wrap(err, "ошибка выдачи доступа")
	}
	return &g, nil
}

// HasGrant проверяет наличие доступа.
func (r *Repository) HasGrant(ctx context.Context, subjectID, objectID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM photo_unlocks WHERE subject_id = $1 AND object_id = $2)
	`, subjectID, objectID).Scan(&exists)
	if err != nil {
		return false, postgres.Wrap(err, "ошибка проверки доступа")
	}
	return exists, nil
}

// ListGrants возвращает всех, чьи фото открыл пользователь, новые первыми.
func (r *Repository) ListGrants(ctx context.Context, subjectID int64) ([]Grant, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, subject_id, object_id, cost, created_at
		FROM photo_unlocks
		WHERE subject_id = $1
		ORDER BY created_at DESC, id DESC
	`, subjectID)
	if err != nil {
		return nil, postgres.Wrap(err, "ошибка выборки доступов")
	}
	defer rows.Close()

	var out []Grant
	for rows.Next() {
		var g Grant
		if err := rows.Scan(&g.ID, &g.SubjectID, &g.ObjectID, &g.Cost, &g.CreatedAt); err != nil {
			return nil, postgres.Wrap(err, "ошибка сканирования доступа")
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.Wrap(err, "ошибка чтения доступов")
	}
	return out, nil
}

package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"serotonyl.ru/dating-core/internal/common"
)

// SQLSTATE-коды нарушений ограничений.
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// IsUniqueViolation проверяет, что ошибка — нарушение UNIQUE-ограничения.
// Именно по нему (а не по предварительной проверке) ядро определяет
// проигравшего в гонке дубликатов.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// IsForeignKeyViolation — ссылка на несуществующую строку (обычно users.id).
// Это ошибка запроса, а не сбой хранилища.
func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation
}

// IsNoRows — запрос не вернул строк.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// Wrap помечает ошибку драйвера как недоступность хранилища,
// сохраняя исходную причину для errors.Is/As.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", msg, common.ErrStorageUnavailable, err)
}

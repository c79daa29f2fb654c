// Package postgres — вспомогательные функции для работы с БД.
// queries.go содержит исполнение версионированных миграций.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	log "github.com/sirupsen/logrus"
)

// RunMigrations создаёт таблицу schema_migrations и применяет все миграции по порядку.
// Уже применённые версии пропускаются, поэтому вызов идемпотентен.
func RunMigrations(ctx context.Context, db DB) error {
	_, err := db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)
	`)
	if err != nil {
		return Wrap(err, "ошибка создания таблицы миграций")
	}

	for _, m := range migrations {
		applied, err := ExecMigrationSQL(ctx, db, m.version, m.sql)
		if err != nil {
			return fmt.Errorf("миграция %d (%s): %w", m.version, m.name, err)
		}
		if applied {
			log.WithField("version", m.version).Infof("Миграция %s применена", m.name)
		}
	}
	return nil
}

// ExecMigrationSQL выполняет один SQL-запрос миграции в транзакции.
// Если запрос упадёт — транзакция откатится автоматически.
// Возвращает true, если миграция применена сейчас, и false, если уже была.
func ExecMigrationSQL(ctx context.Context, db DB, version int, sql string) (bool, error) {
	applied := false
	err := WithTx(ctx, db, func(tx pgx.Tx) error {
		// Блокировка на уровне транзакции: параллельные процессы применяют миграции по очереди
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(7203001)"); err != nil {
			return Wrap(err, "ошибка блокировки миграций")
		}

		var exists bool
		err := tx.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)", version,
		).Scan(&exists)
		if err != nil {
			return Wrap(err, "ошибка проверки миграции")
		}
		if exists {
			return nil
		}

		if _, err := tx.Exec(ctx, sql); err != nil {
			return Wrap(err, fmt.Sprintf("ошибка выполнения миграции %d", version))
		}
		if _, err := tx.Exec(ctx,
			"INSERT INTO schema_migrations (version) VALUES ($1)", version,
		); err != nil {
			return Wrap(err, "ошибка записи версии миграции")
		}
		applied = true
		return nil
	})
	return applied, err
}

//go:build integration

// Package pgtest поднимает PostgreSQL в контейнере для интеграционных тестов.
// Один контейнер на тестовый бинарник, перед каждым тестом таблицы очищаются.
//
// Запуск: go test -tags=integration ./...
package pgtest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"serotonyl.ru/dating-core/internal/db/postgres"
)

var (
	once    sync.Once
	pool    *pgxpool.Pool
	initErr error
)

// Pool возвращает пул к базе с применёнными миграциями и пустыми таблицами.
// Без Docker тест пропускается.
func Pool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("интеграционный тест пропущен в режиме -short")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	once.Do(func() {
		pool, initErr = start(context.Background())
	})
	require.NoError(t, initErr)

	_, err := pool.Exec(context.Background(), `
		TRUNCATE payments, matches, interest_signals, photo_unlocks, ledger_entries, users
		RESTART IDENTITY CASCADE
	`)
	require.NoError(t, err)
	return pool
}

// User создаёт пользователя с начальным балансом.
func User(t *testing.T, db postgres.DB, userID, balance int64) {
	t.Helper()
	_, err := db.Exec(context.Background(),
		`INSERT INTO users (id, balance, initial_balance) VALUES ($1, $2, $2)`, userID, balance)
	require.NoError(t, err)
}

// Контейнер не останавливается явно: после выхода процесса его убирает Ryuk.
func start(ctx context.Context) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("dating_core"),
		tcpostgres.WithUsername("dating"),
		tcpostgres.WithPassword("dating"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("не удалось запустить контейнер postgres: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, fmt.Errorf("не удалось получить строку подключения: %w", err)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", err)
	}
	cfg.MaxConns = 32
	p, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания пула: %w", err)
	}

	if err := postgres.RunMigrations(ctx, p); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

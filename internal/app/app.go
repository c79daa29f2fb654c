// Package app инициализирует все компоненты ядра.
// app.go — точка сборки: создаёт БД-пул, кэш, репозитории и сервисы
// и собирает всё в один объект App, который вызывает внешний HTTP-слой.
package app

import (
	"context"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/dating-core/internal/cache"
	"serotonyl.ru/dating-core/internal/config"
	"serotonyl.ru/dating-core/internal/db/postgres"
	"serotonyl.ru/dating-core/internal/features/economy"
	"serotonyl.ru/dating-core/internal/features/entitlement"
	"serotonyl.ru/dating-core/internal/features/ledger"
	"serotonyl.ru/dating-core/internal/features/matching"
	"serotonyl.ru/dating-core/internal/features/members"
	"serotonyl.ru/dating-core/internal/features/payments"
	"serotonyl.ru/dating-core/internal/features/subscription"
	"serotonyl.ru/dating-core/internal/jobs"
	"serotonyl.ru/dating-core/internal/metrics"
	"serotonyl.ru/dating-core/internal/store/memory"
)

// App содержит все компоненты приложения.
type App struct {
	Members       *members.Service
	Ledger        *ledger.Service
	Economy       *economy.Service
	Entitlements  *entitlement.Service
	Matching      *matching.Service
	Subscriptions *subscription.Service
	Payments      *payments.Service
	Scheduler     *jobs.Scheduler
	Metrics       *metrics.Metrics

	db    *pgxpool.Pool
	cache cache.Cache
}

// Stores — хранилища, на которых собираются сервисы.
type Stores struct {
	Members       members.Store
	Ledger        ledger.Store
	Economy       economy.Store
	Entitlements  entitlement.Store
	Matching      matching.Store
	Subscriptions subscription.Store
	Payments      payments.Store
}

// PostgresStores возвращает репозитории поверх пула (или транзакции в тестах).
func PostgresStores(db postgres.DB) Stores {
	return Stores{
		Members:       members.NewRepository(db),
		Ledger:        ledger.NewRepository(db),
		Economy:       economy.NewRepository(db),
		Entitlements:  entitlement.NewRepository(db),
		Matching:      matching.NewRepository(db),
		Subscriptions: subscription.NewRepository(db),
		Payments:      payments.NewRepository(db),
	}
}

// MemoryStores возвращает одно хранилище в памяти под всеми интерфейсами.
func MemoryStores(s *memory.Store) Stores {
	return Stores{
		Members:       s,
		Ledger:        s,
		Economy:       s,
		Entitlements:  s,
		Matching:      s,
		Subscriptions: s,
		Payments:      s,
	}
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен: компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// === 1. База данных ===
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}

	// Запускаем миграции
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка миграций: %w", err)
	}

	// === 2. Кэш доступов ===
	c, err := cache.New(ctx, cfg)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка подключения к кэшу: %w", err)
	}

	// === 3. Сервисы ===
	a := Assemble(cfg, PostgresStores(pool), c, metrics.Default())
	a.db = pool
	return a, nil
}

// NewInMemory собирает приложение без внешних зависимостей: хранилище и кэш в памяти,
// метрики в отдельном реестре.
func NewInMemory(cfg *config.Config) (*App, *memory.Store) {
	s := memory.New()
	a := Assemble(cfg, MemoryStores(s), cache.NewMemoryCache(), metrics.MustNew(prometheus.NewRegistry()))
	return a, s
}

// Assemble связывает сервисы поверх готовых хранилищ.
func Assemble(cfg *config.Config, st Stores, c cache.Cache, m *metrics.Metrics) *App {
	memberService := members.NewService(st.Members, cfg)
	ledgerService := ledger.NewService(st.Ledger)
	economyService := economy.NewService(st.Economy, m)
	entitlementService := entitlement.NewService(st.Entitlements, economyService, c, cfg, m)
	matchingService := matching.NewService(st.Matching, m)
	subscriptionService := subscription.NewService(st.Subscriptions, cfg, m)
	paymentService := payments.NewService(st.Payments, economyService, subscriptionService, cfg, m)

	// === Планировщик задач ===
	scheduler := jobs.NewScheduler(subscriptionService, cfg)

	return &App{
		Members:       memberService,
		Ledger:        ledgerService,
		Economy:       economyService,
		Entitlements:  entitlementService,
		Matching:      matchingService,
		Subscriptions: subscriptionService,
		Payments:      paymentService,
		Scheduler:     scheduler,
		Metrics:       m,
		cache:         c,
	}
}

// Close освобождает соединения с БД и кэшем.
func (a *App) Close() {
	if closer, ok := a.cache.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			log.WithError(err).Warn("Ошибка закрытия кэша")
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}

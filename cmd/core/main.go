// Package main — точка входа ядра.
// Команды: serve (планировщик и /metrics), renew (разовый проход продления),
// migrate (только миграции), reconcile (сверка журнала пользователя).
// serve поддерживает graceful shutdown по SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"serotonyl.ru/dating-core/internal/app"
	"serotonyl.ru/dating-core/internal/config"
	"serotonyl.ru/dating-core/internal/db/postgres"
)

func main() {
	// Настраиваем логирование
	setupLogging()

	if err := newRootCmd().Execute(); err != nil {
		log.WithError(err).Fatal("Команда завершилась с ошибкой")
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "core",
		Short:         "Ядро монетизации: монеты, доступы, матчи, подписки",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newRenewCmd(), newMigrateCmd(), newReconcileCmd())
	return root
}

// loadConfig загружает конфигурацию и выставляет уровень логирования из неё.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if level, err := log.ParseLevel(cfg.AppLogLevel); err == nil {
		log.SetLevel(level)
	}
	return cfg, nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Запустить планировщик продления и эндпоинт /metrics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			log.Info("=== Ядро запускается ===")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			// Контекст с отменой для graceful shutdown
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			// Инициализируем приложение (БД, кэш, сервисы)
			application, err := app.New(ctx, cfg)
			if err != nil {
				return fmt.Errorf("не удалось инициализировать приложение: %w", err)
			}
			defer application.Close()

			// Запускаем планировщик задач (cron)
			if err := application.Scheduler.Start(ctx); err != nil {
				return err
			}
			defer application.Scheduler.Stop()

			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			srv := &http.Server{
				Addr:              cfg.MetricsAddr,
				Handler:           mux,
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.WithError(err).Error("Сервер метрик остановлен с ошибкой")
				}
			}()

			log.WithField("metrics_addr", cfg.MetricsAddr).Info("=== Ядро готово к работе ===")

			// Ждём сигнала остановки
			<-ctx.Done()
			log.Info("Получен сигнал остановки, завершаемся...")

			shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
			defer stop()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.WithError(err).Warn("Сервер метрик не остановился штатно")
			}

			log.Info("=== Ядро остановлено ===")
			return nil
		},
	}
}

func newRenewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "renew",
		Short: "Выполнить проход продления подписок один раз",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			application, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("не удалось инициализировать приложение: %w", err)
			}
			defer application.Close()

			report, err := application.Scheduler.RunOnce(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "renewed=%d expired=%d skipped=%d failed=%d\n",
				report.Renewed, report.Expired, report.Skipped, report.Failed)
			if err != nil {
				return err
			}
			if report.Failed > 0 {
				return fmt.Errorf("не продлено подписок: %d", report.Failed)
			}
			return nil
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Применить миграции схемы и выйти",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			pool, err := postgres.NewPool(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("ошибка подключения к БД: %w", err)
			}
			defer pool.Close()
			return postgres.RunMigrations(cmd.Context(), pool)
		},
	}
}

func newReconcileCmd() *cobra.Command {
	var userID int64
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Сверить журнал пользователя с балансом",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			application, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("не удалось инициализировать приложение: %w", err)
			}
			defer application.Close()

			rec, err := application.Ledger.Reconcile(cmd.Context(), userID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user=%d balance=%d initial=%d sum=%d drift=%d\n",
				rec.UserID, rec.Balance, rec.InitialBalance, rec.SumOfDeltas, rec.Drift())
			if !rec.Consistent() {
				return fmt.Errorf("журнал расходится с балансом на %d", rec.Drift())
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "ID пользователя")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

// setupLogging настраивает формат логов.
func setupLogging() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.DebugLevel)
}

// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает расписание прохода продления подписок.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/dating-core/internal/common"
	"serotonyl.ru/dating-core/internal/config"
	"serotonyl.ru/dating-core/internal/features/subscription"
)

// Renewer — проход продления (subscription.Service).
type Renewer interface {
	RenewAll(ctx context.Context) (subscription.SweepReport, error)
}

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron     *cron.Cron
	renewer  Renewer
	schedule string
	tz       string
}

// NewScheduler создаёт планировщик в часовом поясе APP_TIMEZONE.
// Проход, не успевший закончиться к следующему срабатыванию, не запускается повторно.
func NewScheduler(renewer Renewer, cfg *config.Config) *Scheduler {
	c := cron.New(
		cron.WithLocation(common.LoadLocation(cfg.AppTimezone)),
		cron.WithChain(
			cron.Recover(cronLogger{}),
			cron.SkipIfStillRunning(cronLogger{}),
		),
	)
	return &Scheduler{
		cron:     c,
		renewer:  renewer,
		schedule: cfg.RenewalCron,
		tz:       cfg.AppTimezone,
	}
}

// Start регистрирует задачи и запускает планировщик.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		log.Info("[CRON] Проход продления подписок")
		if _, err := s.RunOnce(ctx); err != nil {
			log.WithError(err).Error("[CRON] Ошибка продления")
		}
	})
	if err != nil {
		return fmt.Errorf("некорректное расписание RENEWAL_CRON %q: %w", s.schedule, err)
	}

	s.cron.Start()
	log.WithFields(log.Fields{"schedule": s.schedule, "tz": s.tz}).Info("Планировщик задач запущен")
	return nil
}

// RunOnce выполняет проход продления немедленно. Тот же код, что и по расписанию:
// оператор может перезапустить упавший проход без риска двойного продления.
func (s *Scheduler) RunOnce(ctx context.Context) (subscription.SweepReport, error) {
	return s.renewer.RenewAll(ctx)
}

// Stop останавливает планировщик и ждёт завершения запущенных задач.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(time.Minute):
		log.Warn("Проход продления не завершился за минуту, выходим")
	}
	log.Info("Планировщик задач остановлен")
}

// cronLogger направляет внутренние сообщения cron в logrus.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	log.WithFields(kv(keysAndValues)).Debug("[CRON] " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	log.WithError(err).WithFields(kv(keysAndValues)).Error("[CRON] " + msg)
}

func kv(keysAndValues []any) log.Fields {
	f := log.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		f[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return f
}

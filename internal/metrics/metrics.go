// Package metrics экспортирует счётчики Prometheus по денежным операциям ядра.
// Все методы безопасно вызывать на nil *Metrics — тогда они ничего не делают.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dating_core"

// Metrics собирает счётчики ядра.
type Metrics struct {
	spends       *prometheus.CounterVec
	refunds      *prometheus.CounterVec
	unreconciled prometheus.Counter
	grants       *prometheus.CounterVec
	matches      prometheus.Counter
	renewals     *prometheus.CounterVec
	payments     *prometheus.CounterVec
}

var (
	defaultOnce sync.Once
	shared      *Metrics
)

// Default возвращает экземпляр, зарегистрированный в глобальном реестре.
// Коллекторы создаются один раз, чтобы повторная сборка приложения
// не падала на дублирующей регистрации.
func Default() *Metrics {
	defaultOnce.Do(func() {
		shared = MustNew(prometheus.DefaultRegisterer)
	})
	return shared
}

// MustNew создаёт коллекторы и регистрирует их в reg. Ошибка регистрации — паника.
func MustNew(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		spends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "economy",
			Name:      "spends_total",
			Help:      "Spend attempts by reason and outcome.",
		}, []string{"reason", "outcome"}),
		refunds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "economy",
			Name:      "compensating_refunds_total",
			Help:      "Compensating credits issued after a dependent write did not commit.",
		}, []string{"reason"}),
		unreconciled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "economy",
			Name:      "unreconciled_debits_total",
			Help:      "Debits whose compensating refund failed. Each one needs manual reconciliation.",
		}),
		grants: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entitlement",
			Name:      "unlocks_total",
			Help:      "Photo unlock requests by outcome.",
		}, []string{"outcome"}),
		matches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "matching",
			Name:      "matches_created_total",
			Help:      "Matches created.",
		}),
		renewals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscription",
			Name:      "sweep_users_total",
			Help:      "Users processed by the renewal sweep, by outcome.",
		}, []string{"outcome"}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "events_total",
			Help:      "Payment succeeded events by kind and outcome.",
		}, []string{"kind", "outcome"}),
	}
	reg.MustRegister(m.spends, m.refunds, m.unreconciled, m.grants, m.matches, m.renewals, m.payments)
	return m
}

func (m *Metrics) Spend(reason, outcome string) {
	if m == nil {
		return
	}
	m.spends.WithLabelValues(reason, outcome).Inc()
}

func (m *Metrics) Refund(reason string) {
	if m == nil {
		return
	}
	m.refunds.WithLabelValues(reason).Inc()
}

func (m *Metrics) UnreconciledDebit() {
	if m == nil {
		return
	}
	m.unreconciled.Inc()
}

func (m *Metrics) Unlock(outcome string) {
	if m == nil {
		return
	}
	m.grants.WithLabelValues(outcome).Inc()
}

func (m *Metrics) MatchCreated() {
	if m == nil {
		return
	}
	m.matches.Inc()
}

func (m *Metrics) Renewal(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.renewals.WithLabelValues(outcome).Add(float64(n))
}

func (m *Metrics) Payment(kind, outcome string) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(kind, outcome).Inc()
}

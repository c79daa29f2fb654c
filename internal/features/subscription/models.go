// Package subscription управляет жизненным циклом подписок (Premium/VIP).
// models.go описывает тарифы, статусы и состояние подписки пользователя.
package subscription

import (
	"fmt"
	"time"
)

// Plan — тариф. Набор закрыт.
type Plan string

const (
	PlanNone    Plan = "none"
	PlanPremium Plan = "premium"
	PlanVIP     Plan = "vip"
)

// Purchasable — тариф можно активировать.
func (p Plan) Purchasable() bool {
	return p == PlanPremium || p == PlanVIP
}

// ParsePlan разбирает тариф из БД или из события оплаты.
func ParsePlan(s string) (Plan, error) {
	switch p := Plan(s); p {
	case PlanNone, PlanPremium, PlanVIP:
		return p, nil
	default:
		return "", fmt.Errorf("неизвестный тариф %q", s)
	}
}

// Status — состояние подписки.
//
//	none → active → canceled | expired
//
// active несёт флаг CancelAtPeriodEnd; продление оставляет active.
type Status string

const (
	StatusNone     Status = "none"
	StatusActive   Status = "active"
	StatusCanceled Status = "canceled" // Прекращена досрочно (возврат платежа)
	StatusExpired  Status = "expired"  // Период истёк с флагом отмены
)

// ParseStatus разбирает статус из БД.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusNone, StatusActive, StatusCanceled, StatusExpired:
		return st, nil
	default:
		return "", fmt.Errorf("неизвестный статус подписки %q", s)
	}
}

// State — состояние подписки, встроенное в запись пользователя.
// Plan сохраняется и после истечения (для отображения), доступа он не даёт.
type State struct {
	UserID            int64     `db:"id"`
	Plan              Plan      `db:"plan"`
	Status            Status    `db:"sub_status"`
	CurrentPeriodEnd  time.Time `db:"current_period_end"` // Нулевое время, если подписки не было
	CancelAtPeriodEnd bool      `db:"cancel_at_period_end"`
}

// HasAccess — действует ли платный доступ. Активная подписка с только что
// истёкшим периодом ещё даёт доступ: её судьбу решает ближайший проход продления.
func (s *State) HasAccess() bool {
	return s != nil && s.Status == StatusActive && s.Plan.Purchasable()
}

// Due — активная подписка, период которой истёк к моменту now.
type Due struct {
	UserID            int64
	CurrentPeriodEnd  time.Time
	CancelAtPeriodEnd bool
}

// SweepReport — итог прохода продления.
type SweepReport struct {
	Renewed int // Период продлён
	Expired int // Подписка истекла по флагу отмены
	Skipped int // Другой проход или пользователь успели раньше
	Failed  int // Ошибка хранилища по конкретному пользователю
}

// Total — сколько пользователей обработано.
func (r SweepReport) Total() int {
	return r.Renewed + r.Expired + r.Skipped + r.Failed
}

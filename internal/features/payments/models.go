// Package payments применяет успешные платежи провайдера: пакеты монет и тарифы.
// Каждый provider reference применяется не больше одного раза.
package payments

import (
	"time"

	"github.com/google/uuid"

	"serotonyl.ru/dating-core/internal/features/subscription"
)

// Kind — что оплачено.
type Kind string

const (
	KindCoins Kind = "coins"
	KindPlan  Kind = "plan"
)

// Status платежа в нашей таблице.
type Status string

const (
	StatusClaimed Status = "claimed"
	StatusApplied Status = "applied"
)

// Event — уведомление провайдера об успешной оплате.
// Заполнен ровно один из PackageID и PlanID.
type Event struct {
	UserID            int64
	Amount            int64 // сумма в минимальных единицах валюты
	PackageID         string
	PlanID            string
	ProviderReference string
}

// Payment — строка таблицы payments.
type Payment struct {
	ID                uuid.UUID
	ProviderReference string
	UserID            int64
	Amount            int64
	Kind              Kind
	ProductID         string
	Status            Status
	CreatedAt         time.Time
	AppliedAt         *time.Time
}

// Result — итог применения платежа.
type Result struct {
	Applied   bool
	Duplicate bool
	PaymentID uuid.UUID
	// Coins и Balance заполняются для пакета монет.
	Coins        int64
	Balance      int64
	Subscription *subscription.State
}

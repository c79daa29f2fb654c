// Package ledger — журнал всех изменений баланса.
// models.go описывает неизменяемую запись журнала и закрытый набор причин.
package ledger

import (
	"fmt"
	"time"
)

// Reason — причина изменения баланса. Набор закрыт: новая причина
// добавляется сюда и в Valid, иначе запись не пройдёт проверку.
type Reason string

const (
	ReasonPurchase   Reason = "purchase"   // Покупка пакета монет
	ReasonUnlock     Reason = "unlock"     // Разблокировка фото профиля
	ReasonGift       Reason = "gift"       // Подарок
	ReasonRefund     Reason = "refund"     // Компенсирующий возврат
	ReasonAdjustment Reason = "adjustment" // Ручная корректировка
	ReasonBonus      Reason = "bonus"      // Бонус от платформы
)

// Valid сообщает, входит ли причина в закрытый набор.
func (r Reason) Valid() bool {
	switch r {
	case ReasonPurchase, ReasonUnlock, ReasonGift, ReasonRefund, ReasonAdjustment, ReasonBonus:
		return true
	default:
		return false
	}
}

// ParseReason разбирает строку из БД.
func ParseReason(s string) (Reason, error) {
	r := Reason(s)
	if !r.Valid() {
		return "", fmt.Errorf("неизвестная причина движения баланса %q", s)
	}
	return r, nil
}

// Entry — одна запись журнала. Создаётся ровно один раз той же операцией,
// что меняет баланс, и никогда не обновляется и не удаляется.
type Entry struct {
	ID              int64     `db:"id"`
	UserID          int64     `db:"user_id"`
	Delta           int64     `db:"delta"`             // Со знаком: + начисление, - списание
	BalanceAfter    int64     `db:"balance_after"`     // Баланс сразу после операции
	Reason          Reason    `db:"reason"`
	RelatedEntityID string    `db:"related_entity_id"` // Пусто, если не к чему привязать
	CreatedAt       time.Time `db:"created_at"`
}

// Cursor — позиция в обратной хронологии (keyset-пагинация).
type Cursor struct {
	CreatedAt time.Time
	ID        int64
}

// After возвращает курсор, указывающий сразу за записью e.
func After(e *Entry) *Cursor {
	return &Cursor{CreatedAt: e.CreatedAt, ID: e.ID}
}

// Reconciliation — результат сверки журнала с балансом.
type Reconciliation struct {
	UserID         int64
	Balance        int64
	InitialBalance int64
	SumOfDeltas    int64
}

// Consistent — сумма дельт равна текущему балансу минус стартовый.
func (r Reconciliation) Consistent() bool {
	return r.SumOfDeltas == r.Balance-r.InitialBalance
}

// Drift — насколько журнал расходится с балансом (0 = сходится).
func (r Reconciliation) Drift() int64 {
	return r.Balance - r.InitialBalance - r.SumOfDeltas
}

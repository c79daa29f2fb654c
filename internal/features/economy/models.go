// Package economy — координатор списаний монет.
// models.go описывает запрос и результат списания и исход зависимой записи.
package economy

import (
	"fmt"

	"serotonyl.ru/dating-core/internal/features/ledger"
)

// SpendRequest — что списать и за что.
type SpendRequest struct {
	UserID    int64
	Amount    int64         // Всегда положительная
	Reason    ledger.Reason // Причина для журнала
	RelatedID string        // Связанная сущность (например, "photos:42")
}

// Outcome — явный исход зависимой записи после успешного списания.
// Дубликат не выводится из типа ошибки: зависимая запись сама сообщает,
// что ресурс уже существует.
type Outcome int

const (
	// Committed — зависимая запись создана, списание остаётся.
	Committed Outcome = iota
	// Superseded — ресурс уже создан другим (победившим) запросом.
	// Списание возвращается, вызывающий получает успех.
	Superseded
)

func (o Outcome) String() string {
	switch o {
	case Committed:
		return "committed"
	case Superseded:
		return "superseded"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// SpendResult — итог списания.
type SpendResult struct {
	UserID     int64
	Amount     int64
	NewBalance int64
	Debit      *ledger.Entry // Запись о списании
	Refund     *ledger.Entry // Запись о компенсирующем возврате (nil, если списание осталось)
	Outcome    Outcome
}

// Charged — монеты в итоге списаны.
func (r *SpendResult) Charged() bool {
	return r.Refund == nil
}

// RolledBackError — зависимая запись не удалась, списание возвращено.
// Исходная ошибка доступна через errors.Is/As.
type RolledBackError struct {
	Cause  error
	Refund *ledger.Entry
}

func (e *RolledBackError) Error() string {
	return fmt.Sprintf("операция отменена, %d монет возвращено: %v", e.Refund.Delta, e.Cause)
}

func (e *RolledBackError) Unwrap() error { return e.Cause }

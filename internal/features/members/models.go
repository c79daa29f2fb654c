// Package members управляет записями пользователей: баланс монет и состояние подписки
// принадлежат пользователю (1:1) и хранятся в таблице users.
package members

import (
	"time"

	"serotonyl.ru/dating-core/internal/features/subscription"
)

// User — снимок записи пользователя для путей чтения.
// Идентичность и профиль живут во внешнем слое; здесь только то, чем владеет ядро.
type User struct {
	ID             int64              `db:"id"`              // ID пользователя из слоя идентификации
	Balance        int64              `db:"balance"`         // Текущий баланс монет (источник истины)
	InitialBalance int64              `db:"initial_balance"` // Стартовый баланс при создании
	Subscription   subscription.State // Встроенное состояние подписки
	CreatedAt      time.Time          `db:"created_at"`
	UpdatedAt      time.Time          `db:"updated_at"`
}

// HasPremiumAccess — действует ли платный тариф.
func (u *User) HasPremiumAccess() bool {
	return u.Subscription.HasAccess()
}

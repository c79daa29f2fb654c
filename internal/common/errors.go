// Package common — errors.go определяет ошибки, общие для всех модулей ядра.
// Обработчики верхнего уровня (HTTP-слой) различают их через errors.Is/As
// и сами решают, какой код ответа вернуть.
package common

import (
	"errors"
	"fmt"
)

// Ошибки экономики (монеты, списания)
var (
	// ErrInsufficientFunds — на счёте меньше монет, чем нужно списать (аналог HTTP 402)
	ErrInsufficientFunds = errors.New("недостаточно монет на счёте")
	// ErrInvalidAmount — сумма должна быть положительной
	ErrInvalidAmount = errors.New("сумма должна быть положительной")
	// ErrUserNotFound — пользователь не найден
	ErrUserNotFound = errors.New("пользователь не найден")
	// ErrSelfAction — действие над самим собой (разблокировка своих фото, симпатия себе)
	ErrSelfAction = errors.New("нельзя выполнить действие над самим собой")
	// ErrUnreconciledDebit — списание прошло, а компенсирующий возврат не удался.
	// Требует ручной сверки.
	ErrUnreconciledDebit = errors.New("списание не сверено: возврат не выполнен")
)

// Ошибки доступа и симпатий. Пользователю не показываются —
// сервисы сворачивают их в идемпотентный успех.
var (
	// ErrAlreadyGranted — доступ для пары (subject, object) уже выдан
	ErrAlreadyGranted = errors.New("доступ уже выдан")
	// ErrAlreadyMatched — пара уже образовала мэтч
	ErrAlreadyMatched = errors.New("мэтч уже существует")
)

// Ошибки подписок
var (
	// ErrNoActiveSubscription — у пользователя нет активной подписки
	ErrNoActiveSubscription = errors.New("нет активной подписки")
	// ErrInvalidPlan — неизвестный тариф
	ErrInvalidPlan = errors.New("неизвестный тариф")
)

// Ошибки платежей
var (
	// ErrUnknownProduct — в событии оплаты нет ни известного пакета монет, ни тарифа
	ErrUnknownProduct = errors.New("неизвестный товар в платеже")
	// ErrDuplicatePayment — платёж с этим provider reference уже обработан
	ErrDuplicatePayment = errors.New("платёж уже обработан")
)

// ErrStorageUnavailable — хранилище недоступно. Фатально, ядро не повторяет сам.
var ErrStorageUnavailable = errors.New("хранилище недоступно")

// InsufficientFundsError сообщает точную нехватку монет.
type InsufficientFundsError struct {
	UserID    int64
	Required  int64
	Available int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("недостаточно монет: нужно %d, есть %d, не хватает %d",
		e.Required, e.Available, e.Shortfall())
}

// Shortfall возвращает, сколько монет не хватает.
func (e *InsufficientFundsError) Shortfall() int64 {
	if e.Available >= e.Required {
		return 0
	}
	return e.Required - e.Available
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// IsClientError — ошибка вызвана запросом клиента (4xx), а не сбоем ядра.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrSelfAction) ||
		errors.Is(err, ErrNoActiveSubscription) ||
		errors.Is(err, ErrInvalidPlan) ||
		errors.Is(err, ErrUnknownProduct)
}

// IsFatal — ошибка, о которой нужно сообщить как о 5xx и поднять алерт.
func IsFatal(err error) bool {
	return errors.Is(err, ErrStorageUnavailable) || errors.Is(err, ErrUnreconciledDebit)
}

// Package members — service.go содержит регистрацию пользователей в ядре и чтение снимков.
package members

import (
	"context"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/dating-core/internal/config"
)

// Store — хранилище записей пользователей.
type Store interface {
	CreateUser(ctx context.Context, userID, startingBalance int64) (bool, error)
	GetUser(ctx context.Context, userID int64) (*User, error)
}

// Service управляет записями пользователей.
type Service struct {
	store           Store
	startingBalance int64
}

// NewService создаёт сервис пользователей.
func NewService(store Store, cfg *config.Config) *Service {
	return &Service{store: store, startingBalance: cfg.EconomyStartingBalance}
}

// Register гарантирует, что у пользователя есть запись в ядре.
// Вызывается слоем идентификации после создания аккаунта; повторный вызов безопасен.
// Стартовый баланс фиксируется в initial_balance, поэтому журнал его не содержит.
func (s *Service) Register(ctx context.Context, userID int64) (*User, error) {
	created, err := s.store.CreateUser(ctx, userID, s.startingBalance)
	if err != nil {
		return nil, err
	}
	if created {
		log.WithFields(log.Fields{
			"user_id":          userID,
			"starting_balance": s.startingBalance,
		}).Info("Новый пользователь зарегистрирован")
	}
	return s.store.GetUser(ctx, userID)
}

// Get возвращает снимок пользователя: баланс и подписку.
func (s *Service) Get(ctx context.Context, userID int64) (*User, error) {
	return s.store.GetUser(ctx, userID)
}

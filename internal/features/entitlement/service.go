// Package entitlement — service.go реализует открытие фото за монеты.
package entitlement

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/dating-core/internal/cache"
	"serotonyl.ru/dating-core/internal/common"
	"serotonyl.ru/dating-core/internal/config"
	"serotonyl.ru/dating-core/internal/features/economy"
	"serotonyl.ru/dating-core/internal/features/ledger"
	"serotonyl.ru/dating-core/internal/metrics"
)

// Store — хранилище доступов.
type Store interface {
	CreateGrant(ctx context.Context, subjectID, objectID, cost int64) (*Grant, error)
	HasGrant(ctx context.Context, subjectID, objectID int64) (bool, error)
	ListGrants(ctx context.Context, subjectID int64) ([]Grant, error)
}

// Spender — координатор списаний (economy.Service).
type Spender interface {
	Spend(ctx context.Context, req economy.SpendRequest, dependent economy.DependentWrite) (*economy.SpendResult, error)
	GetBalance(ctx context.Context, userID int64) (int64, error)
}

// Service выдаёт доступ к фото.
type Service struct {
	store    Store
	spender  Spender
	cache    cache.Cache
	cost     int64
	cacheTTL time.Duration
	metrics  *metrics.Metrics
}

// NewService создаёт сервис доступов. c может быть nil — тогда без кэша.
func NewService(store Store, spender Spender, c cache.Cache, cfg *config.Config, m *metrics.Metrics) *Service {
	return &Service{
		store:    store,
		spender:  spender,
		cache:    c,
		cost:     cfg.UnlockPhotosCost,
		cacheTTL: cfg.GrantCacheTTL,
		metrics:  m,
	}
}

// Cost — цена открытия фото в монетах.
func (s *Service) Cost() int64 {
	return s.cost
}

// HasAccess проверяет, открыты ли фото object для subject.
// Сначала кэш (в нём только положительные ответы), затем БД.
func (s *Service) HasAccess(ctx context.Context, subjectID, objectID int64) (bool, error) {
	if s.cache != nil {
		if _, err := s.cache.Get(ctx, cacheKey(subjectID, objectID)); err == nil {
			return true, nil
		} else if !errors.Is(err, cache.ErrMiss) {
			log.WithError(err).Warn("Кэш доступов недоступен, читаем из БД")
		}
	}
	ok, err := s.store.HasGrant(ctx, subjectID, objectID)
	if err != nil {
		return false, err
	}
	if ok {
		s.remember(ctx, subjectID, objectID)
	}
	return ok, nil
}

// ListUnlocked возвращает доступы, выданные пользователю.
func (s *Service) ListUnlocked(ctx context.Context, subjectID int64) ([]Grant, error) {
	return s.store.ListGrants(ctx, subjectID)
}

// UnlockPhotos открывает фото target для viewer.
//
// Если доступ уже есть — монеты не списываются. Иначе списание и вставка
// доступа идут через economy.Spend: проигравший гонку параллельный запрос
// получает Superseded и свои монеты обратно, так что на одну пару
// приходится ровно одно чистое списание.
func (s *Service) UnlockPhotos(ctx context.Context, viewerID, targetID int64) (*UnlockResult, error) {
	if viewerID == targetID {
		return nil, common.ErrSelfAction
	}

	has, err := s.HasAccess(ctx, viewerID, targetID)
	if err != nil {
		s.metrics.Unlock("error")
		return nil, err
	}
	if has {
		balance, err := s.spender.GetBalance(ctx, viewerID)
		if err != nil {
			return nil, err
		}
		s.metrics.Unlock("already_granted")
		return &UnlockResult{Unlocked: true, Balance: balance}, nil
	}

	req := economy.SpendRequest{
		UserID:    viewerID,
		Amount:    s.cost,
		Reason:    ledger.ReasonUnlock,
		RelatedID: relatedID(targetID),
	}
	res, err := s.spender.Spend(ctx, req, func(ctx context.Context, _ *ledger.Entry) (economy.Outcome, error) {
		_, err := s.store.CreateGrant(ctx, viewerID, targetID, s.cost)
		if errors.Is(err, common.ErrAlreadyGranted) {
			return economy.Superseded, nil
		}
		if err != nil {
			return economy.Committed, err
		}
		return economy.Committed, nil
	})
	if err != nil {
		outcome := "error"
		if errors.Is(err, common.ErrInsufficientFunds) {
			outcome = "insufficient_funds"
		}
		s.metrics.Unlock(outcome)
		return nil, err
	}

	s.remember(ctx, viewerID, targetID)
	if res.Outcome == economy.Superseded {
		s.metrics.Unlock("superseded")
		return &UnlockResult{Unlocked: true, Balance: res.NewBalance}, nil
	}

	s.metrics.Unlock("unlocked")
	log.WithFields(log.Fields{
		"viewer_id": viewerID,
		"target_id": targetID,
		"cost":      s.cost,
		"balance":   res.NewBalance,
	}).Info("Фото открыты")
	return &UnlockResult{Unlocked: true, Charged: true, Balance: res.NewBalance}, nil
}

func (s *Service) remember(ctx context.Context, subjectID, objectID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, cacheKey(subjectID, objectID), "1", s.cacheTTL); err != nil {
		log.WithError(err).Debug("Не удалось записать доступ в кэш")
	}
}

// Package matching — service.go содержит переходы NoSignal → OneSided → Matched.
package matching

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/dating-core/internal/common"
	"serotonyl.ru/dating-core/internal/metrics"
)

// Store — сигналы и матчи.
type Store interface {
	InsertSignal(ctx context.Context, fromUserID, toUserID int64) (bool, error)
	SignalExists(ctx context.Context, fromUserID, toUserID int64) (bool, error)
	CreateMatch(ctx context.Context, pair Pair, initiatedBy int64) (*Match, error)
	GetMatch(ctx context.Context, pair Pair) (*Match, error)
	ListMatches(ctx context.Context, userID int64) ([]Match, error)
}

// Service — движок взаимности.
type Service struct {
	store   Store
	metrics *metrics.Metrics
}

// NewService создаёт сервис матчинга.
func NewService(store Store, m *metrics.Metrics) *Service {
	return &Service{store: store, metrics: m}
}

// SignalInterest записывает интерес from → to и создаёт матч, если есть встречный сигнал.
//
// Повторный сигнал не ошибка. Встречные сигналы, пришедшие одновременно,
// оба видят друг друга и оба пытаются создать матч; уникальный ключ пары
// пропускает только одного, второй получает уже созданный матч.
func (s *Service) SignalInterest(ctx context.Context, fromUserID, toUserID int64) (*SignalResult, error) {
	if fromUserID == toUserID {
		return nil, common.ErrSelfAction
	}

	created, err := s.store.InsertSignal(ctx, fromUserID, toUserID)
	if err != nil {
		return nil, err
	}
	res := &SignalResult{NewSignal: created}

	reciprocal, err := s.store.SignalExists(ctx, toUserID, fromUserID)
	if err != nil {
		return nil, err
	}
	if !reciprocal {
		return res, nil
	}

	pair := NewPair(fromUserID, toUserID)
	m, err := s.store.CreateMatch(ctx, pair, fromUserID)
	switch {
	case err == nil:
		s.metrics.MatchCreated()
		log.WithFields(log.Fields{
			"user_low":     pair.Low,
			"user_high":    pair.High,
			"initiated_by": fromUserID,
		}).Info("Новый матч")
	case errors.Is(err, common.ErrAlreadyMatched):
		if m, err = s.store.GetMatch(ctx, pair); err != nil {
			return nil, err
		}
		if m == nil {
			return nil, fmt.Errorf("матч %d-%d не найден после конфликта вставки", pair.Low, pair.High)
		}
	default:
		return nil, err
	}

	res.Matched = true
	res.Match = m
	return res, nil
}

// IsMatched проверяет, есть ли активный матч между a и b.
func (s *Service) IsMatched(ctx context.Context, a, b int64) (bool, error) {
	if a == b {
		return false, nil
	}
	m, err := s.store.GetMatch(ctx, NewPair(a, b))
	if err != nil {
		return false, err
	}
	return m != nil && m.IsActive, nil
}

// ListMatches возвращает активные матчи пользователя.
func (s *Service) ListMatches(ctx context.Context, userID int64) ([]Match, error) {
	return s.store.ListMatches(ctx, userID)
}

// Package memory — хранилище ядра в памяти процесса для тестов и локального запуска.
// Повторяет ровно две гарантии PostgreSQL, на которые опираются сервисы:
// условные обновления и уникальные ключи. Всё под одним мьютексом.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"serotonyl.ru/dating-core/internal/common"
	"serotonyl.ru/dating-core/internal/features/economy"
	"serotonyl.ru/dating-core/internal/features/entitlement"
	"serotonyl.ru/dating-core/internal/features/ledger"
	"serotonyl.ru/dating-core/internal/features/matching"
	"serotonyl.ru/dating-core/internal/features/members"
	"serotonyl.ru/dating-core/internal/features/payments"
	"serotonyl.ru/dating-core/internal/features/subscription"
)

var (
	_ members.Store      = (*Store)(nil)
	_ economy.Store      = (*Store)(nil)
	_ ledger.Store       = (*Store)(nil)
	_ entitlement.Store  = (*Store)(nil)
	_ matching.Store     = (*Store)(nil)
	_ subscription.Store = (*Store)(nil)
	_ payments.Store     = (*Store)(nil)
)

type grantKey struct{ subject, object int64 }

type signalKey struct{ from, to int64 }

// Store реализует Store-интерфейсы всех сервисов ядра.
type Store struct {
	mu sync.RWMutex

	users    map[int64]*members.User
	entries  []*ledger.Entry
	grants   map[grantKey]*entitlement.Grant
	signals  map[signalKey]*matching.Signal
	matches  map[matching.Pair]*matching.Match
	payments map[string]*payments.Payment // по provider reference

	nextID int64
	now    func() time.Time
}

// New создаёт пустое хранилище.
func New() *Store {
	return &Store{
		users:    make(map[int64]*members.User),
		grants:   make(map[grantKey]*entitlement.Grant),
		signals:  make(map[signalKey]*matching.Signal),
		matches:  make(map[matching.Pair]*matching.Match),
		payments: make(map[string]*payments.Payment),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock подменяет время, которым помечаются записи.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// requireUsers повторяет внешние ключи на users.
func (s *Store) requireUsers(ids ...int64) error {
	for _, id := range ids {
		if _, err := s.user(id); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) user(userID int64) (*members.User, error) {
	u, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("user_id=%d: %w", userID, common.ErrUserNotFound)
	}
	return u, nil
}

// ──────────────────────────────────────────────────
// Пользователи
// ──────────────────────────────────────────────────

func (s *Store) CreateUser(_ context.Context, userID, startingBalance int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; ok {
		return false, nil
	}
	now := s.now()
	s.users[userID] = &members.User{
		ID:             userID,
		Balance:        startingBalance,
		InitialBalance: startingBalance,
		Subscription: subscription.State{
			UserID: userID,
			Plan:   subscription.PlanNone,
			Status: subscription.StatusNone,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	return true, nil
}

func (s *Store) GetUser(_ context.Context, userID int64) (*members.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, err := s.user(userID)
	if err != nil {
		return nil, err
	}
	cp := *u
	return &cp, nil
}

// ──────────────────────────────────────────────────
// Баланс и журнал
// ──────────────────────────────────────────────────

func (s *Store) GetBalance(_ context.Context, userID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, err := s.user(userID)
	if err != nil {
		return 0, err
	}
	return u.Balance, nil
}

func (s *Store) Debit(_ context.Context, userID, amount int64, reason ledger.Reason, relatedID string) (*ledger.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.user(userID)
	if err != nil {
		return nil, err
	}
	if u.Balance < amount {
		return nil, &common.InsufficientFundsError{UserID: userID, Required: amount, Available: u.Balance}
	}
	u.Balance -= amount
	return s.appendLocked(u, -amount, reason, relatedID), nil
}

func (s *Store) Credit(_ context.Context, userID, amount int64, reason ledger.Reason, relatedID string) (*ledger.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.user(userID)
	if err != nil {
		return nil, err
	}
	u.Balance += amount
	return s.appendLocked(u, amount, reason, relatedID), nil
}

func (s *Store) appendLocked(u *members.User, delta int64, reason ledger.Reason, relatedID string) *ledger.Entry {
	now := s.now()
	u.UpdatedAt = now
	e := &ledger.Entry{
		ID:              s.id(),
		UserID:          u.ID,
		Delta:           delta,
		BalanceAfter:    u.Balance,
		Reason:          reason,
		RelatedEntityID: relatedID,
		CreatedAt:       now,
	}
	s.entries = append(s.entries, e)
	cp := *e
	return &cp
}

func (s *Store) ListEntries(_ context.Context, userID int64, before *ledger.Cursor, limit int) ([]*ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*ledger.Entry
	for _, e := range s.entries {
		if e.UserID != userID {
			continue
		}
		if before != nil && !olderThan(e, before) {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *ledger.Entry) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return int(b.ID - a.ID)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// olderThan — (created_at, id) < (cursor.created_at, cursor.id).
func olderThan(e *ledger.Entry, c *ledger.Cursor) bool {
	if e.CreatedAt.Equal(c.CreatedAt) {
		return e.ID < c.ID
	}
	return e.CreatedAt.Before(c.CreatedAt)
}

func (s *Store) Snapshot(_ context.Context, userID int64) (*ledger.Reconciliation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, err := s.user(userID)
	if err != nil {
		return nil, err
	}
	r := &ledger.Reconciliation{UserID: userID, Balance: u.Balance, InitialBalance: u.InitialBalance}
	for _, e := range s.entries {
		if e.UserID == userID {
			r.SumOfDeltas += e.Delta
		}
	}
	return r, nil
}

// ──────────────────────────────────────────────────
// Доступы
// ──────────────────────────────────────────────────

func (s *Store) CreateGrant(_ context.Context, subjectID, objectID, cost int64) (*entitlement.Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireUsers(subjectID, objectID); err != nil {
		return nil, err
	}
	k := grantKey{subjectID, objectID}
	if _, ok := s.grants[k]; ok {
		return nil, fmt.Errorf("доступ %d→%d: %w", subjectID, objectID, common.ErrAlreadyGranted)
	}
	g := &entitlement.Grant{ID: s.id(), SubjectID: subjectID, ObjectID: objectID, Cost: cost, CreatedAt: s.now()}
	s.grants[k] = g
	cp := *g
	return &cp, nil
}

func (s *Store) HasGrant(_ context.Context, subjectID, objectID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.grants[grantKey{subjectID, objectID}]
	return ok, nil
}

func (s *Store) ListGrants(_ context.Context, subjectID int64) ([]entitlement.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []entitlement.Grant
	for k, g := range s.grants {
		if k.subject == subjectID {
			out = append(out, *g)
		}
	}
	slices.SortFunc(out, func(a, b entitlement.Grant) int { return int(b.ID - a.ID) })
	return out, nil
}

// GrantCount — число выданных доступов (для тестов).
func (s *Store) GrantCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.grants)
}

// ──────────────────────────────────────────────────
// Сигналы и матчи
// ──────────────────────────────────────────────────

func (s *Store) InsertSignal(_ context.Context, fromUserID, toUserID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireUsers(fromUserID, toUserID); err != nil {
		return false, err
	}
	k := signalKey{fromUserID, toUserID}
	if _, ok := s.signals[k]; ok {
		return false, nil
	}
	s.signals[k] = &matching.Signal{ID: s.id(), FromUserID: fromUserID, ToUserID: toUserID, CreatedAt: s.now()}
	return true, nil
}

func (s *Store) SignalExists(_ context.Context, fromUserID, toUserID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.signals[signalKey{fromUserID, toUserID}]
	return ok, nil
}

func (s *Store) CreateMatch(_ context.Context, pair matching.Pair, initiatedBy int64) (*matching.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pair.Low >= pair.High {
		return nil, fmt.Errorf("некорректная пара %d-%d", pair.Low, pair.High)
	}
	if err := s.requireUsers(pair.Low, pair.High); err != nil {
		return nil, err
	}
	if _, ok := s.matches[pair]; ok {
		return nil, fmt.Errorf("матч %d-%d: %w", pair.Low, pair.High, common.ErrAlreadyMatched)
	}
	m := &matching.Match{ID: s.id(), Pair: pair, InitiatedBy: initiatedBy, MatchedAt: s.now(), IsActive: true}
	s.matches[pair] = m
	cp := *m
	return &cp, nil
}

func (s *Store) GetMatch(_ context.Context, pair matching.Pair) (*matching.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.matches[pair]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (s *Store) ListMatches(_ context.Context, userID int64) ([]matching.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []matching.Match
	for p, m := range s.matches {
		if (p.Low == userID || p.High == userID) && m.IsActive {
			out = append(out, *m)
		}
	}
	slices.SortFunc(out, func(a, b matching.Match) int { return int(b.ID - a.ID) })
	return out, nil
}

// MatchCount — число матчей (для тестов).
func (s *Store) MatchCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.matches)
}

// ──────────────────────────────────────────────────
// Подписки
// ──────────────────────────────────────────────────

func (s *Store) GetSubscription(_ context.Context, userID int64) (*subscription.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, err := s.user(userID)
	if err != nil {
		return nil, err
	}
	st := u.Subscription
	return &st, nil
}

func (s *Store) ActivateSubscription(_ context.Context, userID int64, plan subscription.Plan, periodEnd time.Time) (*subscription.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.user(userID)
	if err != nil {
		return nil, err
	}
	u.Subscription = subscription.State{
		UserID:           userID,
		Plan:             plan,
		Status:           subscription.StatusActive,
		CurrentPeriodEnd: periodEnd.UTC(),
	}
	u.UpdatedAt = s.now()
	st := u.Subscription
	return &st, nil
}

func (s *Store) SetCancelAtPeriodEnd(_ context.Context, userID int64, cancel bool) (*subscription.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.user(userID)
	if err != nil {
		return nil, err
	}
	if u.Subscription.Status != subscription.StatusActive {
		return nil, common.ErrNoActiveSubscription
	}
	u.Subscription.CancelAtPeriodEnd = cancel
	u.UpdatedAt = s.now()
	st := u.Subscription
	return &st, nil
}

func (s *Store) TerminateSubscription(_ context.Context, userID int64, now time.Time) (*subscription.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.user(userID)
	if err != nil {
		return nil, err
	}
	if u.Subscription.Status != subscription.StatusActive {
		return nil, common.ErrNoActiveSubscription
	}
	u.Subscription.Status = subscription.StatusCanceled
	u.Subscription.CurrentPeriodEnd = now.UTC()
	u.Subscription.CancelAtPeriodEnd = false
	u.UpdatedAt = s.now()
	st := u.Subscription
	return &st, nil
}

func (s *Store) ListDue(_ context.Context, now time.Time, afterUserID int64, limit int) ([]subscription.Due, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []subscription.Due
	for id, u := range s.users {
		st := u.Subscription
		if id > afterUserID && st.Status == subscription.StatusActive && !st.CurrentPeriodEnd.After(now) {
			out = append(out, subscription.Due{
				UserID:            id,
				CurrentPeriodEnd:  st.CurrentPeriodEnd,
				CancelAtPeriodEnd: st.CancelAtPeriodEnd,
			})
		}
	}
	slices.SortFunc(out, func(a, b subscription.Due) int {
		switch {
		case a.UserID < b.UserID:
			return -1
		case a.UserID > b.UserID:
			return 1
		}
		return 0
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) RenewPeriod(_ context.Context, userID int64, observedEnd, newEnd, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.user(userID)
	if err != nil {
		return false, err
	}
	st := &u.Subscription
	if st.Status != subscription.StatusActive || st.CancelAtPeriodEnd ||
		!st.CurrentPeriodEnd.Equal(observedEnd) || st.CurrentPeriodEnd.After(now) {
		return false, nil
	}
	st.CurrentPeriodEnd = newEnd.UTC()
	u.UpdatedAt = s.now()
	return true, nil
}

func (s *Store) ExpireSubscription(_ context.Context, userID int64, observedEnd, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.user(userID)
	if err != nil {
		return false, err
	}
	st := &u.Subscription
	if st.Status != subscription.StatusActive || !st.CancelAtPeriodEnd ||
		!st.CurrentPeriodEnd.Equal(observedEnd) || st.CurrentPeriodEnd.After(now) {
		return false, nil
	}
	st.Status = subscription.StatusExpired
	u.UpdatedAt = s.now()
	return true, nil
}

// ──────────────────────────────────────────────────
// Платежи
// ──────────────────────────────────────────────────

func (s *Store) ClaimPayment(_ context.Context, p *payments.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireUsers(p.UserID); err != nil {
		return err
	}
	if _, ok := s.payments[p.ProviderReference]; ok {
		return fmt.Errorf("платёж %q: %w", p.ProviderReference, common.ErrDuplicatePayment)
	}
	p.Status = payments.StatusClaimed
	p.CreatedAt = s.now()
	cp := *p
	s.payments[p.ProviderReference] = &cp
	return nil
}

func (s *Store) ReleasePayment(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for ref, p := range s.payments {
		if p.ID == id && p.Status == payments.StatusClaimed {
			delete(s.payments, ref)
		}
	}
	return nil
}

func (s *Store) MarkPaymentApplied(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.payments {
		if p.ID == id {
			now := s.now()
			p.Status = payments.StatusApplied
			p.AppliedAt = &now
		}
	}
	return nil
}

// Payment возвращает платёж по provider reference (для тестов).
func (s *Store) Payment(providerReference string) (*payments.Payment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.payments[providerReference]
	if !ok {
		return nil, false
	}
	cp := *p
	return &cp, true
}

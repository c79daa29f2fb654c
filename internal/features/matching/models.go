// Package matching реализует взаимные симпатии: сигнал A→B плюс сигнал B→A
// дают ровно один матч на неупорядоченную пару {A, B}.
package matching

import "time"

// Pair — неупорядоченная пара пользователей в каноническом виде (Low < High).
type Pair struct {
	Low  int64
	High int64
}

// NewPair сортирует идентификаторы. Для a == b пара некорректна — проверяется выше.
func NewPair(a, b int64) Pair {
	if a > b {
		a, b = b, a
	}
	return Pair{Low: a, High: b}
}

// Other возвращает второго участника пары.
func (p Pair) Other(userID int64) int64 {
	if userID == p.Low {
		return p.High
	}
	return p.Low
}

// Signal — направленный сигнал интереса from → to.
type Signal struct {
	ID         int64
	FromUserID int64
	ToUserID   int64
	CreatedAt  time.Time
}

// Match — состоявшийся матч. Снятие матча (IsActive=false) — действие модерации,
// движок его не выполняет.
type Match struct {
	ID          int64
	Pair        Pair
	InitiatedBy int64 // чей сигнал замкнул пару
	MatchedAt   time.Time
	IsActive    bool
	UnmatchedAt *time.Time
}

// SignalResult — ответ на SignalInterest.
type SignalResult struct {
	Matched bool
	// NewSignal — сигнал записан этим вызовом (false для повтора).
	NewSignal bool
	Match     *Match
}

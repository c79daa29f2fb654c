// Package entitlement хранит выданные доступы: пользователь A открыл фото пользователя B.
// Доступ выдаётся не больше одного раза на пару (subject, object) и не отзывается.
package entitlement

import (
	"fmt"
	"time"
)

// Grant — запись о выданном доступе к фото.
type Grant struct {
	ID        int64
	SubjectID int64 // кто открыл
	ObjectID  int64 // чьи фото
	Cost      int64
	CreatedAt time.Time
}

// UnlockResult — результат попытки открыть фото.
type UnlockResult struct {
	Unlocked bool
	// Charged — были ли списаны монеты именно этим вызовом.
	// false и при быстром пути (доступ уже был), и при проигрыше гонки.
	Charged bool
	Balance int64
}

// relatedID связывает записи журнала с открытием фото конкретного пользователя.
func relatedID(objectID int64) string {
	return fmt.Sprintf("photos:%d", objectID)
}

func cacheKey(subjectID, objectID int64) string {
	return fmt.Sprintf("unlock:%d:%d", subjectID, objectID)
}

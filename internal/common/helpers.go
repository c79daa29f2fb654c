// Package common содержит общие утилиты, используемые во всём проекте:
// часовые пояса, время, разбор CSV из переменных окружения.
package common

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// LoadLocation загружает часовой пояс по имени.
// Если tzdata в контейнере нет — откатывается на UTC и пишет предупреждение.
func LoadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.WithError(err).WithField("timezone", name).Warn("Не удалось загрузить часовой пояс, используем UTC")
		return time.UTC
	}
	return loc
}

// Clock возвращает текущее время. Сервисы принимают его параметром,
// чтобы тесты могли подставить фиксированное время.
type Clock func() time.Time

// SystemClock — часы по умолчанию (UTC).
func SystemClock() time.Time {
	return time.Now().UTC()
}

// ParseKeyValueCSV разбирает строку вида "starter:100,popular:550" в map.
//
// Пример:
//
//	ParseKeyValueCSV("a:1, b:2") → map[a:1 b:2]
func ParseKeyValueCSV(s string) (map[string]int64, error) {
	s = strings.TrimSpace(s)
	out := make(map[string]int64)
	if s == "" {
		return out, nil
	}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, ":")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("ожидался формат ключ:значение, получено %q", part)
		}
		v, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad int64 %q: %w", value, err)
		}
		out[key] = v
	}
	return out, nil
}

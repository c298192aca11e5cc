package upstream

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"
)

var ErrNoAttempts = errors.New("no attempts to run")

type Attempt[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, error)
}

// FirstSuccess запускает попытки строго по очереди и возвращает первый успех.
// Если halt(err) == true, оставшиеся попытки не запускаются. Иначе возвращается последняя ошибка.
func FirstSuccess[T any](ctx context.Context, attempts []Attempt[T], halt func(error) bool) (T, error) {
	var zero T
	if len(attempts) == 0 {
		return zero, ErrNoAttempts
	}

	var lastErr error
	for i, a := range attempts {
		if i > 0 {
			if err := ctx.Err(); err != nil {
				return zero, lastErr
			}
		}
		v, err := a.Run(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		slog.Debug("attempt failed", "attempt", a.Name, "error", err.Error())
		if halt != nil && halt(err) {
			break
		}
	}
	return zero, lastErr
}

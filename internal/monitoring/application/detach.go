package application

import (
	"context"

	"go.uber.org/zap"
)

// detach runs fn on its own goroutine, disconnected from the caller's
// lifetime. A panic inside fn is logged and swallowed so a side effect
// can never take the ingestion path down with it.
func (s *Service) detach(task string, fn func(ctx context.Context)) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("detached task panicked",
					zap.String("task", task),
					zap.Any("panic", r))
			}
		}()
		fn(context.Background())
	}()
}

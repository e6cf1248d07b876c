package goroutine

import (
	"context"
	"runtime/debug"

	"github.com/robolearn/learning-backend/internal/logger"
)

// SafeGo запускает горутину с обработкой panic.
// Имя используется в логах для идентификации упавшей задачи.
func SafeGo(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Log.Errorf("panic в горутине %q: %v\n%s", name, r, debug.Stack())
			}
		}()
		fn()
	}()
}

// SafeGoWithContext запускает горутину с контекстом и обработкой panic.
func SafeGoWithContext(ctx context.Context, name string, fn func(context.Context)) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Log.Errorf("panic в горутине %q: %v\n%s", name, r, debug.Stack())
			}
		}()
		fn(ctx)
	}()
}

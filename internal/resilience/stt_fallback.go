package resilience

import (
	"context"

	"github.com/MrWong99/hearken/pkg/provider/stt"
)

// FallbackEngine implements [stt.Engine] with failover across recognizer
// backends. Failover happens only when opening a recognizer; an episode that
// started on one backend stays on it.
type FallbackEngine struct {
	group *FallbackGroup[stt.Engine]
}

var _ stt.Engine = (*FallbackEngine)(nil)

// NewFallbackEngine creates a [FallbackEngine] with primary as the preferred
// backend.
func NewFallbackEngine(primary stt.Engine, primaryName string, cfg FallbackConfig) *FallbackEngine {
	return &FallbackEngine{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional engine.
func (f *FallbackEngine) AddFallback(name string, e stt.Engine) {
	f.group.AddFallback(name, e)
}

// NewRecognizer opens a recognizer on the first healthy engine.
func (f *FallbackEngine) NewRecognizer(ctx context.Context, cfg stt.RecognizerConfig) (stt.Recognizer, error) {
	return ExecuteWithResult(ctx, f.group, func(e stt.Engine) (stt.Recognizer, error) {
		return e.NewRecognizer(ctx, cfg)
	})
}

// States reports the breaker state of every engine.
func (f *FallbackEngine) States() []BackendState { return f.group.States() }

package registry

import (
	"context"
	"sync"

	"github.com/yezhh-pz/MediaFlow-sub000/internal/apperrors"
	"github.com/yezhh-pz/MediaFlow-sub000/internal/domain/task"
)

// Handler knows how to re-schedule a paused or terminal task of its bound
// type (§4.5 Resume Contract). Resume(ctx, t) reconstructs the original
// request from t.RequestParams and schedules the concrete background
// work; it must return quickly — the actual work runs asynchronously.
type Handler interface {
	Resume(ctx context.Context, t *task.Task) error
}

// HandlerRegistry maps task type -> Handler, with the "pipeline" handler
// as the declared fallback for any type (§4.5 step 4: "on miss, fall back
// to the generic pipeline handler").
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

const fallbackHandlerType = "pipeline"

func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string]Handler)}
}

// Register binds a Handler to a task type (§4.5); the server registers
// its handlers at startup in cmd/mediaflow-server's registerAll.
func (r *HandlerRegistry) Register(taskType string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[taskType] = h
}

// Get resolves the handler for taskType, falling back to the registered
// "pipeline" handler on a miss. It is a NotFoundError only if neither the
// requested type nor the fallback is registered.
func (r *HandlerRegistry) Get(taskType string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h, ok := r.handlers[taskType]; ok {
		return h, nil
	}
	if h, ok := r.handlers[fallbackHandlerType]; ok {
		return h, nil
	}
	return nil, apperrors.NewNotFoundError("handler", "no handler for type "+taskType+" and no pipeline fallback registered")
}

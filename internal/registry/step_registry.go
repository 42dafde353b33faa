// Package registry implements the Step Registry and Handler Registry
// (§4.4, §4.5): plain string-keyed, mutex-guarded maps, in the teacher's
// own dynamic-dispatch-by-typed-registry idiom (spec.md §9 "Dynamic
// dispatch by string tag... replaced by a typed registry mapping string ->
// implementation; lookup is total with an explicit 'not found' error").
package registry

import (
	"context"
	"sync"

	"github.com/yezhh-pz/MediaFlow-sub000/internal/apperrors"
	"github.com/yezhh-pz/MediaFlow-sub000/internal/domain/task"
)

// Step is the Pipeline Step contract (§4.4).
type Step interface {
	Name() string
	Execute(ctx context.Context, pctx *task.Context, params map[string]interface{}, taskID string) error
}

// StepRegistry maps step name -> Step. Registration of the bundled steps
// (see internal/steps) happens at process startup in cmd/mediaflow-server's
// registerAll.
type StepRegistry struct {
	mu    sync.RWMutex
	steps map[string]Step
}

func NewStepRegistry() *StepRegistry {
	return &StepRegistry{steps: make(map[string]Step)}
}

// Register binds a Step under its own Name(). Re-registering the same
// name overwrites the previous binding, which is convenient for tests
// that override a step with a fake.
func (r *StepRegistry) Register(step Step) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps[step.Name()] = step
}

// Get resolves a step by name, returning a NotFoundError on a miss.
func (r *StepRegistry) Get(name string) (Step, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	step, ok := r.steps[name]
	if !ok {
		return nil, apperrors.NewNotFoundError("step", "unknown step: "+name)
	}
	return step, nil
}

// Names lists every registered step name, for diagnostics.
func (r *StepRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.steps))
	for name := range r.steps {
		out = append(out, name)
	}
	return out
}

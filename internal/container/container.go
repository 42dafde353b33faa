// Package container implements the Service Container (§4.3): a lazy,
// typed singleton registry keyed by string service name, adapted from the
// teacher's internal/di.Container/BuildContainer Start()/Shutdown()
// lifecycle (internal/di/container.go, container_builder.go) — narrowed
// from that package's fixed struct-of-services shape down to the generic
// name->factory registry spec.md §4.3 calls for, since this domain's set
// of collaborators (Task Manager, Notifier, Pipeline Runner, Background
// Runner, Step/Handler Registries) is fixed by SPEC_FULL.md rather than
// assembled per-request like the teacher's LLM/session stack.
package container

import (
	"fmt"
	"sync"

	"github.com/yezhh-pz/MediaFlow-sub000/internal/apperrors"
	"github.com/yezhh-pz/MediaFlow-sub000/internal/logging"
)

// Factory builds a service instance on first Get.
type Factory func() (interface{}, error)

// Shutdownable is implemented by services that hold resources (pools,
// background goroutines) needing an orderly stop.
type Shutdownable interface {
	Shutdown() error
}

// Container is the process-wide service registry. register_all_services
// (here, a single registerAll call at startup, see
// cmd/mediaflow-server/main.go) names every collaborator required at
// runtime before the HTTP server serves any traffic.
type Container struct {
	logger logging.Logger

	mu        sync.Mutex
	factories map[string]Factory
	instances map[string]interface{}
	order     []string // instantiation order, for reverse-order Shutdown
}

func New(logger logging.Logger) *Container {
	return &Container{
		logger:    logging.OrNop(logger),
		factories: make(map[string]Factory),
		instances: make(map[string]interface{}),
	}
}

// Register stores a zero-arg factory under name. Re-registering the same
// name replaces both factory and any already cached instance.
func (c *Container) Register(name string, factory Factory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factories[name] = factory
	delete(c.instances, name)
}

// Get instantiates name on first call via its factory and caches the
// result; subsequent calls return the cached instance. The lock is
// released before the factory runs so a factory may itself call Get for
// a dependency it needs — register_all_services wires services as a
// dependency graph, not a flat list.
func (c *Container) Get(name string) (interface{}, error) {
	c.mu.Lock()
	if inst, ok := c.instances[name]; ok {
		c.mu.Unlock()
		return inst, nil
	}
	factory, ok := c.factories[name]
	if !ok {
		c.mu.Unlock()
		return nil, apperrors.NewNotFoundError("service", fmt.Sprintf("no service registered under %q", name))
	}
	c.mu.Unlock()

	inst, err := factory()
	if err != nil {
		return nil, fmt.Errorf("container: building service %q: %w", name, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.instances[name]; ok {
		return existing, nil
	}
	c.instances[name] = inst
	c.order = append(c.order, name)
	return inst, nil
}

// Has reports whether name has a registered factory (regardless of
// whether it has been instantiated yet).
func (c *Container) Has(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.factories[name]
	return ok
}

// Override replaces name's cached instance directly, bypassing its
// factory — "exists solely for tests" per §4.3.
func (c *Container) Override(name string, instance interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.instances[name]; !ok {
		c.order = append(c.order, name)
	}
	c.instances[name] = instance
}

// Reset drops every cached instance (not the factories), so the next Get
// rebuilds from scratch — used between tests.
func (c *Container) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.instances = make(map[string]interface{})
	c.order = nil
}

// Shutdown tears down every instantiated Shutdownable service, in reverse
// instantiation order, matching the teacher's Container.Shutdown of
// internal/di/container.go. The first error is returned after every
// service has had a chance to shut down.
func (c *Container) Shutdown() error {
	c.mu.Lock()
	order := append([]string(nil), c.order...)
	instances := c.instances
	c.mu.Unlock()

	var firstErr error
	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]
		inst, ok := instances[name]
		if !ok {
			continue
		}
		if shutdownable, ok := inst.(Shutdownable); ok {
			if err := shutdownable.Shutdown(); err != nil {
				c.logger.Error("container: shutdown of %q failed: %v", name, err)
				if firstErr == nil {
					firstErr = err
				}
			}
		}
	}
	return firstErr
}

package plugin

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/castbot/castbot/sdk"
)

type serviceKey struct {
	pluginID  string
	operation string
}

// ServiceRegistry maps (plugin-id, operation) pairs to handlers. Keys are
// unique; re-registration is a configuration error, never a silent replace.
type ServiceRegistry struct {
	logger hclog.Logger

	mu       sync.RWMutex
	handlers map[serviceKey]sdk.ServiceFunc
}

// NewServiceRegistry creates an empty registry.
func NewServiceRegistry(logger hclog.Logger) *ServiceRegistry {
	return &ServiceRegistry{
		logger:   logger.Named("services"),
		handlers: make(map[serviceKey]sdk.ServiceFunc),
	}
}

// Provide registers a handler under (pluginID, operation).
func (r *ServiceRegistry) Provide(pluginID, operation string, fn sdk.ServiceFunc) error {
	if fn == nil {
		return fmt.Errorf("service %s/%s: nil handler", pluginID, operation)
	}

	key := serviceKey{pluginID: pluginID, operation: operation}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[key]; exists {
		return fmt.Errorf("%w: %s/%s", ErrDuplicateService, pluginID, operation)
	}
	r.handlers[key] = fn

	r.logger.Debug("service registered", "plugin", pluginID, "operation", operation)
	return nil
}

// Call looks up and invokes a handler. The handler runs outside the registry
// lock, so one service call never blocks registration or other calls.
func (r *ServiceRegistry) Call(ctx context.Context, pluginID, operation string, req map[string]any) (map[string]any, error) {
	r.mu.RLock()
	fn, ok := r.handlers[serviceKey{pluginID: pluginID, operation: operation}]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrServiceNotFound, pluginID, operation)
	}
	return fn(ctx, req)
}

// List returns the registered (plugin, operation) pairs.
func (r *ServiceRegistry) List() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string][]string)
	for key := range r.handlers {
		out[key.pluginID] = append(out[key.pluginID], key.operation)
	}
	return out
}

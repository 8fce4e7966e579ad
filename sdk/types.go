package sdk

import (
	"context"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"
)

// Metadata identifies a plugin and declares its dependencies.
type Metadata struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Description  string   `json:"description"`
	Author       string   `json:"author"`
	Dependencies []string `json:"dependencies,omitempty"`
}

// Plugin is the capability set every plugin implements. Lifecycle calls are
// driven by the host in dependency order: Init for every plugin, then Start,
// then Stop in reverse order at shutdown. A plugin whose Init fails is never
// started.
type Plugin interface {
	Metadata() Metadata
	Init(ctx context.Context, host Host) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// ServiceFunc is a named operation one plugin exposes for others to call
// in-process. Input and output are structured values.
type ServiceFunc func(ctx context.Context, req map[string]any) (map[string]any, error)

// EventFunc receives event payloads published on the host bus.
type EventFunc func(event string, payload map[string]any)

// Host is the capability object handed to a plugin at Init time. It is the
// only channel through which a plugin touches shared state.
type Host interface {
	// Migrate executes idempotent schema statements against the plugin's
	// logical database namespace. Statements run on every process start and
	// must be safe to re-run.
	Migrate(statements ...string) error

	// ProvideService registers a named operation under this plugin's ID.
	// Re-registering an existing operation is a configuration error.
	ProvideService(operation string, fn ServiceFunc) error

	// CallService invokes an operation exposed by another plugin.
	CallService(ctx context.Context, pluginID, operation string, req map[string]any) (map[string]any, error)

	// Emit publishes an event to every current subscriber. Delivery is
	// best-effort and never blocks the emitter.
	Emit(event string, payload map[string]any)

	// Subscribe registers a listener for an event name. Events from a single
	// emitter arrive at a single listener in FIFO order.
	Subscribe(event string, fn EventFunc)

	// RegisterRouter mounts the plugin's routes under /<plugin-id>/.
	RegisterRouter(router *Router)

	// RegisterCommand adds a chat command. Duplicate names or aliases are
	// rejected at registration time.
	RegisterCommand(cmd Command) error

	// DB returns the shared database handle. Each plugin owns a private
	// namespace of tables; the host does not serialize access across plugins.
	DB() *gorm.DB

	// Logger returns a logger named after the plugin.
	Logger() hclog.Logger
}

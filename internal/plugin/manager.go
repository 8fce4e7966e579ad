package plugin

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/castbot/castbot/internal/command"
	"github.com/castbot/castbot/internal/events"
	"github.com/castbot/castbot/sdk"
)

// Manager owns the set of registered plugins and the process-wide registries
// they populate during init. Plugins only ever reach shared state through the
// Host context the manager hands them.
type Manager struct {
	logger   hclog.Logger
	db       *gorm.DB
	bus      *events.Bus
	commands *command.Registry
	services *ServiceRegistry

	mu        sync.RWMutex
	plugins   map[string]*Registration
	initOrder []*Registration
	seq       int
	engine    *gin.Engine
}

// NewManager creates a plugin manager. bus and commands may be nil in
// embedded setups that do not use events or chat.
func NewManager(db *gorm.DB, bus *events.Bus, commands *command.Registry, logger hclog.Logger) *Manager {
	l := logger.Named("plugin-manager")
	return &Manager{
		logger:   l,
		db:       db,
		bus:      bus,
		commands: commands,
		services: NewServiceRegistry(l),
		plugins:  make(map[string]*Registration),
	}
}

// AttachEngine gives the manager the gin engine plugin routers are mounted
// on. Must be called before InitAll for routes to register.
func (m *Manager) AttachEngine(engine *gin.Engine) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.engine = engine
}

// Services exposes the cross-plugin service registry.
func (m *Manager) Services() *ServiceRegistry {
	return m.services
}

// Register adds a statically compiled plugin in Registered state.
func (m *Manager) Register(p sdk.Plugin) error {
	return m.RegisterSource(p, SourceStatic)
}

// RegisterSource adds a plugin from the given source. A duplicate identifier
// fails the new registration and leaves the existing one untouched.
func (m *Manager) RegisterSource(p sdk.Plugin, source string) error {
	meta := p.Metadata()
	if meta.ID == "" {
		return fmt.Errorf("plugin metadata has empty identifier")
	}

	m.mu.Lock()
	if existing, ok := m.plugins[meta.ID]; ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s (existing source %s, new source %s)",
			ErrDuplicatePlugin, meta.ID, existing.Source, source)
	}
	m.seq++
	reg := &Registration{
		Plugin: p,
		Meta:   meta,
		Source: source,
		State:  StateRegistered,
		order:  m.seq,
	}
	m.plugins[meta.ID] = reg
	m.mu.Unlock()

	m.logger.Info("plugin registered", "id", meta.ID, "version", meta.Version, "source", source)
	m.emit(events.EventPluginRegistered, meta.ID, nil)
	return nil
}

// setState records a lifecycle transition. Registration state is read by the
// admin API concurrently with dynamic loading, so every mutation goes through
// the manager mutex.
func (m *Manager) setState(reg *Registration, state State, err error) {
	m.mu.Lock()
	reg.State = state
	reg.Err = err
	m.mu.Unlock()
}

func (m *Manager) stateOf(reg *Registration) State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return reg.State
}

// InitAll initializes every registered plugin in dependency order. A missing
// dependency or cycle fails the whole manager before any plugin's Init runs.
// An individual Init failure is fatal to that plugin only; its dependents are
// marked failed too, and independent plugins still initialize.
func (m *Manager) InitAll(ctx context.Context) error {
	m.mu.Lock()
	order, err := resolveOrder(m.plugins)
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("failed to resolve plugin order: %w", err)
	}
	m.initOrder = order
	m.mu.Unlock()

	for _, reg := range order {
		if m.stateOf(reg) != StateRegistered {
			continue
		}

		if failedDep := m.failedDependency(reg); failedDep != "" {
			m.setState(reg, StateFailed, fmt.Errorf("dependency %s failed to initialize", failedDep))
			m.logger.Error("skipping plugin, dependency failed", "id", reg.Meta.ID, "dependency", failedDep)
			continue
		}

		host := m.newContext(reg.Meta.ID)
		if err := m.initOne(ctx, reg, host); err != nil {
			m.setState(reg, StateFailed, err)
			m.logger.Error("plugin init failed", "id", reg.Meta.ID, "error", err)
			m.emit(events.EventPluginInitFailed, reg.Meta.ID, map[string]any{"error": err.Error()})
			continue
		}

		m.setState(reg, StateInitialized, nil)
		m.logger.Info("plugin initialized", "id", reg.Meta.ID, "version", reg.Meta.Version)
	}
	return nil
}

// initOne contains the panic boundary so a misbehaving plugin cannot take
// down the host during init.
func (m *Manager) initOne(ctx context.Context, reg *Registration, host sdk.Host) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during init: %v", r)
		}
	}()
	return reg.Plugin.Init(ctx, host)
}

// StartAll starts initialized plugins in the same order init ran. Plugins
// that failed init are skipped.
func (m *Manager) StartAll(ctx context.Context) {
	m.mu.RLock()
	order := m.initOrder
	m.mu.RUnlock()

	for _, reg := range order {
		if m.stateOf(reg) != StateInitialized {
			continue
		}
		if err := reg.Plugin.Start(ctx); err != nil {
			m.setState(reg, StateFailed, err)
			m.logger.Error("plugin start failed", "id", reg.Meta.ID, "error", err)
			continue
		}
		m.setState(reg, StateStarted, nil)
		m.logger.Info("plugin started", "id", reg.Meta.ID)
		m.emit(events.EventPluginStarted, reg.Meta.ID, nil)
	}
}

// StopAll stops started plugins in reverse order. Individual failures are
// logged, never propagated; shutdown completes even with unhealthy plugins.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.RLock()
	order := m.initOrder
	m.mu.RUnlock()

	for i := len(order) - 1; i >= 0; i-- {
		reg := order[i]
		if m.stateOf(reg) != StateStarted {
			continue
		}
		if err := reg.Plugin.Stop(ctx); err != nil {
			m.logger.Error("plugin stop failed", "id", reg.Meta.ID, "error", err)
		}
		m.setState(reg, StateStopped, nil)
		m.logger.Info("plugin stopped", "id", reg.Meta.ID)
		m.emit(events.EventPluginStopped, reg.Meta.ID, nil)
	}
}

// AddDynamic registers, initializes, and starts a plugin discovered at
// runtime. Its dependencies must already be registered and healthy.
func (m *Manager) AddDynamic(ctx context.Context, p sdk.Plugin, source string) error {
	meta := p.Metadata()
	m.mu.RLock()
	for _, dep := range meta.Dependencies {
		reg, ok := m.plugins[dep]
		if !ok {
			m.mu.RUnlock()
			return fmt.Errorf("%w: %s requires %s", ErrMissingDep, meta.ID, dep)
		}
		if reg.State == StateFailed {
			m.mu.RUnlock()
			return fmt.Errorf("dependency %s of %s is failed", dep, meta.ID)
		}
	}
	m.mu.RUnlock()

	if err := m.RegisterSource(p, source); err != nil {
		return err
	}
	m.emit(events.EventPluginDiscovered, meta.ID, map[string]any{"source": source})

	m.mu.Lock()
	reg := m.plugins[meta.ID]
	m.initOrder = append(m.initOrder, reg)
	m.mu.Unlock()

	host := m.newContext(meta.ID)
	if err := m.initOne(ctx, reg, host); err != nil {
		m.setState(reg, StateFailed, err)
		m.emit(events.EventPluginInitFailed, meta.ID, map[string]any{"error": err.Error()})
		return fmt.Errorf("init failed for %s: %w", meta.ID, err)
	}
	m.setState(reg, StateInitialized, nil)

	if err := reg.Plugin.Start(ctx); err != nil {
		m.setState(reg, StateFailed, err)
		return fmt.Errorf("start failed for %s: %w", meta.ID, err)
	}
	m.setState(reg, StateStarted, nil)
	m.logger.Info("dynamic plugin started", "id", meta.ID, "source", source)
	m.emit(events.EventPluginStarted, meta.ID, nil)
	return nil
}

// Has reports whether a plugin ID is registered.
func (m *Manager) Has(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.plugins[id]
	return ok
}

// Get returns the current info for one plugin.
func (m *Manager) Get(id string) (Info, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	reg, ok := m.plugins[id]
	if !ok {
		return Info{}, false
	}
	return reg.info(), true
}

// List returns info for every plugin in registration order.
func (m *Manager) List() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	regs := make([]*Registration, 0, len(m.plugins))
	for _, reg := range m.plugins {
		regs = append(regs, reg)
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i].order < regs[j].order })

	out := make([]Info, 0, len(regs))
	for _, reg := range regs {
		out = append(out, reg.info())
	}
	return out
}

func (reg *Registration) info() Info {
	info := Info{
		ID:           reg.Meta.ID,
		Name:         reg.Meta.Name,
		Version:      reg.Meta.Version,
		Description:  reg.Meta.Description,
		Author:       reg.Meta.Author,
		Dependencies: reg.Meta.Dependencies,
		Source:       reg.Source,
		State:        reg.State.String(),
	}
	if reg.Err != nil {
		info.Error = reg.Err.Error()
	}
	return info
}

func (m *Manager) failedDependency(reg *Registration) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, dep := range reg.Meta.Dependencies {
		if depReg, ok := m.plugins[dep]; ok && depReg.State == StateFailed {
			return dep
		}
	}
	return ""
}

func (m *Manager) emit(eventType, pluginID string, extra map[string]any) {
	if m.bus == nil {
		return
	}
	payload := map[string]any{"plugin_id": pluginID}
	for k, v := range extra {
		payload[k] = v
	}
	m.bus.Publish(events.Event{
		Type:    eventType,
		Source:  "plugin-manager",
		Payload: payload,
	})
}

// mountRouter merges a plugin's routes into the server dispatch table under
// /<plugin-id>/. Called by the Host context during init.
func (m *Manager) mountRouter(pluginID string, router *sdk.Router) {
	m.mu.RLock()
	engine := m.engine
	m.mu.RUnlock()

	if engine == nil {
		m.logger.Warn("no engine attached, dropping plugin routes", "plugin", pluginID)
		return
	}

	group := engine.Group("/" + pluginID)
	for _, route := range router.Routes() {
		group.Handle(route.Method, route.Path, route.Handler)
		m.logger.Debug("route mounted", "plugin", pluginID, "method", route.Method, "path", "/"+pluginID+route.Path)
	}
}

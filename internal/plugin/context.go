package plugin

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/castbot/castbot/internal/database"
	"github.com/castbot/castbot/internal/events"
	"github.com/castbot/castbot/sdk"
)

// hostContext is the capability object a plugin receives at Init. One is
// created per plugin; it scopes every operation to the owning plugin's ID.
type hostContext struct {
	pluginID string
	manager  *Manager
	logger   hclog.Logger
}

var _ sdk.Host = (*hostContext)(nil)

func (m *Manager) newContext(pluginID string) sdk.Host {
	return &hostContext{
		pluginID: pluginID,
		manager:  m,
		logger:   m.logger.ResetNamed("castbot.plugin." + pluginID),
	}
}

func (h *hostContext) Migrate(statements ...string) error {
	if h.manager.db == nil {
		return fmt.Errorf("plugin %s: no database configured", h.pluginID)
	}
	return database.Migrate(h.manager.db, statements...)
}

func (h *hostContext) ProvideService(operation string, fn sdk.ServiceFunc) error {
	return h.manager.services.Provide(h.pluginID, operation, fn)
}

func (h *hostContext) CallService(ctx context.Context, pluginID, operation string, req map[string]any) (map[string]any, error) {
	return h.manager.services.Call(ctx, pluginID, operation, req)
}

func (h *hostContext) Emit(event string, payload map[string]any) {
	if h.manager.bus == nil {
		return
	}
	h.manager.bus.Publish(events.Event{
		Type:    event,
		Source:  "plugin:" + h.pluginID,
		Payload: payload,
	})
}

func (h *hostContext) Subscribe(event string, fn sdk.EventFunc) {
	if h.manager.bus == nil {
		return
	}
	h.manager.bus.Subscribe(event, func(e events.Event) {
		fn(e.Type, e.Payload)
	})
}

func (h *hostContext) RegisterRouter(router *sdk.Router) {
	h.manager.mountRouter(h.pluginID, router)
}

func (h *hostContext) RegisterCommand(cmd sdk.Command) error {
	if h.manager.commands == nil {
		return fmt.Errorf("plugin %s: command system not available", h.pluginID)
	}
	return h.manager.commands.Register(cmd)
}

func (h *hostContext) DB() *gorm.DB {
	return h.manager.db
}

func (h *hostContext) Logger() hclog.Logger {
	return h.logger
}

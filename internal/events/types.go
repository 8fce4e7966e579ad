package events

import (
	"time"
)

// Event is a process-wide notification keyed by type name. Payload keys are
// free-form; listeners only within this process receive them.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Source    string         `json:"source"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Handler receives events for a subscription. Handlers run on a dedicated
// per-subscription goroutine: events from the bus arrive in FIFO order, and a
// slow handler never blocks the emitter or other subscriptions.
type Handler func(Event)

// Runtime event types emitted by the host itself.
const (
	EventSystemStarted    = "system.started"
	EventSystemStopped    = "system.stopped"
	EventPluginRegistered = "plugin.registered"
	EventPluginInitFailed = "plugin.init_failed"
	EventPluginStarted    = "plugin.started"
	EventPluginStopped    = "plugin.stopped"
	EventPluginDiscovered = "plugin.discovered"
	EventCommandExecuted  = "command.executed"
	EventChatConnected    = "chat.connected"
	EventChatDisconnected = "chat.disconnected"
)

// Stats are cumulative counters for the admin API.
type Stats struct {
	TotalEvents         int64            `json:"total_events"`
	DroppedEvents       int64            `json:"dropped_events"`
	EventsByType        map[string]int64 `json:"events_by_type"`
	ActiveSubscriptions int              `json:"active_subscriptions"`
}

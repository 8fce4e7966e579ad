package command

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/castbot/castbot/internal/events"
	"github.com/castbot/castbot/sdk"
)

// Prefix marks chat messages as command invocations.
const Prefix = "!"

type cooldownKey struct {
	channel string
	command string
}

// Dispatcher routes incoming chat messages to command handlers. Messages are
// processed in arrival order; handlers run on their own goroutines and a slow
// handler never blocks ingestion of the next message.
type Dispatcher struct {
	logger   hclog.Logger
	registry *Registry
	bus      *events.Bus // optional

	mu      sync.Mutex
	lastRun map[cooldownKey]time.Time

	// now is swapped by tests to control cooldown timing.
	now func() time.Time
}

// NewDispatcher wires a dispatcher to a command table. bus may be nil.
func NewDispatcher(registry *Registry, bus *events.Bus, logger hclog.Logger) *Dispatcher {
	return &Dispatcher{
		logger:   logger.Named("dispatch"),
		registry: registry,
		bus:      bus,
		lastRun:  make(map[cooldownKey]time.Time),
		now:      time.Now,
	}
}

// Dispatch runs the per-message state machine. Unknown commands, disabled
// commands, insufficient permission, and active cooldowns are all normal
// "no action" outcomes, not errors; nothing is sent and no handler runs.
func (d *Dispatcher) Dispatch(ctx context.Context, cc sdk.CommandContext, say sdk.Sender) {
	fields := strings.Fields(cc.Message)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], Prefix) {
		return
	}
	token := strings.TrimPrefix(fields[0], Prefix)
	if token == "" {
		return
	}

	cmd, ok := d.registry.Resolve(token)
	if !ok {
		return
	}
	if !cmd.Enabled {
		return
	}
	if cc.Level < cmd.Level {
		d.logger.Debug("permission denied",
			"command", cmd.Name, "user", cc.User, "level", cc.Level.String(), "required", cmd.Level.String())
		return
	}

	key := cooldownKey{channel: cc.Channel, command: strings.ToLower(cmd.Name)}
	d.mu.Lock()
	now := d.now()
	if last, ok := d.lastRun[key]; ok && cmd.Cooldown > 0 && now.Sub(last) < cmd.Cooldown {
		d.mu.Unlock()
		d.logger.Debug("cooldown active", "command", cmd.Name, "channel", cc.Channel)
		return
	}
	// Stamped before the handler runs so a burst of messages during a slow
	// handler cannot bypass the cooldown.
	d.lastRun[key] = now
	d.mu.Unlock()

	snapshot := cc
	snapshot.Args = append([]string(nil), fields[1:]...)

	go d.run(ctx, cmd, snapshot, say)
}

// run executes one handler invocation. The dispatcher holds no reference to
// it afterward; a handler that never returns leaks a goroutine but cannot
// block dispatch.
func (d *Dispatcher) run(ctx context.Context, cmd *sdk.Command, cc sdk.CommandContext, say sdk.Sender) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic in command handler", "command", cmd.Name, "error", r)
		}
	}()

	reply, err := cmd.Handler(ctx, cc, say)
	if err != nil {
		d.logger.Error("command handler failed", "command", cmd.Name, "channel", cc.Channel, "error", err)
		return
	}
	if reply != "" {
		if err := say.Say(cc.Channel, reply); err != nil {
			d.logger.Error("failed to send command reply", "command", cmd.Name, "channel", cc.Channel, "error", err)
		}
	}

	if d.bus != nil {
		d.bus.Publish(events.Event{
			Type:   events.EventCommandExecuted,
			Source: "commands",
			Payload: map[string]any{
				"command": cmd.Name,
				"channel": cc.Channel,
				"user":    cc.User,
			},
		})
	}
}

// ResetCooldown clears the cooldown state for one (channel, command) pair.
func (d *Dispatcher) ResetCooldown(channel, command string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.lastRun, cooldownKey{channel: channel, command: strings.ToLower(command)})
}

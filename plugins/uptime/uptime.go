// Package uptime is a built-in plugin that reports how long the bot has been
// connected. It depends on the quotes plugin to decorate its replies.
package uptime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/castbot/castbot/sdk"
)

const ID = "uptime"

type Plugin struct {
	sdk.BasePlugin
	host   sdk.Host
	logger hclog.Logger

	mu    sync.Mutex
	since time.Time
}

func New() *Plugin { return &Plugin{} }

func (p *Plugin) Metadata() sdk.Metadata {
	return sdk.Metadata{
		ID:           ID,
		Name:         "Uptime",
		Version:      "1.0.0",
		Description:  "Reports session uptime in chat",
		Author:       "castbot",
		Dependencies: []string{"quotes"},
	}
}

func (p *Plugin) Init(ctx context.Context, host sdk.Host) error {
	p.host = host
	p.logger = host.Logger()

	// The quotes service must already be registered; dependency ordering
	// guarantees it. A failure here means the graph is wired wrong.
	if _, err := host.CallService(ctx, "quotes", "random", nil); err != nil {
		return fmt.Errorf("quotes service unavailable: %w", err)
	}

	host.Subscribe("chat.connected", func(event string, payload map[string]any) {
		p.mu.Lock()
		p.since = time.Now()
		p.mu.Unlock()
	})

	return host.RegisterCommand(sdk.Command{
		Name:        "uptime",
		Description: "How long the bot has been up",
		Usage:       "!uptime",
		Level:       sdk.LevelEveryone,
		Cooldown:    10 * time.Second,
		Enabled:     true,
		Handler:     p.cmdUptime,
	})
}

func (p *Plugin) Start(ctx context.Context) error {
	p.mu.Lock()
	p.since = time.Now()
	p.mu.Unlock()
	return nil
}

func (p *Plugin) cmdUptime(ctx context.Context, cc sdk.CommandContext, _ sdk.Sender) (string, error) {
	p.mu.Lock()
	since := p.since
	p.mu.Unlock()

	elapsed := time.Since(since).Round(time.Second)
	p.host.Emit("uptime.checked", map[string]any{
		"channel": cc.Channel,
		"user":    cc.User,
		"seconds": int64(elapsed.Seconds()),
	})

	reply := fmt.Sprintf("Up for %s.", formatDuration(elapsed))
	if result, err := p.host.CallService(ctx, "quotes", "random", nil); err == nil {
		if found, _ := result["found"].(bool); found {
			if text, _ := result["text"].(string); text != "" {
				reply += fmt.Sprintf(" Meanwhile: \"%s\"", text)
			}
		}
	}
	return reply, nil
}

func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

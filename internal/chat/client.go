// Package chat connects the command dispatcher to an IRC-over-websocket
// chat server. The transport is an external collaborator: it feeds messages
// in arrival order and carries outbound replies, nothing more.
package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"

	"github.com/castbot/castbot/internal/command"
	"github.com/castbot/castbot/internal/config"
	"github.com/castbot/castbot/internal/events"
	"github.com/castbot/castbot/sdk"
)

const (
	dialTimeout      = 10 * time.Second
	writeTimeout     = 10 * time.Second
	reconnectBackoff = 5 * time.Second
)

// Client is the IRC-over-websocket chat transport. It implements sdk.Sender
// for outbound messages.
type Client struct {
	logger     hclog.Logger
	cfg        config.ChatConfig
	dispatcher *command.Dispatcher
	bus        *events.Bus

	mu   sync.Mutex
	conn *websocket.Conn

	cancel context.CancelFunc
	done   chan struct{}
}

var _ sdk.Sender = (*Client)(nil)

// NewClient creates a chat client. bus may be nil.
func NewClient(cfg config.ChatConfig, dispatcher *command.Dispatcher, bus *events.Bus, logger hclog.Logger) *Client {
	return &Client{
		logger:     logger.Named("chat"),
		cfg:        cfg,
		dispatcher: dispatcher,
		bus:        bus,
	}
}

// Start launches the connect/read loop. It reconnects with backoff until the
// context is cancelled or Stop is called.
func (c *Client) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	go c.runLoop(ctx)
}

// Stop tears the connection down and waits for the loop to exit.
func (c *Client) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.mu.Unlock()
	if c.done != nil {
		<-c.done
	}
}

// Say sends one chat line to a channel.
func (c *Client) Say(channel, text string) error {
	return c.write(fmt.Sprintf("PRIVMSG #%s :%s", channel, text))
}

func (c *Client) write(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("chat transport not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, []byte(line+"\r\n"))
}

func (c *Client) runLoop(ctx context.Context) {
	defer close(c.done)

	for {
		if err := c.connect(ctx); err != nil {
			c.logger.Error("chat connect failed", "error", err)
		} else {
			c.readLoop(ctx)
		}

		if c.bus != nil {
			c.bus.Publish(events.Event{Type: events.EventChatDisconnected, Source: "chat"})
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectBackoff):
		}
	}
}

func (c *Client) connect(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, c.cfg.ServerURL, nil)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", c.cfg.ServerURL, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	// Tag capability carries the badge information permission levels
	// are derived from.
	lines := []string{
		"CAP REQ :twitch.tv/tags twitch.tv/commands",
		"PASS oauth:" + c.cfg.Token,
		"NICK " + c.cfg.Nick,
	}
	for _, channel := range c.cfg.Channels {
		lines = append(lines, "JOIN #"+channel)
	}
	for _, line := range lines {
		if err := c.write(line); err != nil {
			conn.Close()
			return err
		}
	}

	c.logger.Info("chat connected", "server", c.cfg.ServerURL, "channels", c.cfg.Channels)
	if c.bus != nil {
		c.bus.Publish(events.Event{Type: events.EventChatConnected, Source: "chat"})
	}
	return nil
}

// readLoop processes inbound messages in arrival order. Dispatch never
// blocks: handlers run on their own goroutines.
func (c *Client) readLoop(ctx context.Context) {
	for {
		_, data, err := c.readMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("chat read failed, reconnecting", "error", err)
			}
			return
		}

		for _, line := range strings.Split(string(data), "\r\n") {
			if line == "" {
				continue
			}
			c.handleLine(ctx, line)
		}
	}
}

func (c *Client) readMessage() (int, []byte, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return 0, nil, fmt.Errorf("chat transport not connected")
	}
	return conn.ReadMessage()
}

func (c *Client) handleLine(ctx context.Context, line string) {
	if strings.HasPrefix(line, "PING") {
		c.write("PONG" + strings.TrimPrefix(line, "PING"))
		return
	}

	msg, ok := parseLine(line)
	if !ok {
		return
	}

	c.dispatcher.Dispatch(ctx, sdk.CommandContext{
		Channel: msg.Channel,
		User:    msg.User,
		Level:   msg.Level,
		Message: msg.Text,
	}, c)
}

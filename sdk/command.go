package sdk

import (
	"context"
	"time"
)

// PermissionLevel is the ordered role required to invoke a command.
type PermissionLevel int

const (
	LevelEveryone PermissionLevel = iota
	LevelSubscriber
	LevelModerator
	LevelBroadcaster
)

// String returns the lowercase role name.
func (l PermissionLevel) String() string {
	switch l {
	case LevelEveryone:
		return "everyone"
	case LevelSubscriber:
		return "subscriber"
	case LevelModerator:
		return "moderator"
	case LevelBroadcaster:
		return "broadcaster"
	}
	return "unknown"
}

// CommandContext is the immutable snapshot a command handler receives. It is
// cloned into any work the handler spawns.
type CommandContext struct {
	Channel string
	User    string
	Level   PermissionLevel
	Message string
	Args    []string
}

// Sender is the outbound-messaging capability handed to command handlers.
type Sender interface {
	Say(channel, text string) error
}

// CommandFunc handles a chat command invocation. It runs on its own goroutine,
// independently of the dispatch loop. A non-empty return string is sent to the
// originating channel; an empty string means the handler either has nothing to
// say or will send asynchronously through the Sender.
type CommandFunc func(ctx context.Context, cc CommandContext, say Sender) (string, error)

// Command is a chat-triggered action gated by permission level and cooldown.
// Name and every alias must be globally unique, case-insensitively.
type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Level       PermissionLevel
	Cooldown    time.Duration
	Enabled     bool
	Handler     CommandFunc
}

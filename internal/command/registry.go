// Package command implements the chat command table and the dispatch state
// machine: permission checks, per-channel cooldowns, and fire-and-forget
// handler execution.
package command

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/castbot/castbot/sdk"
)

// ErrDuplicateCommand is returned when a command name or alias is already
// taken. Registration is rejected whole; the table is left unchanged.
var ErrDuplicateCommand = errors.New("command name or alias already registered")

// Registry is the table of named commands. Names and aliases share one
// case-insensitive namespace.
type Registry struct {
	logger hclog.Logger

	mu       sync.RWMutex
	commands map[string]*sdk.Command // canonical name -> command
	lookup   map[string]*sdk.Command // lowercased name and aliases
}

// NewRegistry creates an empty command table.
func NewRegistry(logger hclog.Logger) *Registry {
	return &Registry{
		logger:   logger.Named("commands"),
		commands: make(map[string]*sdk.Command),
		lookup:   make(map[string]*sdk.Command),
	}
}

// Register adds a command. Every token (name and aliases) is checked before
// anything is inserted, so a rejected registration has no side effects.
func (r *Registry) Register(cmd sdk.Command) error {
	if cmd.Name == "" {
		return fmt.Errorf("command name is required")
	}
	if cmd.Handler == nil {
		return fmt.Errorf("command %s: nil handler", cmd.Name)
	}

	tokens := make([]string, 0, 1+len(cmd.Aliases))
	tokens = append(tokens, strings.ToLower(cmd.Name))
	for _, alias := range cmd.Aliases {
		tokens = append(tokens, strings.ToLower(alias))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool, len(tokens))
	for _, token := range tokens {
		if seen[token] {
			return fmt.Errorf("%w: %s", ErrDuplicateCommand, token)
		}
		seen[token] = true
		if _, exists := r.lookup[token]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateCommand, token)
		}
	}

	stored := cmd
	r.commands[strings.ToLower(cmd.Name)] = &stored
	for _, token := range tokens {
		r.lookup[token] = &stored
	}

	r.logger.Debug("command registered", "name", cmd.Name, "aliases", cmd.Aliases, "level", cmd.Level.String())
	return nil
}

// Resolve finds a command by name or alias, case-insensitively.
func (r *Registry) Resolve(token string) (*sdk.Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.lookup[strings.ToLower(token)]
	return cmd, ok
}

// List returns all registered commands.
func (r *Registry) List() []sdk.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]sdk.Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		out = append(out, *cmd)
	}
	return out
}

// Len returns the number of registered commands (aliases not counted).
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

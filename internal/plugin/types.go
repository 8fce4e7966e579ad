// Package plugin implements the host's plugin runtime: registration,
// dependency-ordered lifecycle, the cross-plugin service registry, and the
// per-plugin HTTP sub-routers.
package plugin

import (
	"errors"

	"github.com/castbot/castbot/sdk"
)

// State tracks a plugin through its lifecycle. Transitions are
// one-directional; Stopped is terminal for the process lifetime.
type State int

const (
	StateRegistered State = iota
	StateInitialized
	StateStarted
	StateStopped
	StateFailed
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateRegistered:
		return "registered"
	case StateInitialized:
		return "initialized"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Plugin sources, in default precedence order for identifier collisions.
const (
	SourceStatic   = "static"
	SourceDisk     = "disk"
	SourceEmbedded = "embedded"
)

// Registration owns one plugin instance and its runtime state.
type Registration struct {
	Plugin sdk.Plugin
	Meta   sdk.Metadata
	Source string
	State  State
	Err    error

	// order is the registration sequence number; the topological sort breaks
	// ties with it so initialization order is deterministic.
	order int
}

// Info is the JSON shape of a registration for the admin API and CLI.
type Info struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Description  string   `json:"description,omitempty"`
	Author       string   `json:"author,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
	Source       string   `json:"source"`
	State        string   `json:"state"`
	Error        string   `json:"error,omitempty"`
}

// Configuration errors, fatal at registration time.
var (
	ErrDuplicatePlugin  = errors.New("plugin identifier already registered")
	ErrDependencyCycle  = errors.New("plugin dependency cycle")
	ErrMissingDep       = errors.New("plugin dependency not registered")
	ErrDuplicateService = errors.New("service already registered")
)

// ErrServiceNotFound is returned by service calls on unregistered
// (plugin, operation) pairs.
var ErrServiceNotFound = errors.New("service not found")

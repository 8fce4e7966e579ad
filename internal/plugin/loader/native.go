package loader

import (
	"errors"
	"fmt"
	goplugin "plugin"

	"github.com/castbot/castbot/sdk"
)

var errNotArtifact = errors.New("not a plugin artifact")

// ErrABIMismatch marks a native artifact built against a different plugin
// ABI version; the artifact is rejected instead of crashing the host.
var ErrABIMismatch = errors.New("plugin ABI version mismatch")

// loadNative maps a shared library into the host process and verifies it
// exposes the expected entry points. Any malformed or incompatible artifact
// fails with a descriptive error and never aborts loading of other plugins.
func loadNative(path string) (sdk.Plugin, error) {
	lib, err := goplugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open shared library %s: %w", path, err)
	}

	versionSym, err := lib.Lookup(sdk.ABIVersionSymbol)
	if err != nil {
		return nil, fmt.Errorf("artifact %s does not export %s: %w", path, sdk.ABIVersionSymbol, err)
	}
	version, ok := versionSym.(*uint32)
	if !ok {
		return nil, fmt.Errorf("artifact %s: %s has wrong type %T, want uint32", path, sdk.ABIVersionSymbol, versionSym)
	}
	if *version != sdk.ABIVersion {
		return nil, fmt.Errorf("%w: artifact %s built against ABI %d, host speaks %d",
			ErrABIMismatch, path, *version, sdk.ABIVersion)
	}

	newSym, err := lib.Lookup(sdk.NewPluginSymbol)
	if err != nil {
		return nil, fmt.Errorf("artifact %s does not export %s: %w", path, sdk.NewPluginSymbol, err)
	}
	constructor, ok := newSym.(func() sdk.Plugin)
	if !ok {
		return nil, fmt.Errorf("artifact %s: %s has wrong signature %T, want func() sdk.Plugin",
			path, sdk.NewPluginSymbol, newSym)
	}

	p := constructor()
	if p == nil {
		return nil, fmt.Errorf("artifact %s: %s returned nil", path, sdk.NewPluginSymbol)
	}
	if p.Metadata().ID == "" {
		return nil, fmt.Errorf("artifact %s: plugin metadata has empty identifier", path)
	}
	return p, nil
}

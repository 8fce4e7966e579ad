package loader

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/castbot/castbot/sdk"
)

// manifest is the CUE shape of a script plugin manifest.
type manifest struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Description  string   `json:"description"`
	Author       string   `json:"author"`
	Dependencies []string `json:"dependencies"`
}

// ParseManifest decodes a `<id>.cue` manifest into plugin metadata. The
// manifest may wrap its fields in a #Plugin definition or declare them at
// the top level.
func ParseManifest(data []byte) (sdk.Metadata, error) {
	cueCtx := cuecontext.New()
	value := cueCtx.CompileBytes(data)
	if err := value.Err(); err != nil {
		return sdk.Metadata{}, fmt.Errorf("failed to parse manifest: %w", err)
	}

	pluginValue := value.LookupPath(cue.ParsePath("#Plugin"))
	if !pluginValue.Exists() {
		pluginValue = value
	}

	var m manifest
	if err := pluginValue.Decode(&m); err != nil {
		return sdk.Metadata{}, fmt.Errorf("failed to decode manifest: %w", err)
	}
	if m.Version == "" {
		return sdk.Metadata{}, fmt.Errorf("manifest missing required field: version")
	}

	name := m.Name
	if name == "" {
		name = m.ID
	}
	return sdk.Metadata{
		ID:           m.ID,
		Name:         name,
		Version:      m.Version,
		Description:  m.Description,
		Author:       m.Author,
		Dependencies: m.Dependencies,
	}, nil
}

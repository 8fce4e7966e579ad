// Package loader resolves plugin code that lives outside the statically
// linked feature set: native shared libraries and script artifacts, found
// either on disk or embedded into the host binary at build time. Every
// origin is exposed through one uniform Loaded value.
package loader

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/castbot/castbot/sdk"
)

// Plugin sources. Values match the manager's source names.
const (
	SourceDisk     = "disk"
	SourceEmbedded = "embedded"
)

// Loaded is the uniform result of loading one plugin artifact, regardless of
// whether the bytes came from disk or were embedded at build time.
type Loaded struct {
	Plugin sdk.Plugin
	Source string
	Path   string
}

// Registrar is the subset of the plugin manager the loader needs.
type Registrar interface {
	Has(id string) bool
	AddDynamic(ctx context.Context, p sdk.Plugin, source string) error
}

// Loader discovers and loads dynamic plugin artifacts.
type Loader struct {
	logger     hclog.Logger
	pluginDir  string
	scratchDir string
}

// New creates a loader. scratchDir receives embedded native payloads, which
// must exist as files before the platform loader can map them.
func New(pluginDir, scratchDir string, logger hclog.Logger) *Loader {
	return &Loader{
		logger:     logger.Named("loader"),
		pluginDir:  pluginDir,
		scratchDir: scratchDir,
	}
}

// nativeExt returns the shared-library extension for the host platform.
func nativeExt() string {
	switch runtime.GOOS {
	case "windows":
		return ".dll"
	case "darwin":
		return ".dylib"
	default:
		return ".so"
	}
}

// scriptExt is the recognized script artifact extension.
const scriptExt = ".lua"

// DeriveID produces the stable plugin identifier for an artifact filename:
// the base name with the conventional native-library prefix and the
// extension stripped (libquotes.so -> quotes, greeter.lua -> greeter).
func DeriveID(filename string) string {
	base := filepath.Base(filename)
	ext := filepath.Ext(base)
	id := strings.TrimSuffix(base, ext)
	if ext == nativeExt() || ext == ".so" || ext == ".dylib" || ext == ".dll" {
		id = strings.TrimPrefix(id, "lib")
	}
	return id
}

// isArtifact reports whether a filename is a loadable plugin artifact on
// this platform.
func isArtifact(filename string) (native bool, ok bool) {
	switch filepath.Ext(filename) {
	case nativeExt():
		return true, true
	case scriptExt:
		return false, true
	default:
		return false, false
	}
}

// DiscoverDisk scans the plugin directory for loadable artifacts. A
// malformed artifact is skipped with a logged error; the remaining artifacts
// still load.
func (l *Loader) DiscoverDisk() []Loaded {
	entries, err := os.ReadDir(l.pluginDir)
	if err != nil {
		if !os.IsNotExist(err) {
			l.logger.Error("failed to read plugin directory", "dir", l.pluginDir, "error", err)
		}
		return nil
	}

	var out []Loaded
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(l.pluginDir, entry.Name())
		loaded, err := l.LoadPath(path)
		if err != nil {
			if err != errNotArtifact {
				l.logger.Error("failed to load plugin artifact", "path", path, "error", err)
			}
			continue
		}
		out = append(out, loaded)
	}
	return out
}

// LoadPath loads a single on-disk artifact.
func (l *Loader) LoadPath(path string) (Loaded, error) {
	native, ok := isArtifact(path)
	if !ok {
		return Loaded{}, errNotArtifact
	}

	var (
		p   sdk.Plugin
		err error
	)
	if native {
		p, err = loadNative(path)
	} else {
		p, err = l.loadScriptFile(path)
	}
	if err != nil {
		return Loaded{}, err
	}

	l.logger.Info("loaded plugin artifact",
		"id", p.Metadata().ID, "path", path, "native", native)
	return Loaded{Plugin: p, Source: SourceDisk, Path: path}, nil
}

// DiscoverEmbedded loads artifacts baked into the host binary. Native
// payloads are written to the scratch directory first so the platform loader
// can map them; script payloads feed the interpreter directly.
func (l *Loader) DiscoverEmbedded() []Loaded {
	var out []Loaded
	for _, artifact := range EmbeddedArtifacts() {
		loaded, err := l.loadEmbedded(artifact)
		if err != nil {
			l.logger.Error("failed to load embedded plugin", "id", artifact.ID, "error", err)
			continue
		}
		out = append(out, loaded)
	}
	return out
}

func (l *Loader) loadEmbedded(artifact Artifact) (Loaded, error) {
	if artifact.Native {
		if err := os.MkdirAll(l.scratchDir, 0755); err != nil {
			return Loaded{}, err
		}
		path := filepath.Join(l.scratchDir, artifact.Filename)
		if err := os.WriteFile(path, artifact.Data, 0755); err != nil {
			return Loaded{}, err
		}
		p, err := loadNative(path)
		if err != nil {
			return Loaded{}, err
		}
		return Loaded{Plugin: p, Source: SourceEmbedded, Path: path}, nil
	}

	p, err := l.loadScript(artifact.ID, artifact.Data, artifact.Manifest)
	if err != nil {
		return Loaded{}, err
	}
	return Loaded{Plugin: p, Source: SourceEmbedded, Path: artifact.Filename}, nil
}

func (l *Loader) loadScriptFile(path string) (sdk.Plugin, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	id := DeriveID(path)
	var manifest []byte
	manifestPath := filepath.Join(filepath.Dir(path), id+".cue")
	if data, err := os.ReadFile(manifestPath); err == nil {
		manifest = data
	}
	return l.loadScript(id, source, manifest)
}

func (l *Loader) loadScript(id string, source, manifest []byte) (sdk.Plugin, error) {
	meta := sdk.Metadata{ID: id, Name: id, Version: "0.0.0"}
	if len(manifest) > 0 {
		parsed, err := ParseManifest(manifest)
		if err != nil {
			return nil, err
		}
		meta = parsed
		if meta.ID == "" {
			meta.ID = id
		}
	}
	return newScriptPlugin(meta, source, l.logger), nil
}

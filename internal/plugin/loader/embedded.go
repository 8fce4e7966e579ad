package loader

import (
	"embed"
	"io/fs"
	"path/filepath"
	"sort"
)

// The build embeds every artifact placed under artifacts/ into the host
// binary: shared libraries for the host platform and .lua scripts, plus
// optional <id>.cue manifests for scripts. Identifiers are derived from the
// filename (lib prefix and extension stripped) and the payloads are
// immutable at runtime.
//
//go:embed all:artifacts
var embeddedFS embed.FS

const embeddedDir = "artifacts"

// Artifact is one embedded plugin payload.
type Artifact struct {
	ID       string
	Filename string
	Data     []byte
	Native   bool
	Manifest []byte // sibling <id>.cue, scripts only
}

// EmbeddedArtifacts returns the plugin artifacts baked into this binary,
// sorted by identifier. Unrecognized files in the embed directory are
// ignored.
func EmbeddedArtifacts() []Artifact {
	return artifactsFromFS(embeddedFS, embeddedDir)
}

func artifactsFromFS(fsys fs.FS, dir string) []Artifact {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil
	}

	var out []Artifact
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		native, ok := isArtifact(entry.Name())
		if !ok {
			continue
		}
		data, err := fs.ReadFile(fsys, filepath.ToSlash(filepath.Join(dir, entry.Name())))
		if err != nil {
			continue
		}

		artifact := Artifact{
			ID:       DeriveID(entry.Name()),
			Filename: entry.Name(),
			Data:     data,
			Native:   native,
		}
		if !native {
			manifestName := filepath.ToSlash(filepath.Join(dir, artifact.ID+".cue"))
			if manifest, err := fs.ReadFile(fsys, manifestName); err == nil {
				artifact.Manifest = manifest
			}
		}
		out = append(out, artifact)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

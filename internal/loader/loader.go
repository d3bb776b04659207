// Package loader translates pipeline documents into the config model. Two
// concrete formats are supported: HCL and YAML, selected by file extension.
// Both produce the same *config.Pipeline; nothing downstream of the loader
// knows which format the document was written in.
package loader

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/vk/vidpipe/internal/config"
)

// Loader parses one pipeline document.
type Loader interface {
	Load(ctx context.Context, path string) (*config.Pipeline, error)
}

// ForPath selects a loader implementation from the file extension.
func ForPath(path string) (Loader, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".hcl":
		return NewHCLLoader(), nil
	case ".yml", ".yaml":
		return NewYAMLLoader(), nil
	default:
		return nil, config.Errorf("", "unsupported config format %q (want .hcl, .yml or .yaml)", filepath.Ext(path))
	}
}

// Load is the convenience entry point used by the app: pick a loader for the
// path and run it.
func Load(ctx context.Context, path string) (*config.Pipeline, error) {
	l, err := ForPath(path)
	if err != nil {
		return nil, err
	}
	return l.Load(ctx, path)
}

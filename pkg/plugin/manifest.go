package plugin

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/go-playground/validator/v10"

	"github.com/hearthd/hearthd/pkg/kernel/errs"
)

// ManifestFile is the per-plugin manifest name. Directories without one are
// not plugins; loading is manifest-only by contract.
const ManifestFile = "plugin.json"

// Manifest declares a plugin's identity, its factory symbol, and its
// dependencies.
type Manifest struct {
	ClassPath    string   `json:"class_path" validate:"required"`
	Name         string   `json:"name" validate:"required"`
	Version      string   `json:"version"`
	Description  string   `json:"description"`
	Author       string   `json:"author"`
	Dependencies []string `json:"dependencies"`
}

var manifestValidator = validator.New()

// ParseManifest decodes and validates a raw manifest document.
func ParseManifest(raw []byte) (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return Manifest{}, fmt.Errorf("%w: malformed manifest: %v", errs.ErrInvalidInput, err)
	}
	if err := manifestValidator.Struct(m); err != nil {
		return Manifest{}, fmt.Errorf("%w: manifest missing class_path or name: %v", errs.ErrInvalidInput, err)
	}
	if slices.Contains(m.Dependencies, m.Name) {
		return Manifest{}, fmt.Errorf("%w: plugin %q depends on itself", errs.ErrInvalidInput, m.Name)
	}
	return m, nil
}

// LoadManifest reads and validates the manifest inside a plugin directory.
func LoadManifest(dir string) (Manifest, error) {
	raw, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest in %s: %w", dir, err)
	}
	return ParseManifest(raw)
}

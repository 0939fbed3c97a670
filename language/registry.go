package language

import (
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"slices"

	"github.com/isdmx/coderunner/config"
)

// ErrUnsupported is returned by Resolve for identifiers that have no recipe.
var ErrUnsupported = errors.New("unsupported language")

// Language identifiers shipped with the default configuration.
const (
	CPP    = "cpp"
	Python = "python"
	Java   = "java"
)

// Recipe describes how to compile and run one language inside a sandbox image.
type Recipe struct {
	Image      string `yaml:"image"`
	SourceFile string `yaml:"source_file"`
	CompileCmd string `yaml:"compile_cmd,omitempty"`
	RunCmd     string `yaml:"run_cmd"`
}

// Compiled reports whether the recipe has a compile step.
func (r Recipe) Compiled() bool {
	return r.CompileCmd != ""
}

// Registry maps language identifiers to recipes. It is immutable once built
// and safe for concurrent use without locking.
type Registry struct {
	recipes map[string]Recipe
	ids     []string
}

// NewRegistry validates and copies recipes into a new Registry.
func NewRegistry(recipes map[string]Recipe) (*Registry, error) {
	if len(recipes) == 0 {
		return nil, errors.New("no language recipes")
	}

	owned := make(map[string]Recipe, len(recipes))
	for id, r := range recipes {
		if id == "" {
			return nil, errors.New("empty language identifier")
		}
		if r.Image == "" || r.RunCmd == "" {
			return nil, fmt.Errorf("language %s: image and run command are required", id)
		}
		// The source file is written into the workspace root; anything that is not a
		// plain file name could escape it.
		if r.SourceFile == "" || filepath.Base(r.SourceFile) != r.SourceFile || r.SourceFile == "." || r.SourceFile == ".." {
			return nil, fmt.Errorf("language %s: invalid source file %q", id, r.SourceFile)
		}
		owned[id] = r
	}

	return &Registry{
		recipes: owned,
		ids:     slices.Sorted(maps.Keys(owned)),
	}, nil
}

// NewFromConfig builds the registry from the languages section of the configuration.
func NewFromConfig(cfg *config.Config) (*Registry, error) {
	recipes := make(map[string]Recipe, len(cfg.Languages))
	for id, l := range cfg.Languages {
		recipes[id] = Recipe{
			Image:      l.Image,
			SourceFile: l.SourceFile,
			CompileCmd: l.CompileCmd,
			RunCmd:     l.RunCmd,
		}
	}
	return NewRegistry(recipes)
}

// Resolve returns the recipe for id. It performs no I/O.
func (r *Registry) Resolve(id string) (Recipe, error) {
	recipe, ok := r.recipes[id]
	if !ok {
		return Recipe{}, fmt.Errorf("%w: %q", ErrUnsupported, id)
	}
	return recipe, nil
}

// Languages returns the supported identifiers in sorted order.
func (r *Registry) Languages() []string {
	return slices.Clone(r.ids)
}

// Recipes returns a copy of every recipe keyed by identifier.
func (r *Registry) Recipes() map[string]Recipe {
	return maps.Clone(r.recipes)
}

package envlayers

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/harshul/dx-cli/internal/logger"
)

// DefaultProfileVar is the variable forced to the resolved profile name and
// consulted when no profile flag is given.
const DefaultProfileVar = "NODE_ENV"

// Flags are the profile selectors a caller may set. When several are set the
// first in the order Production, Development, Test, E2E wins.
type Flags struct {
	Production  bool
	Development bool
	Test        bool
	E2E         bool
}

// Layer describes one candidate env file for a profile.
type Layer struct {
	Path     string // as written in the table
	FullPath string // resolved against the project root
	Exists   bool
}

// Resolver merges the env files of a profile over the process environment.
type Resolver struct {
	root        string
	tablePath   string
	table       Table
	tableSource string
	profileVar  string
	environ     func() []string
	log         *logger.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithTable uses t instead of loading the layer table from disk.
func WithTable(t Table) Option {
	return func(r *Resolver) { r.table = t }
}

// WithTablePath overrides the layer table location. Relative paths are
// resolved against the project root.
func WithTablePath(path string) Option {
	return func(r *Resolver) { r.tablePath = path }
}

// WithProfileVar changes the forced profile variable (default NODE_ENV).
func WithProfileVar(name string) Option {
	return func(r *Resolver) {
		if name != "" {
			r.profileVar = name
		}
	}
}

// WithEnviron replaces os.Environ as the base layer.
func WithEnviron(fn func() []string) Option {
	return func(r *Resolver) { r.environ = fn }
}

// WithLogger reports table fallbacks and unreadable layer files.
func WithLogger(l *logger.Logger) Option {
	return func(r *Resolver) { r.log = l }
}

// New creates a Resolver rooted at root. The layer table is loaded once here;
// if it cannot be loaded the fallback table is used.
func New(root string, opts ...Option) *Resolver {
	r := &Resolver{
		root:       root,
		tablePath:  DefaultTablePath,
		profileVar: DefaultProfileVar,
		environ:    os.Environ,
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.table != nil {
		r.tableSource = "inline"
		return r
	}

	path := r.resolve(r.tablePath)
	t, err := LoadTable(path)
	switch {
	case err == nil:
		r.table = t
		r.tableSource = path
	case errors.Is(err, fs.ErrNotExist):
		r.log.Debug("layer table %s not found, using built-in defaults", path)
		r.table = FallbackTable()
	default:
		r.log.Warn("layer table %s unusable, using built-in defaults: %v", path, err)
		r.table = FallbackTable()
	}
	return r
}

// Root returns the project root env files are resolved against.
func (r *Resolver) Root() string { return r.root }

// ProfileVar returns the name of the forced profile variable.
func (r *Resolver) ProfileVar() string { return r.profileVar }

// TableSource returns the path the layer table was read from, "inline" for a
// table passed with WithTable, or "" when the fallback table is in use.
func (r *Resolver) TableSource() string { return r.tableSource }

// Profiles returns the profile names known to the layer table, sorted.
func (r *Resolver) Profiles() []string {
	return sortedKeys(r.table)
}

// DetectEnvironment picks the profile from flags, then the ambient profile
// variable, then "development".
func (r *Resolver) DetectEnvironment(flags Flags) string {
	switch {
	case flags.Production:
		return Production
	case flags.Development:
		return Development
	case flags.Test:
		return Test
	case flags.E2E:
		return E2E
	}
	if v := r.lookup(r.profileVar); v != "" {
		return v
	}
	return Development
}

// EnvironmentFiles returns the ordered layer files for a profile, or nil for
// an unknown profile.
func (r *Resolver) EnvironmentFiles(name string) []string {
	files := r.table[name]
	if len(files) == 0 {
		return nil
	}
	out := make([]string, len(files))
	copy(out, files)
	return out
}

// Layers returns the layer files of a profile with their resolved paths.
func (r *Resolver) Layers(name string) []Layer {
	files := r.EnvironmentFiles(name)
	layers := make([]Layer, 0, len(files))
	for _, f := range files {
		full := r.resolve(f)
		layers = append(layers, Layer{Path: f, FullPath: full, Exists: fileExists(full)})
	}
	return layers
}

// CollectEnvFromLayers starts from the process environment and applies each
// existing layer file on top. Layer values override exported shell values.
// A file that exists but cannot be read is skipped with a warning.
func (r *Resolver) CollectEnvFromLayers(name string) map[string]string {
	env := r.baseEnv()

	for _, layer := range r.Layers(name) {
		if !layer.Exists {
			continue
		}
		data, err := os.ReadFile(layer.FullPath)
		if err != nil {
			r.log.Warn("skipping env file %s: %v", layer.Path, err)
			continue
		}
		parsed := Parse(string(data))
		for k, v := range parsed {
			env[k] = v
		}
		r.log.Debug("applied %s (%d variables)", layer.Path, len(parsed))
	}

	return env
}

func (r *Resolver) baseEnv() map[string]string {
	entries := r.environ()
	env := make(map[string]string, len(entries))
	for _, kv := range entries {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		env[k] = v
	}
	return env
}

func (r *Resolver) lookup(key string) string {
	prefix := key + "="
	for _, kv := range r.environ() {
		if strings.HasPrefix(kv, prefix) {
			return kv[len(prefix):]
		}
	}
	return ""
}

func (r *Resolver) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(r.root, filepath.FromSlash(path))
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// sortedKeys returns the keys of m in ascending order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

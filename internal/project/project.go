// Package project loads and writes the .dx.yaml project file.
package project

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/harshul/dx-cli/internal/envlayers"
)

// FileName is the default project file name.
const FileName = ".dx.yaml"

// EnvPrefix is the prefix for environment overrides, e.g. DX_LOG_LEVEL.
const EnvPrefix = "DX"

// Confirmation kinds a task can require.
const (
	ConfirmNone       = ""
	ConfirmDatabase   = "database"
	ConfirmDangerous  = "dangerous"
	ConfirmProduction = "production"
)

// Config is the contents of .dx.yaml.
type Config struct {
	Name string `yaml:"name,omitempty" mapstructure:"name"`
	// Layers is the path to the env layer table, relative to the project root.
	Layers string `yaml:"layers,omitempty" mapstructure:"layers"`
	// ProfileVar is forced to the resolved profile name in every child.
	ProfileVar string `yaml:"profile_var,omitempty" mapstructure:"profile_var"`
	// Shell replaces the platform shell ("sh -c" / "cmd /C").
	Shell string `yaml:"shell,omitempty" mapstructure:"shell"`
	// SettleDelay is the pause after killing a port holder.
	SettleDelay time.Duration   `yaml:"settle_delay,omitempty" mapstructure:"settle_delay"`
	Log         LogConfig       `yaml:"log,omitempty" mapstructure:"log"`
	Validate    ValidateConfig  `yaml:"validate,omitempty" mapstructure:"validate"`
	Tasks       map[string]Task `yaml:"tasks,omitempty" mapstructure:"-"`

	// Root is the directory the file was found in. Not serialized.
	Root string `yaml:"-" mapstructure:"-"`
	// Path is the file that was loaded, empty when defaults are in use.
	Path string `yaml:"-" mapstructure:"-"`
}

// LogConfig controls the logger.
type LogConfig struct {
	Level string `yaml:"level,omitempty" mapstructure:"level"`
	File  bool   `yaml:"file,omitempty" mapstructure:"file"`
	Dir   string `yaml:"dir,omitempty" mapstructure:"dir"`
}

// ValidateConfig lists the variables `dx validate` checks.
type ValidateConfig struct {
	Required     []string `yaml:"required,omitempty" mapstructure:"required"`
	Recommended  []string `yaml:"recommended,omitempty" mapstructure:"recommended"`
	Placeholders []string `yaml:"placeholders,omitempty" mapstructure:"placeholders"`
}

// Task is a named command.
type Task struct {
	Description string            `yaml:"description,omitempty" mapstructure:"description"`
	Run         string            `yaml:"run" mapstructure:"run"`
	Cwd         string            `yaml:"cwd,omitempty" mapstructure:"cwd"`
	Ports       []int             `yaml:"ports,omitempty" mapstructure:"ports"`
	Env         map[string]string `yaml:"env,omitempty" mapstructure:"env"`
	// Confirm is one of "", "database", "dangerous" or "production".
	Confirm string `yaml:"confirm,omitempty" mapstructure:"confirm"`
}

// Default returns the configuration used when no project file exists.
func Default() Config {
	return Config{
		Layers:      envlayers.DefaultTablePath,
		ProfileVar:  envlayers.DefaultProfileVar,
		SettleDelay: time.Second,
		Log: LogConfig{
			Level: "info",
			Dir:   "logs",
		},
	}
}

// Load reads the project file. When path is empty, .dx.yaml is looked up in
// root. A missing file yields the defaults with DX_* overrides applied.
func Load(root, path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = filepath.Join(root, FileName)
	} else if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}

	v := viper.New()
	defaults := Default()
	v.SetDefault("layers", defaults.Layers)
	v.SetDefault("profile_var", defaults.ProfileVar)
	v.SetDefault("settle_delay", defaults.SettleDelay)
	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.file", defaults.Log.File)
	v.SetDefault("log.dir", defaults.Log.Dir)
	v.SetDefault("shell", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	loaded := ""
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read %s: %w", path, err)
		}
		loaded = path
	} else if explicit || !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("configuration file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode %s: %w", path, err)
	}
	cfg.Root = root
	cfg.Path = loaded

	// Tasks bypass viper, which lowercases map keys.
	if loaded != "" {
		tasks, err := readTasks(loaded)
		if err != nil {
			return Config{}, err
		}
		cfg.Tasks = tasks
	}

	if err := cfg.check(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func readTasks(path string) (map[string]Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw struct {
		Tasks map[string]Task `yaml:"tasks"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse tasks in %s: %w", path, err)
	}
	return raw.Tasks, nil
}

func (c Config) check() error {
	for name, t := range c.Tasks {
		if strings.TrimSpace(t.Run) == "" {
			return fmt.Errorf("task %q: missing run command", name)
		}
		switch t.Confirm {
		case ConfirmNone, ConfirmDatabase, ConfirmDangerous, ConfirmProduction:
		default:
			return fmt.Errorf("task %q: unknown confirm kind %q", name, t.Confirm)
		}
	}
	if c.SettleDelay < 0 {
		return fmt.Errorf("settle_delay must not be negative")
	}
	return nil
}

// TaskNames returns the task names in sorted order.
func (c Config) TaskNames() []string {
	names := make([]string, 0, len(c.Tasks))
	for name := range c.Tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Task looks up a task by name.
func (c Config) Task(name string) (Task, bool) {
	t, ok := c.Tasks[name]
	return t, ok
}

// LogDir returns the log directory resolved against the project root.
func (c Config) LogDir() string {
	return c.resolve(c.Log.Dir)
}

// TaskDir returns the working directory for t resolved against the project root.
func (c Config) TaskDir(t Task) string {
	if t.Cwd == "" {
		return c.Root
	}
	return c.resolve(t.Cwd)
}

func (c Config) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Root, p)
}

// Write writes cfg as YAML to path.
func Write(path string, cfg Config) error {
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// WriteLayerTable writes t as indented JSON with profiles sorted by name.
func WriteLayerTable(path string, t envlayers.Table) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(t); err != nil {
		return fmt.Errorf("encode layer table: %w", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// Starter returns the configuration `dx init` writes.
func Starter(name string) Config {
	cfg := Default()
	cfg.Name = name
	cfg.Validate = ValidateConfig{
		Required:    []string{"NODE_ENV", "PORT", "DATABASE_URL", "REDIS_HOST", "REDIS_PORT"},
		Recommended: []string{"LOG_LEVEL"},
	}
	cfg.Tasks = map[string]Task{
		"start": {
			Description: "Start the development server",
			Run:         "npm run start:dev",
			Ports:       []int{3000},
		},
		"test": {
			Description: "Run unit tests",
			Run:         "npm test",
		},
		"db:reset": {
			Description: "Drop and recreate the database",
			Run:         "npx prisma migrate reset --force",
			Confirm:     ConfirmDatabase,
		},
		"deploy": {
			Description: "Build and deploy",
			Run:         "npm run build && npm run deploy",
			Confirm:     ConfirmProduction,
		},
	}
	return cfg
}

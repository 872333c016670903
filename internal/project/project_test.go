package project

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/harshul/dx-cli/internal/envlayers"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	root := t.TempDir()

	cfg, err := Load(root, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Path != "" {
		t.Errorf("Path = %q, want empty", cfg.Path)
	}
	if cfg.Layers != envlayers.DefaultTablePath {
		t.Errorf("Layers = %q", cfg.Layers)
	}
	if cfg.ProfileVar != "NODE_ENV" {
		t.Errorf("ProfileVar = %q", cfg.ProfileVar)
	}
	if cfg.SettleDelay != time.Second {
		t.Errorf("SettleDelay = %v", cfg.SettleDelay)
	}
	if got, want := cfg.LogDir(), filepath.Join(root, "logs"); got != want {
		t.Errorf("LogDir = %q, want %q", got, want)
	}
	if len(cfg.Tasks) != 0 {
		t.Errorf("Tasks = %v, want none", cfg.Tasks)
	}
}

func TestLoadExplicitMissingFile(t *testing.T) {
	if _, err := Load(t.TempDir(), "nope.yaml"); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestLoadProjectFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, FileName), `name: shop
profile_var: APP_ENV
settle_delay: 250ms
log:
  level: debug
  file: true
validate:
  required: [DATABASE_URL]
tasks:
  start:
    run: npm run start:dev
    cwd: apps/api
    ports: [3000, 9229]
    env:
      PORT: 3000
      LogFormat: json
  db:reset:
    run: prisma migrate reset --force
    confirm: database
`)

	cfg, err := Load(root, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Name != "shop" || cfg.ProfileVar != "APP_ENV" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.SettleDelay != 250*time.Millisecond {
		t.Errorf("SettleDelay = %v", cfg.SettleDelay)
	}
	if cfg.Log.Level != "debug" || !cfg.Log.File {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if !reflect.DeepEqual(cfg.Validate.Required, []string{"DATABASE_URL"}) {
		t.Errorf("Validate.Required = %v", cfg.Validate.Required)
	}

	if got, want := cfg.TaskNames(), []string{"db:reset", "start"}; !reflect.DeepEqual(got, want) {
		t.Errorf("TaskNames = %v, want %v", got, want)
	}

	start, ok := cfg.Task("start")
	if !ok {
		t.Fatal("task start not found")
	}
	if !reflect.DeepEqual(start.Ports, []int{3000, 9229}) {
		t.Errorf("Ports = %v", start.Ports)
	}
	wantEnv := map[string]string{"PORT": "3000", "LogFormat": "json"}
	if !reflect.DeepEqual(start.Env, wantEnv) {
		t.Errorf("Env = %v, want %v", start.Env, wantEnv)
	}
	if got, want := cfg.TaskDir(start), filepath.Join(root, "apps/api"); got != want {
		t.Errorf("TaskDir = %q, want %q", got, want)
	}

	reset, _ := cfg.Task("db:reset")
	if reset.Confirm != ConfirmDatabase {
		t.Errorf("Confirm = %q", reset.Confirm)
	}
	if got := cfg.TaskDir(reset); got != root {
		t.Errorf("TaskDir without cwd = %q, want root", got)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("DX_LOG_LEVEL", "debug")
	t.Setenv("DX_SHELL", "bash")

	cfg, err := Load(t.TempDir(), "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Shell != "bash" {
		t.Errorf("Shell = %q, want bash", cfg.Shell)
	}
}

func TestLoadRejectsInvalidTasks(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing run", "tasks:\n  build:\n    description: nothing\n"},
		{"unknown confirm", "tasks:\n  build:\n    run: make\n    confirm: maybe\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writeFile(t, filepath.Join(root, FileName), tt.content)
			if _, err := Load(root, ""); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestWriteRoundTrip(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, FileName)

	if err := Write(path, Starter("demo")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	cfg, err := Load(root, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "demo" {
		t.Errorf("Name = %q", cfg.Name)
	}
	if len(cfg.Tasks) != len(Starter("demo").Tasks) {
		t.Errorf("got %d tasks", len(cfg.Tasks))
	}
	if deploy, _ := cfg.Task("deploy"); deploy.Confirm != ConfirmProduction {
		t.Errorf("deploy confirm = %q", deploy.Confirm)
	}
}

func TestWriteLayerTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config", "env-layers.json")

	if err := WriteLayerTable(path, envlayers.FallbackTable()); err != nil {
		t.Fatalf("WriteLayerTable: %v", err)
	}

	got, err := envlayers.LoadTable(path)
	if err != nil {
		t.Fatalf("LoadTable: %v", err)
	}
	if !reflect.DeepEqual(got, envlayers.FallbackTable()) {
		t.Errorf("table = %v, want %v", got, envlayers.FallbackTable())
	}
}

func TestWriteLayerTableEscapesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env-layers.json")
	table := envlayers.Table{
		"odd":     {"tab\there", "nul\x00byte", `quote"d`, "<angle>&amp"},
		"staging": {".env.staging"},
	}

	if err := WriteLayerTable(path, table); err != nil {
		t.Fatalf("WriteLayerTable: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !json.Valid(data) {
		t.Fatalf("not valid JSON:\n%s", data)
	}

	var got envlayers.Table
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !reflect.DeepEqual(got, table) {
		t.Errorf("table = %q, want %q", got, table)
	}
}

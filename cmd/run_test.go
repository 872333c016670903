package main

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"

	"github.com/harshul/dx-cli/internal/confirm"
	"github.com/harshul/dx-cli/internal/envlayers"
	"github.com/harshul/dx-cli/internal/project"
)

func TestParseEnvPairs(t *testing.T) {
	got, err := parseEnvPairs([]string{"A=1", "B=x=y", " C =", "D="})
	if err != nil {
		t.Fatalf("parseEnvPairs: %v", err)
	}
	want := map[string]string{"A": "1", "B": "x=y", "C": "", "D": ""}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	for _, bad := range []string{"NOVALUE", "=1"} {
		if _, err := parseEnvPairs([]string{bad}); err == nil {
			t.Errorf("parseEnvPairs(%q) should fail", bad)
		}
	}
}

func TestShellCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses POSIX sh")
	}

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"single argument is shell text", []string{"printf '%s|' a b"}, "a|b|"},
		{"argv keeps spaces", []string{"printf", "[%s]", "a  b"}, "[a  b]"},
		{"argv keeps backslashes", []string{"printf", `[%s]\n`, "x"}, "[x]\n"},
		{"argv keeps metacharacters", []string{"printf", "%s", "a; echo injected"}, "a; echo injected"},
		{"empty argument survives", []string{"printf", "[%s]", ""}, "[]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			command, err := shellCommand(tt.args)
			if err != nil {
				t.Fatalf("shellCommand: %v", err)
			}
			out, err := exec.Command("sh", "-c", command).Output()
			if err != nil {
				t.Fatalf("sh -c %q: %v", command, err)
			}
			if string(out) != tt.want {
				t.Errorf("sh -c %q printed %q, want %q", command, out, tt.want)
			}
		})
	}
}

func TestRunCommandKeepsArgumentQuoting(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses POSIX sh")
	}

	dir := t.TempDir()
	rootCmd.SetArgs([]string{"run", "--root", dir, "--", "sh", "-c", `printf '%s' "a  b" > OUT`})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		flags = globalFlags{}
	})

	err := rootCmd.Execute()
	if dx != nil && dx.runner != nil {
		dx.runner.Close()
	}
	if err != nil {
		t.Fatalf("dx run: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dir, "OUT"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "a  b" {
		t.Errorf("OUT = %q, want %q", got, "a  b")
	}
}

func TestRelPath(t *testing.T) {
	root := filepath.Join("/", "srv", "app")
	if got := relPath(root, filepath.Join(root, "config", "env-layers.json")); got != filepath.Join("config", "env-layers.json") {
		t.Errorf("inside root: %q", got)
	}
	outside := filepath.Join("/", "etc", "layers.json")
	if got := relPath(root, outside); got != outside {
		t.Errorf("outside root: %q", got)
	}
}

// answerPrompt feeds one answer to the confirmation gate
type answerPrompt struct {
	*strings.Reader
	strings.Builder
}

func (*answerPrompt) Close() error { return nil }

func TestConfirmInvocation(t *testing.T) {
	tests := []struct {
		name    string
		kind    string
		profile string
		answer  string
		asked   bool
		wantErr error
	}{
		{"no gate", project.ConfirmNone, envlayers.Development, "", false, nil},
		{"database accepted", project.ConfirmDatabase, envlayers.Development, "y\n", true, nil},
		{"database declined", project.ConfirmDatabase, envlayers.Test, "\n", true, errAborted},
		{"dangerous declined", project.ConfirmDangerous, envlayers.Development, "no\n", true, errAborted},
		{"production outside production", project.ConfirmProduction, envlayers.Development, "", false, nil},
		{"production in production", project.ConfirmProduction, envlayers.Production, "yes\n", true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			asked := false
			a := &app{gate: confirm.New(
				confirm.WithGetenv(func(string) string { return "" }),
				confirm.WithPrompt(func() (confirm.Prompt, error) {
					asked = true
					return &answerPrompt{Reader: strings.NewReader(tt.answer)}, nil
				}),
			)}

			err := a.confirmInvocation(invocation{name: "db:reset", confirm: tt.kind}, tt.profile)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if asked != tt.asked {
				t.Errorf("asked = %v, want %v", asked, tt.asked)
			}
		})
	}
}

func TestConfirmInvocationUnknownKind(t *testing.T) {
	a := &app{gate: confirm.New()}
	if err := a.confirmInvocation(invocation{confirm: "maybe"}, envlayers.Development); err == nil {
		t.Fatal("expected error for unknown confirm kind")
	}
}

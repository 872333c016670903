package secrets

import (
	"testing"
)

func completeEnv() map[string]string {
	return map[string]string{
		"NODE_ENV":     "test",
		"PORT":         "3000",
		"DATABASE_URL": "postgresql://app:s3cret@db:5432/app",
		"REDIS_HOST":   "localhost",
		"REDIS_PORT":   "6379",
		"LOG_LEVEL":    "info",
	}
}

func TestValidateComplete(t *testing.T) {
	report := Validate(completeEnv(), "test", Rules{})
	if !report.OK() {
		t.Fatalf("expected OK, got %+v", report.Findings)
	}
	if len(report.Findings) != 0 {
		t.Errorf("unexpected findings: %+v", report.Findings)
	}
}

func TestValidateMissing(t *testing.T) {
	env := completeEnv()
	delete(env, "DATABASE_URL")
	delete(env, "LOG_LEVEL")

	report := Validate(env, "development", Rules{})
	if report.OK() {
		t.Fatal("expected failure for missing DATABASE_URL")
	}

	errs := report.Errors()
	if len(errs) != 1 || errs[0].Key != "DATABASE_URL" {
		t.Errorf("Errors = %+v", errs)
	}
	warns := report.Warnings()
	if len(warns) != 1 || warns[0].Key != "LOG_LEVEL" {
		t.Errorf("Warnings = %+v", warns)
	}
}

func TestValidateEmptyValueCountsAsPresent(t *testing.T) {
	env := completeEnv()
	env["PORT"] = ""
	if report := Validate(env, "test", Rules{}); !report.OK() {
		t.Errorf("empty value should satisfy presence check: %+v", report.Findings)
	}
}

func TestValidateCustomRules(t *testing.T) {
	env := map[string]string{"API_URL": "http://localhost"}
	rules := Rules{Required: []string{"API_URL"}, Recommended: []string{}}

	report := Validate(env, "test", rules)
	if !report.OK() || len(report.Findings) != 0 {
		t.Errorf("Findings = %+v", report.Findings)
	}
}

func TestValidatePlaceholders(t *testing.T) {
	tests := []struct {
		profile string
		want    int
	}{
		{"development", 0},
		{"test", 1},
		{"e2e", 1},
	}

	for _, tt := range tests {
		t.Run(tt.profile, func(t *testing.T) {
			env := completeEnv()
			env["JWT_SECRET"] = "your-super-secret-key"

			report := Validate(env, tt.profile, Rules{})
			if got := len(report.Warnings()); got != tt.want {
				t.Errorf("got %d warnings, want %d: %+v", got, tt.want, report.Findings)
			}
			if !report.OK() {
				t.Error("placeholders must not fail validation")
			}
		})
	}
}

func TestValidateProduction(t *testing.T) {
	env := completeEnv()
	env["REDIS_PASSWORD"] = "  "

	report := Validate(env, "production", Rules{})
	keys := map[string]bool{}
	for _, f := range report.Warnings() {
		keys[f.Key] = true
	}
	if !keys["DATABASE_URL"] {
		t.Error("expected sslmode warning")
	}
	if !keys["REDIS_PASSWORD"] {
		t.Error("expected empty password warning")
	}

	env["DATABASE_URL"] += "?sslmode=require"
	env["REDIS_PASSWORD"] = "hunter2"
	if report := Validate(env, "production", Rules{}); len(report.Findings) != 0 {
		t.Errorf("Findings = %+v", report.Findings)
	}
}

func TestIsSensitive(t *testing.T) {
	tests := map[string]bool{
		"JWT_SECRET":     true,
		"stripe_api_key": true,
		"GITHUB_TOKEN":   true,
		"DB_PASSWORD":    true,
		"PORT":           false,
		"REDIS_HOST":     false,
	}
	for name, want := range tests {
		if got := IsSensitive(name); got != want {
			t.Errorf("IsSensitive(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestMask(t *testing.T) {
	tests := []struct {
		key, value, want string
	}{
		{"PORT", "3000", "3000"},
		{"JWT_SECRET", "", ""},
		{"JWT_SECRET", "short", "*****"},
		{"JWT_SECRET", "abcd1234567890wxyz", "abcd**********wxyz"},
		{"DATABASE_URL", "postgresql://app:s3cret@db:5432/app", "postgresql://app:xxxxx@db:5432/app"},
		{"API_URL", "https://api.example.com", "https://api.example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"/"+tt.value, func(t *testing.T) {
			if got := Mask(tt.key, tt.value); got != tt.want {
				t.Errorf("Mask(%q, %q) = %q, want %q", tt.key, tt.value, got, tt.want)
			}
		})
	}
}

func TestDescribe(t *testing.T) {
	if got := Describe("REDIS_PASSWORD"); got != "Password (keep confidential)" {
		t.Errorf("Describe(REDIS_PASSWORD) = %q", got)
	}
	if got := Describe("SOMETHING"); got != "Environment variable" {
		t.Errorf("Describe(SOMETHING) = %q", got)
	}
}

// Package secrets checks a resolved environment for missing variables and
// leftover placeholder values, and masks sensitive values for display.
package secrets

import (
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"

	"github.com/harshul/dx-cli/internal/envlayers"
)

// Severity of a Finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Finding is a single validation result.
type Finding struct {
	Severity Severity
	Key      string
	Message  string
}

// Report is the outcome of Validate.
type Report struct {
	Profile  string
	Findings []Finding
}

// OK reports whether the report contains no errors. Warnings do not fail.
func (r Report) OK() bool {
	for _, f := range r.Findings {
		if f.Severity == SeverityError {
			return false
		}
	}
	return true
}

// Errors returns the error findings.
func (r Report) Errors() []Finding { return r.filter(SeverityError) }

// Warnings returns the warning findings.
func (r Report) Warnings() []Finding { return r.filter(SeverityWarning) }

func (r Report) filter(s Severity) []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Severity == s {
			out = append(out, f)
		}
	}
	return out
}

// Rules lists what Validate checks. Empty fields fall back to the defaults.
type Rules struct {
	Required     []string
	Recommended  []string
	Placeholders []string
}

// DefaultRules returns the checks used when the project file sets none.
func DefaultRules() Rules {
	return Rules{
		Required:    []string{"NODE_ENV", "PORT", "DATABASE_URL", "REDIS_HOST", "REDIS_PORT"},
		Recommended: []string{"LOG_LEVEL"},
		Placeholders: []string{
			"REPLACE_WITH_REAL_PASSWORD",
			"REPLACE_USER",
			"REPLACE_PASSWORD",
			"username:password@localhost",
			"your-super-secret",
		},
	}
}

func (r Rules) withDefaults() Rules {
	d := DefaultRules()
	if r.Required == nil {
		r.Required = d.Required
	}
	if r.Recommended == nil {
		r.Recommended = d.Recommended
	}
	if r.Placeholders == nil {
		r.Placeholders = d.Placeholders
	}
	return r
}

// Validate checks env, the environment resolved for profile.
//
// Missing required variables are errors and missing recommended ones are
// warnings. Placeholder values are reported outside development. The
// production profile additionally expects an sslmode on DATABASE_URL and
// non-empty *PASSWORD variables.
func Validate(env map[string]string, profile string, rules Rules) Report {
	rules = rules.withDefaults()
	report := Report{Profile: profile}

	add := func(s Severity, key, format string, args ...any) {
		report.Findings = append(report.Findings, Finding{
			Severity: s,
			Key:      key,
			Message:  fmt.Sprintf(format, args...),
		})
	}

	for _, key := range rules.Required {
		if _, ok := env[key]; !ok {
			add(SeverityError, key, "missing required variable %s", key)
		}
	}
	for _, key := range rules.Recommended {
		if _, ok := env[key]; !ok {
			add(SeverityWarning, key, "missing recommended variable %s", key)
		}
	}

	keys := sortedKeys(env)

	if profile != envlayers.Development {
		for _, key := range keys {
			for _, p := range rules.Placeholders {
				if p != "" && strings.Contains(env[key], p) {
					add(SeverityWarning, key, "%s contains placeholder value %q", key, p)
				}
			}
		}
	}

	if profile == envlayers.Production {
		if dsn, ok := env["DATABASE_URL"]; ok && !sslModeRe.MatchString(dsn) {
			add(SeverityWarning, "DATABASE_URL", "DATABASE_URL should include sslmode=require for production")
		}
		for _, key := range keys {
			if strings.HasSuffix(key, "PASSWORD") && strings.TrimSpace(env[key]) == "" {
				add(SeverityWarning, key, "%s is empty in production", key)
			}
		}
	}

	return report
}

var sslModeRe = regexp.MustCompile(`sslmode=(require|prefer|verify-ca|verify-full)`)

var sensitivePatterns = []string{
	"API_KEY", "APIKEY", "SECRET", "TOKEN", "PASSWORD", "PASSWD",
	"PRIVATE_KEY", "AUTH", "CREDENTIAL", "ACCESS_KEY",
}

// IsSensitive reports whether the variable name suggests a secret.
func IsSensitive(name string) bool {
	upper := strings.ToUpper(name)
	for _, p := range sensitivePatterns {
		if strings.Contains(upper, p) {
			return true
		}
	}
	return false
}

// Mask returns value in a form safe to print. URL passwords are redacted for
// any key; values of sensitive keys keep at most their first and last four
// characters.
func Mask(key, value string) string {
	if value == "" {
		return value
	}

	if strings.Contains(value, "://") {
		if u, err := url.Parse(value); err == nil && u.User != nil {
			if _, hasPassword := u.User.Password(); hasPassword {
				return u.Redacted()
			}
		}
	}

	if !IsSensitive(key) {
		return value
	}
	if len(value) <= 10 {
		return strings.Repeat("*", len(value))
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}

// MaskAll applies Mask to every entry of env.
func MaskAll(env map[string]string) map[string]string {
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[k] = Mask(k, v)
	}
	return out
}

// Describe gives a short human description for common variable names.
func Describe(name string) string {
	lower := strings.ToLower(name)

	switch {
	case lower == "node_env":
		return "Environment profile"
	case strings.Contains(lower, "api_key") || strings.Contains(lower, "apikey"):
		return "API key for external service"
	case strings.Contains(lower, "secret"):
		return "Secret key (keep confidential)"
	case strings.Contains(lower, "password") || strings.Contains(lower, "passwd"):
		return "Password (keep confidential)"
	case strings.Contains(lower, "token"):
		return "Authentication token"
	case strings.Contains(lower, "database") || strings.Contains(lower, "db_"):
		return "Database connection string or credential"
	case strings.Contains(lower, "redis"):
		return "Redis connection configuration"
	case strings.Contains(lower, "url") || strings.Contains(lower, "uri"):
		return "URL or endpoint"
	case strings.Contains(lower, "host"):
		return "Hostname or IP address"
	case strings.Contains(lower, "port"):
		return "Port number"
	case strings.Contains(lower, "log"):
		return "Logging configuration"
	default:
		return "Environment variable"
	}
}

func sortedKeys(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

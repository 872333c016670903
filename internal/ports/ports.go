package ports

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
)

// PortInfo contains information about a port extracted from a command
type PortInfo struct {
	Port     int
	Found    bool
	Pattern  string // The pattern that matched (e.g., "--port 3000", ":3000")
	Original string // The original matched string
}

// Common port patterns in run commands
var portPatterns = []*regexp.Regexp{
	// --port 3000, --port=3000, -p 3000, -p=3000
	regexp.MustCompile(`(?:--port[=\s]|--PORT[=\s]|-p[=\s])(\d+)`),
	// PORT=3000
	regexp.MustCompile(`(?:PORT=)(\d+)`),
	// Java/Spring Boot: -Dserver.port=8080
	regexp.MustCompile(`-Dserver\.port=(\d+)`),
	// localhost:3000, 127.0.0.1:3000, 0.0.0.0:3000
	regexp.MustCompile(`(?:localhost|127\.0\.0\.1|0\.0\.0\.0):(\d+)`),
	// :3000 (common in URLs and host:port patterns)
	regexp.MustCompile(`:(\d{4,5})(?:\s|$|/)`),
}

// Default ports for dev servers whose commands don't spell the port out.
// Checked in order so the longest match wins.
var defaultPorts = []struct {
	command string
	port    int
}{
	{"npm run start:dev", 3000},
	{"npm run dev", 3000},
	{"npm start", 3000},
	{"pnpm dev", 3000},
	{"yarn dev", 3000},
	{"yarn start", 3000},
	{"nest start", 3000},
	{"python manage.py runserver", 8000},
	{"flask run", 5000},
	{"rails server", 3000},
}

// IsPortAvailable checks if a port is available for binding
func IsPortAvailable(port int) bool {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	listener.Close()
	return true
}

// FindAvailablePort finds the next available port starting from the given port
func FindAvailablePort(startPort int) int {
	const maxAttempts = 100
	for i := 0; i < maxAttempts; i++ {
		port := startPort + i
		if port > 65535 {
			break
		}
		if IsPortAvailable(port) {
			return port
		}
	}
	return 0
}

// ExtractPort attempts to extract a port number from a run command
func ExtractPort(runCommand string) PortInfo {
	for _, pattern := range portPatterns {
		matches := pattern.FindStringSubmatch(runCommand)
		if len(matches) < 2 {
			continue
		}
		port, err := strconv.Atoi(matches[1])
		if err == nil && port > 0 && port < 65536 {
			return PortInfo{
				Port:     port,
				Found:    true,
				Pattern:  pattern.String(),
				Original: matches[0],
			}
		}
	}

	cmdLower := strings.ToLower(runCommand)
	for _, d := range defaultPorts {
		if strings.Contains(cmdLower, d.command) {
			return PortInfo{Port: d.port, Found: true, Pattern: "default"}
		}
	}

	return PortInfo{}
}

// Validate reports whether port is a usable TCP port number.
func Validate(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 1 and 65535", port)
	}
	return nil
}

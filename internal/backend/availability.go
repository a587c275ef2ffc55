package backend

import (
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// availabilityTTL bounds how long a probe result is reused before the
// filesystem and PATH are consulted again.
const availabilityTTL = 30 * time.Second

// availabilityProbe detects whether a backend CLI is installed and, when
// credential files are known for it, whether a login has happened.
// Results are cached per probe input with a TTL.
type availabilityProbe struct {
	binary string
	// credPaths are files whose presence indicates a completed login.
	// Entries may start with "~/".
	credPaths []string

	now      func() time.Time
	lookPath func(string) (string, error)
	stat     func(string) (os.FileInfo, error)

	mu      sync.Mutex
	cached  Availability
	expires time.Time
}

func newAvailabilityProbe(binary string, credPaths ...string) *availabilityProbe {
	return &availabilityProbe{
		binary:    binary,
		credPaths: credPaths,
		now:       time.Now,
		lookPath:  exec.LookPath,
		stat:      os.Stat,
	}
}

func (p *availabilityProbe) lookup() Availability {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if now.Before(p.expires) {
		return p.cached
	}

	p.cached = p.probe()
	p.expires = now.Add(availabilityTTL)
	return p.cached
}

func (p *availabilityProbe) probe() Availability {
	if _, err := p.lookPath(p.binary); err != nil {
		return Availability{State: NotFound}
	}

	var lastAuth time.Time
	for _, path := range p.credPaths {
		info, err := p.stat(expandHome(path))
		if err != nil {
			continue
		}
		if info.ModTime().After(lastAuth) {
			lastAuth = info.ModTime()
		}
	}
	if !lastAuth.IsZero() {
		return Availability{State: LoginDetected, LastAuthUnix: lastAuth.Unix()}
	}
	return Availability{State: InstallationFound}
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return home
		}
		return home + path[1:]
	}
	return path
}

package contextindex

import (
	"fmt"
	"time"
)

// Config controls how the Coordinator schedules builds.
type Config struct {
	// BuildTimeout bounds a single build. Builds are detached from caller
	// cancellation, so this is the only thing that stops a stuck build.
	BuildTimeout time.Duration

	// Workers is the number of items EnsureAll builds at once.
	Workers int
}

// DefaultConfig returns the recommended coordinator settings.
func DefaultConfig() Config {
	return Config{
		BuildTimeout: 30 * time.Minute,
		Workers:      2,
	}
}

func (c Config) Validate() error {
	if c.BuildTimeout < 0 {
		return fmt.Errorf("index build timeout must not be negative")
	}
	if c.Workers < 1 {
		return fmt.Errorf("index workers must be at least 1, got %d", c.Workers)
	}
	return nil
}

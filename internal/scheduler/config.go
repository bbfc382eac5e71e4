package scheduler

import (
	"os"
	"strings"
	"time"
)

// Config controls the runner itself. Per-job intervals live in the sync
// config so they hot-reload; these do not.
type Config struct {
	// TickInterval is how often due jobs are evaluated.
	TickInterval time.Duration
	// JobTimeout is the deadline for a single job execution.
	JobTimeout time.Duration
	// EnabledJobs restricts which jobs run. Empty means all.
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		TickInterval: time.Minute,
		JobTimeout:   10 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.TickInterval <= 0 {
		c.TickInterval = defaults.TickInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}

func ProvideConfig() Config {
	cfg := DefaultConfig()
	if raw := strings.TrimSpace(os.Getenv("SCHEDULER_ENABLED_JOBS")); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			if name = strings.TrimSpace(name); name != "" {
				cfg.EnabledJobs = append(cfg.EnabledJobs, name)
			}
		}
	}
	return cfg
}

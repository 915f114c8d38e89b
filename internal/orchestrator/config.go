package orchestrator

import (
	"time"

	"github.com/cockroachdb/errors"
)

// Config holds the timing policy of a Session.
type Config struct {
	// PollInterval is the period of the background snapshot poll.
	PollInterval time.Duration `yaml:"pollInterval"`
	// SettleDelay is how long after a successful start or stop the session
	// waits before polling, so the cluster can settle.
	SettleDelay time.Duration `yaml:"settleDelay"`
	// StartInterval is the pause after each successful start in a
	// sequential start batch.
	StartInterval time.Duration `yaml:"startInterval"`
	// RefreshDelay is how long after a batch completes the session polls.
	RefreshDelay time.Duration `yaml:"refreshDelay"`
}

// DefaultConfig returns the production timing policy.
func DefaultConfig() Config {
	return Config{
		PollInterval:  30 * time.Second,
		SettleDelay:   2 * time.Second,
		StartInterval: 2 * time.Second,
		RefreshDelay:  3 * time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.PollInterval <= 0 {
		return errors.Newf("poll interval must be positive, got %s", c.PollInterval)
	}
	if c.SettleDelay < 0 || c.StartInterval < 0 || c.RefreshDelay < 0 {
		return errors.New("delays must not be negative")
	}
	return nil
}

package missiontransfer

// maxRetries is the retry policy constant shared by every timeout-driven
// step of every work item.
const maxRetries = 5

// Config carries the tunables of a single work item. A fresh Config is
// built per submission from the caller-provided timeout-seconds callback,
// so it can reflect dynamic link latency at the moment the item is
// constructed.
type Config struct {
	TimeoutSeconds float64
	MaxRetries     uint
}

// DefaultConfig returns a Config using the given per-retry timeout and the
// standard retry ceiling.
func DefaultConfig(timeoutSeconds float64) *Config {
	return &Config{
		TimeoutSeconds: timeoutSeconds,
		MaxRetries:     maxRetries,
	}
}

// Option customizes a Config produced by DefaultConfig.
type Option func(*Config)

// WithMaxRetries overrides the retry ceiling. Exposed for tests that need
// to exercise the Timeout path without retrying five times.
func WithMaxRetries(n uint) Option {
	return func(cfg *Config) {
		cfg.MaxRetries = n
	}
}

package playback

import (
	"flag"
	"fmt"
	"time"

	"github.com/zachfi/zkit/pkg/util"
)

const (
	defaultMaxReconnectAttempts = 5
	defaultBaseDelay            = time.Second
	defaultMaxDelay             = 10 * time.Second

	minReconnectAttempts = 3
	maxReconnectAttempts = 5
)

type Config struct {
	MaxReconnectAttempts int           `yaml:"max-reconnect-attempts,omitempty"`
	ReconnectBackoff     time.Duration `yaml:"reconnect-backoff,omitempty"`     // delay before the first reconnect attempt
	ReconnectBackoffMax  time.Duration `yaml:"reconnect-backoff-max,omitempty"` // cap on the reconnect delay
}

// DefaultConfig returns the configuration RegisterFlagsAndApplyDefaults
// would produce.
func DefaultConfig() Config {
	return Config{
		MaxReconnectAttempts: defaultMaxReconnectAttempts,
		ReconnectBackoff:     defaultBaseDelay,
		ReconnectBackoffMax:  defaultMaxDelay,
	}
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.IntVar(&cfg.MaxReconnectAttempts, util.PrefixConfig(prefix, "max-reconnect-attempts"), defaultMaxReconnectAttempts,
		"Reconnect attempts after a stream interruption before giving up (3-5).")
	f.DurationVar(&cfg.ReconnectBackoff, util.PrefixConfig(prefix, "reconnect-backoff"), defaultBaseDelay,
		"Delay before the first reconnect attempt. Doubles on every further attempt up to reconnect-backoff-max.")
	f.DurationVar(&cfg.ReconnectBackoffMax, util.PrefixConfig(prefix, "reconnect-backoff-max"), defaultMaxDelay,
		"Maximum delay between reconnect attempts.")
}

func (cfg *Config) Validate() error {
	if cfg.MaxReconnectAttempts < minReconnectAttempts || cfg.MaxReconnectAttempts > maxReconnectAttempts {
		return fmt.Errorf("max-reconnect-attempts must be between %d and %d, got %d",
			minReconnectAttempts, maxReconnectAttempts, cfg.MaxReconnectAttempts)
	}
	if cfg.ReconnectBackoff <= 0 {
		return fmt.Errorf("reconnect-backoff must be positive, got %s", cfg.ReconnectBackoff)
	}
	if cfg.ReconnectBackoffMax < cfg.ReconnectBackoff {
		return fmt.Errorf("reconnect-backoff-max (%s) must not be below reconnect-backoff (%s)",
			cfg.ReconnectBackoffMax, cfg.ReconnectBackoff)
	}
	return nil
}

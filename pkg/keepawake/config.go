package keepawake

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/grafana/dskit/flagext"
	"github.com/zachfi/zkit/pkg/util"
)

const (
	ModeNone    = "none"
	ModeCommand = "command"

	defaultRetryBackoff    = time.Second
	defaultRetryBackoffMax = time.Minute
	defaultMaxRetries      = 5
	defaultMinHold         = 30 * time.Second
)

type Config struct {
	Mode    string                 `yaml:"mode,omitempty"`
	Command flagext.StringSliceCSV `yaml:"command,omitempty"`

	// A hold lost on its own is requested again after a backoff. Holds that
	// last MinHold start the backoff over; MaxRetries shorter ones in a row
	// give up until playback starts again.
	RetryBackoff    time.Duration `yaml:"retry-backoff,omitempty"`
	RetryBackoffMax time.Duration `yaml:"retry-backoff-max,omitempty"`
	MaxRetries      int           `yaml:"max-retries,omitempty"`
	MinHold         time.Duration `yaml:"min-hold,omitempty"`
}

// DefaultConfig returns the configuration RegisterFlagsAndApplyDefaults
// would produce, with mode none.
func DefaultConfig() Config {
	return Config{
		Mode:            ModeNone,
		RetryBackoff:    defaultRetryBackoff,
		RetryBackoffMax: defaultRetryBackoffMax,
		MaxRetries:      defaultMaxRetries,
		MinHold:         defaultMinHold,
	}
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.Mode, util.PrefixConfig(prefix, "mode"), ModeNone,
		"How to keep the host awake while playing: "+strings.Join([]string{ModeNone, ModeCommand}, ", ")+".")

	cfg.Command = flagext.StringSliceCSV{"systemd-inhibit", "--what=idle", "--why=radio playback", "sleep", "infinity"}
	f.Var(&cfg.Command, util.PrefixConfig(prefix, "command"),
		"Comma separated inhibitor command held running while playing, used with mode=command.")

	f.DurationVar(&cfg.RetryBackoff, util.PrefixConfig(prefix, "retry-backoff"), defaultRetryBackoff,
		"Delay before requesting a hold again after it was lost. Doubles on every further loss up to retry-backoff-max.")
	f.DurationVar(&cfg.RetryBackoffMax, util.PrefixConfig(prefix, "retry-backoff-max"), defaultRetryBackoffMax,
		"Maximum delay before requesting a lost hold again.")
	f.IntVar(&cfg.MaxRetries, util.PrefixConfig(prefix, "max-retries"), defaultMaxRetries,
		"Consecutive short-lived holds after which the hold is not requested again until playback restarts.")
	f.DurationVar(&cfg.MinHold, util.PrefixConfig(prefix, "min-hold"), defaultMinHold,
		"A hold lasting at least this long resets the retry backoff.")
}

func (cfg *Config) Validate() error {
	if cfg.RetryBackoff <= 0 {
		return fmt.Errorf("retry-backoff must be positive, got %s", cfg.RetryBackoff)
	}
	if cfg.RetryBackoffMax < cfg.RetryBackoff {
		return fmt.Errorf("retry-backoff-max (%s) must not be below retry-backoff (%s)", cfg.RetryBackoffMax, cfg.RetryBackoff)
	}
	if cfg.MaxRetries < 0 {
		return fmt.Errorf("max-retries must not be negative, got %d", cfg.MaxRetries)
	}
	return nil
}

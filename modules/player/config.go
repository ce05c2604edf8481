package player

import (
	"flag"
	"fmt"
	"time"

	"github.com/zachfi/zkit/pkg/util"

	"github.com/zachfi/radiorelay/pkg/keepawake"
	"github.com/zachfi/radiorelay/pkg/playback"
)

const (
	defaultSourceURL             = "http://localhost:3030/api/radio"
	defaultRoutePrefix           = "/api/player"
	defaultBufferingTimeout      = 3 * time.Second
	defaultStallTimeout          = 15 * time.Second
	defaultDialTimeout           = 5 * time.Second
	defaultResponseHeaderTimeout = 10 * time.Second
	defaultWriteBufferSize       = 256 * 1024 // 256 KiB
)

type Config struct {
	SourceURL             string        `yaml:"source-url,omitempty"`
	RoutePrefix           string        `yaml:"route-prefix,omitempty"`
	Autoplay              bool          `yaml:"autoplay,omitempty"`
	BufferingTimeout      time.Duration `yaml:"buffering-timeout,omitempty"` // quiet period before reporting buffering
	StallTimeout          time.Duration `yaml:"stall-timeout,omitempty"`     // quiet period before giving up on the connection
	DialTimeout           time.Duration `yaml:"dial-timeout,omitempty"`
	ResponseHeaderTimeout time.Duration `yaml:"response-header-timeout,omitempty"`
	Dir                   string        `yaml:"dir,omitempty"`               // record what is played here, if set
	WriteBufferSize       int           `yaml:"write-buffer-size,omitempty"` // recording write batch size, clamped to 32KiB..4MiB

	Playback  playback.Config  `yaml:"playback,omitempty"`
	KeepAwake keepawake.Config `yaml:"keep-awake,omitempty"`
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.SourceURL, util.PrefixConfig(prefix, "source-url"), defaultSourceURL,
		"The stream to play, normally the relay. Playlists (.pls, .m3u) are resolved.")
	f.StringVar(&cfg.RoutePrefix, util.PrefixConfig(prefix, "route-prefix"), defaultRoutePrefix,
		"HTTP path prefix of the player status and control endpoints.")
	f.BoolVar(&cfg.Autoplay, util.PrefixConfig(prefix, "autoplay"), false, "Start playing as soon as the player is running.")
	f.DurationVar(&cfg.BufferingTimeout, util.PrefixConfig(prefix, "buffering-timeout"), defaultBufferingTimeout,
		"Time without audio data before the player reports buffering.")
	f.DurationVar(&cfg.StallTimeout, util.PrefixConfig(prefix, "stall-timeout"), defaultStallTimeout,
		"Time without audio data before the connection is considered stalled and a reconnect is scheduled.")
	f.DurationVar(&cfg.DialTimeout, util.PrefixConfig(prefix, "dial-timeout"), defaultDialTimeout,
		"Timeout for establishing the source connection.")
	f.DurationVar(&cfg.ResponseHeaderTimeout, util.PrefixConfig(prefix, "response-header-timeout"), defaultResponseHeaderTimeout,
		"Timeout waiting for the source response headers.")
	f.StringVar(&cfg.Dir, util.PrefixConfig(prefix, "dir"), "", "The directory to record played audio to. Recording is off when empty.")
	f.IntVar(&cfg.WriteBufferSize, util.PrefixConfig(prefix, "write-buffer-size"), defaultWriteBufferSize,
		"Bytes of played audio batched into each write to the recording, when dir is set. Clamped to 32KiB-4MiB.")

	cfg.Playback.RegisterFlagsAndApplyDefaults(util.PrefixConfig(prefix, "playback"), f)
	cfg.KeepAwake.RegisterFlagsAndApplyDefaults(util.PrefixConfig(prefix, "keep-awake"), f)
}

func (cfg *Config) Validate() error {
	if cfg.SourceURL == "" {
		return fmt.Errorf("source-url is required")
	}
	if cfg.BufferingTimeout <= 0 || cfg.StallTimeout <= 0 {
		return fmt.Errorf("buffering-timeout and stall-timeout must be positive")
	}
	if cfg.StallTimeout < cfg.BufferingTimeout {
		return fmt.Errorf("stall-timeout (%s) must not be below buffering-timeout (%s)", cfg.StallTimeout, cfg.BufferingTimeout)
	}
	if err := cfg.Playback.Validate(); err != nil {
		return fmt.Errorf("playback: %w", err)
	}
	if err := cfg.KeepAwake.Validate(); err != nil {
		return fmt.Errorf("keep-awake: %w", err)
	}
	return nil
}

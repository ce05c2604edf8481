package relay

import (
	"flag"
	"fmt"
	"net/url"
	"time"

	"github.com/zachfi/zkit/pkg/util"
)

const (
	defaultUpstreamURL           = "https://omshanti.in/amudhamazhai"
	defaultPath                  = "/api/radio"
	defaultDialTimeout           = 5 * time.Second
	defaultResponseHeaderTimeout = 10 * time.Second
	defaultCopyBufferSize        = 32 * 1024 // 32 KiB
)

type Config struct {
	UpstreamURL           string        `yaml:"upstream-url,omitempty"`
	Path                  string        `yaml:"path,omitempty"`
	DialTimeout           time.Duration `yaml:"dial-timeout,omitempty"`            // connection setup only
	ResponseHeaderTimeout time.Duration `yaml:"response-header-timeout,omitempty"` // wait for upstream headers; the body is never timed out
	CopyBufferSize        int           `yaml:"copy-buffer-size,omitempty"`
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.UpstreamURL, util.PrefixConfig(prefix, "upstream-url"), defaultUpstreamURL, "The fixed upstream stream URL to relay.")
	f.StringVar(&cfg.Path, util.PrefixConfig(prefix, "path"), defaultPath, "HTTP path the relay is served on.")
	f.DurationVar(&cfg.DialTimeout, util.PrefixConfig(prefix, "dial-timeout"), defaultDialTimeout,
		"Timeout for establishing the upstream connection.")
	f.DurationVar(&cfg.ResponseHeaderTimeout, util.PrefixConfig(prefix, "response-header-timeout"), defaultResponseHeaderTimeout,
		"Timeout waiting for the upstream response headers. Reading the stream itself is never timed out.")
	f.IntVar(&cfg.CopyBufferSize, util.PrefixConfig(prefix, "copy-buffer-size"), defaultCopyBufferSize,
		"Bytes copied from upstream before each flush to the client.")
}

func (cfg *Config) Validate() error {
	u, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		return fmt.Errorf("invalid upstream-url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("upstream-url must be http or https, got %q", cfg.UpstreamURL)
	}
	if cfg.Path == "" || cfg.Path[0] != '/' {
		return fmt.Errorf("path must start with /, got %q", cfg.Path)
	}
	return nil
}

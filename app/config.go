package app

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/grafana/dskit/flagext"
	"github.com/grafana/dskit/server"
	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"

	"github.com/zachfi/zkit/pkg/tracing"

	"github.com/zachfi/radiorelay/modules/player"
	"github.com/zachfi/radiorelay/modules/relay"
)

type Config struct {
	Target  string         `yaml:"target"`
	Tracing tracing.Config `yaml:"tracing,omitempty"`
	Server  server.Config  `yaml:"server,omitempty"`
	Relay   relay.Config   `yaml:"relay,omitempty"`
	Player  player.Config  `yaml:"player,omitempty"`
}

// LoadConfig receives a file path for a configuration to load.
func LoadConfig(file string) (Config, error) {
	filename, _ := filepath.Abs(file)

	config := Config{}
	config.RegisterFlagsAndApplyDefaults("", flag.NewFlagSet("", flag.ContinueOnError))

	err := loadYamlFile(filename, &config)
	if err != nil {
		return config, errors.Wrap(err, "failed to load yaml file")
	}

	return config, nil
}

// loadYamlFile unmarshals a YAML file into the received interface{} or returns an error.
func loadYamlFile(filename string, d interface{}) error {
	yamlFile, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	return yaml.UnmarshalStrict(yamlFile, d)
}

func (c *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&c.Target, "target", All, "Module to run: "+strings.Join([]string{All, Relay, Player}, ", ")+".")

	flagext.DefaultValues(&c.Server)
	f.IntVar(&c.Server.HTTPListenPort, "server.http-listen-port", 3030, "HTTP server listen port.")
	f.IntVar(&c.Server.GRPCListenPort, "server.grpc-listen-port", 9090, "gRPC server listen port.")
	f.Var(&c.Server.LogLevel, "log.level", "Only log messages with the given severity or above. Valid levels: [debug, info, warn, error]")

	c.Tracing.RegisterFlagsAndApplyDefaults("tracing", f)
	c.Relay.RegisterFlagsAndApplyDefaults("relay", f)
	c.Player.RegisterFlagsAndApplyDefaults("player", f)
}

// SlogLevel maps the configured log level onto slog.
func (c *Config) SlogLevel() slog.Level {
	switch c.Server.LogLevel.String() {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

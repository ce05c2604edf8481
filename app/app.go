package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/grafana/dskit/modules"
	"github.com/grafana/dskit/server"
	"github.com/grafana/dskit/services"
	"github.com/grafana/dskit/signals"
	"github.com/pkg/errors"
)

const metricsNamespace = "radiorelay"

type App struct {
	cfg    Config
	logger slog.Logger

	Server *server.Server

	ModuleManager *modules.Manager
	serviceMap    map[string]services.Service

	mu      sync.Mutex
	failure error
}

// New creates and returns a new App.
func New(cfg Config, logger slog.Logger) (*App, error) {
	a := &App{
		cfg:    cfg,
		logger: logger,
	}

	if a.cfg.Target == "" {
		a.cfg.Target = All
	}

	if err := a.validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}

	if err := a.setupModuleManager(); err != nil {
		return nil, errors.Wrap(err, "failed to setup module manager")
	}

	return a, nil
}

// validate checks the configuration of the modules the target runs.
func (a *App) validate() error {
	switch a.cfg.Target {
	case Relay:
		return errors.Wrap(a.cfg.Relay.Validate(), Relay)
	case Player:
		return errors.Wrap(a.cfg.Player.Validate(), Player)
	case All:
		if err := a.cfg.Relay.Validate(); err != nil {
			return errors.Wrap(err, Relay)
		}
		return errors.Wrap(a.cfg.Player.Validate(), Player)
	default:
		return fmt.Errorf("unknown target %q", a.cfg.Target)
	}
}

// Run starts the target's modules and blocks until they stop. It returns the
// failure of the first module that failed, if any.
func (a *App) Run() error {
	serviceMap, err := a.ModuleManager.InitModuleServices(a.cfg.Target)
	if err != nil {
		return fmt.Errorf("failed to init module services %w", err)
	}
	a.serviceMap = serviceMap

	servs := []services.Service(nil)
	for _, s := range serviceMap {
		servs = append(servs, s)
	}

	sm, err := services.NewManager(servs...)
	if err != nil {
		return fmt.Errorf("failed to start service manager %w", err)
	}

	healthy := func() { a.logger.Info("started", "target", a.cfg.Target) }
	stopped := func() { a.logger.Info("stopped") }
	serviceFailed := func(service services.Service) {
		// if any service fails, stop everything
		sm.StopAsync()

		module := "unknown"
		for m, s := range serviceMap {
			if s == service {
				module = m
				break
			}
		}

		if service.FailureCase() == modules.ErrStopProcess {
			a.logger.Info("received stop signal via return error", "module", module, "err", service.FailureCase())
			return
		}

		a.logger.Error("module failed", "module", module, "err", service.FailureCase())
		a.mu.Lock()
		if a.failure == nil {
			a.failure = errors.Wrapf(service.FailureCase(), "module %s failed", module)
		}
		a.mu.Unlock()
	}
	sm.AddListener(services.NewManagerListener(healthy, stopped, serviceFailed))

	// Stop the manager, and with it every service, when a signal arrives.
	handler := signals.NewHandler(a.Server.Log)
	go func() {
		handler.Loop()
		sm.StopAsync()
	}()

	// This can only fail if a service is in a state other than New.
	err = sm.StartAsync(context.Background())
	if err != nil {
		return fmt.Errorf("failed to start service manager %w", err)
	}

	if err := sm.AwaitStopped(context.Background()); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.failure
}

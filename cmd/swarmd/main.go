// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// swarmd runs a standalone swarm reactor over an in-memory mesh,
// serving its health and metrics surface over HTTP.
package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/juju/loggo/v2"
	"github.com/juju/pubsub/v2"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/swarmlab/reactor/core/mesh"
	"github.com/swarmlab/reactor/internal/healthapi"
	"github.com/swarmlab/reactor/internal/observability"
	"github.com/swarmlab/reactor/internal/reactor"
	"github.com/swarmlab/reactor/internal/reactor/config"
	"github.com/swarmlab/reactor/internal/safety"
	"github.com/swarmlab/reactor/internal/worker/reactorrunner"
)

var logger = loggo.GetLogger("swarmd")

const (
	exitErr = 1
	// exitUsage is returned when swarmd was invoked in an invalid way.
	exitUsage = 2
)

func main() {
	os.Exit(Main(os.Args[1:]))
}

// Main runs swarmd with the given arguments, returning the process
// exit code.
func Main(args []string) int {
	flags := gnuflag.NewFlagSetWithFlagKnownAs("swarmd", gnuflag.ContinueOnError, "option")
	var (
		configPath string
		httpAddr   string
		logConfig  string
	)
	flags.StringVar(&configPath, "config", "", "path to reactor configuration file (YAML)")
	flags.StringVar(&httpAddr, "http", "localhost:8666", "address for the health and metrics endpoint")
	flags.StringVar(&logConfig, "log-config", "<root>=INFO", "loggo configuration string")
	if err := flags.Parse(true, args); err != nil {
		if err == gnuflag.ErrHelp {
			return 0
		}
		return exitUsage
	}

	if err := loggo.ConfigureLoggers(logConfig); err != nil {
		logger.Errorf("configuring loggers: %v", err)
		return exitUsage
	}

	if err := run(configPath, httpAddr); err != nil {
		logger.Errorf("%v", err)
		return exitErr
	}
	return 0
}

func run(configPath, httpAddr string) error {
	settings, err := loadSettings(configPath)
	if err != nil {
		return errors.Trace(err)
	}

	clk := clock.WallClock
	store := mesh.NewStore(clk)
	limiter, err := safety.NewLimiter(safety.LimiterConfig{
		Logger:                  loggo.GetLogger("swarmd.safety"),
		MaxRegisteredUnits:      settings.MaxUnitsPerEvaluation(),
		MaxConcurrentExecutions: settings.MaxUnitsPerTick(),
		StartRate:               float64(settings.MaxUnitsPerTick()),
		StartBurst:              int64(settings.MaxUnitsPerTick()),
	})
	if err != nil {
		return errors.Trace(err)
	}
	hub := pubsub.NewSimpleHub(&pubsub.SimpleHubConfig{
		Logger: loggo.GetLogger("swarmd.hub"),
	})

	swarm, err := reactor.NewSwarmReactor(reactor.ReactorConfig{
		Clock:    clk,
		Logger:   loggo.GetLogger("swarmd.reactor"),
		Mesh:     store,
		Safety:   limiter,
		Hub:      hub,
		Settings: settings,
	})
	if err != nil {
		return errors.Trace(err)
	}
	logger.Infof("reactor instance %s starting", swarm.InstanceID())

	registry := prometheus.NewRegistry()
	if err := registry.Register(observability.NewCollector(swarm)); err != nil {
		return errors.Trace(err)
	}
	handler, err := healthapi.NewHandler(healthapi.Config{
		Logger:   loggo.GetLogger("swarmd.api"),
		Reporter: swarm,
		Registry: registry,
	})
	if err != nil {
		return errors.Trace(err)
	}
	server := &http.Server{Addr: httpAddr, Handler: handler}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("health endpoint: %v", err)
		}
	}()
	defer server.Close()

	runner, err := reactorrunner.NewWorker(reactorrunner.Config{
		Clock:       clk,
		Logger:      loggo.GetLogger("swarmd.runner"),
		Reactor:     swarm,
		TickRetries: 3,
		RetryDelay:  settings.TargetTickDuration(),
	})
	if err != nil {
		return errors.Trace(err)
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-signals
		logger.Infof("caught %s, stopping reactor", sig)
		runner.Kill()
	}()

	return errors.Trace(runner.Wait())
}

// loadSettings reads and validates the reactor configuration,
// defaulting everything when no path was given.
func loadSettings(path string) (config.Config, error) {
	attrs := map[string]any{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Annotate(err, "reading config")
		}
		if err := yaml.Unmarshal(data, &attrs); err != nil {
			return nil, errors.Annotatef(err, "parsing %q", path)
		}
	}
	settings, err := config.New(attrs)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return settings, nil
}

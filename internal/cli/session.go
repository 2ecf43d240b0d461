package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/dynaport/internal/config"
	"github.com/shinji-kodama/dynaport/internal/devcontainer"
	"github.com/shinji-kodama/dynaport/internal/docker"
	"github.com/shinji-kodama/dynaport/internal/logger"
	"github.com/shinji-kodama/dynaport/internal/model"
	"github.com/shinji-kodama/dynaport/internal/port"
)

// session is everything a subcommand needs to search or check ports,
// resolved from the config file and the global flags.
type session struct {
	finder   *port.Finder
	scanner  *port.Scanner
	protocol model.Protocol
	log      *logger.Logger
}

// publishedPortsFunc returns the host ports published by Docker containers.
// Tests replace it to run without a daemon.
var publishedPortsFunc = func(ctx context.Context) ([]model.PortBinding, error) {
	c, err := docker.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = c.Close() }()
	return c.PublishedPorts(ctx)
}

// newSession loads the configuration, applies flag overrides and builds the
// Finder. Configuration problems are returned as ExitInvalidConfig.
func newSession(ctx context.Context, cmd *cobra.Command) (*session, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, model.WrapCLIError(model.ExitGeneralError, "cannot determine working directory", err)
	}

	cfg, cfgPath, err := config.Resolve(search.configPath, wd)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitInvalidConfig, "invalid configuration", err)
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, model.WrapCLIError(model.ExitInvalidConfig, "invalid configuration", err)
	}

	log, err := newLogger(cfg)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitInvalidConfig, "invalid configuration", err)
	}
	if cfgPath != "" {
		log.Debug("loaded config", "path", cfgPath)
	}

	// Validate already accepted the protocol.
	protocol, _ := model.ParseProtocol(cfg.Protocol)

	excluded := append([]int(nil), cfg.Exclude...)
	if cfg.ExcludeDocker {
		bindings, err := publishedPortsFunc(ctx)
		if err != nil {
			return nil, err
		}
		log.Info("excluding Docker published ports", "count", len(bindings), "ports", docker.FormatBindings(bindings))
		excluded = append(excluded, docker.Ports(bindings)...)
	}
	if cfg.ExcludeProject {
		bindings, err := devcontainer.ProjectPorts(wd)
		if err != nil {
			return nil, model.WrapCLIError(model.ExitInvalidConfig, "cannot read project port declarations", err)
		}
		log.Info("excluding project ports", "count", len(bindings), "ports", docker.FormatBindings(bindings))
		excluded = append(excluded, docker.Ports(bindings)...)
	}

	scanner := port.NewScannerWithAddress(cfg.Address)
	opts := []port.Option{
		port.WithProber(scanner),
		port.WithProtocol(protocol),
		port.WithMaxAttempts(cfg.MaxAttempts),
		port.WithExcluded(excluded...),
		port.WithLogger(log),
	}
	if cfg.Seed != nil {
		opts = append(opts, port.WithSeed(*cfg.Seed))
	}

	return &session{
		finder:   port.NewFinder(opts...),
		scanner:  scanner,
		protocol: protocol,
		log:      log,
	}, nil
}

// applyFlags copies every explicitly set global flag over the file value.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("protocol") {
		cfg.Protocol = search.protocol
	}
	if flags.Changed("address") {
		cfg.Address = search.address
	}
	if flags.Changed("max-attempts") {
		cfg.MaxAttempts = search.maxAttempts
	}
	if flags.Changed("seed") {
		seed := search.seed
		cfg.Seed = &seed
	}
	if flags.Changed("exclude") {
		cfg.Exclude = append(cfg.Exclude, search.exclude...)
	}
	if flags.Changed("exclude-docker") {
		cfg.ExcludeDocker = search.excludeDocker
	}
	if flags.Changed("exclude-project") {
		cfg.ExcludeProject = search.excludeProject
	}
}

// newLogger builds the stderr logger. --verbose forces debug level.
func newLogger(cfg *config.Config) (*logger.Logger, error) {
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	if verbose {
		level = logger.LevelDebug
	}
	format, err := logger.ParseFormat(cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("log: %w", err)
	}

	lc := logger.DefaultConfig()
	lc.Level = level
	lc.Format = format
	return logger.New(lc), nil
}

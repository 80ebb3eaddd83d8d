package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/brettbedarf/treestore/config"
	"github.com/brettbedarf/treestore/executor"
	"github.com/brettbedarf/treestore/internal/util"
	"github.com/brettbedarf/treestore/server"
	"github.com/brettbedarf/treestore/tree"
	"github.com/urfave/cli/v2"
)

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "treestore",
		Usage: "in-memory path-addressed tree served over a TCP line protocol",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML or JSON config file",
			},
			&cli.StringFlag{
				Name:  "host",
				Usage: "interface to listen on",
				Value: config.DefaultHost,
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "TCP port of the line protocol",
				Value:   config.DefaultPort,
			},
			&cli.IntFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "log verbosity between 1 (error) and 5 (trace)",
				Value:   config.InfoVerbose,
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "host:port to serve Prometheus metrics on, disabled when empty",
			},
			&cli.BoolFlag{
				Name:  "no-seed",
				Usage: "start with an empty tree instead of the configured seed",
			},
		},
		Action: run,
	}
}

// buildConfig layers defaults, the optional config file and explicitly set
// flags, in that order.
func buildConfig(cctx *cli.Context) (*config.Config, error) {
	cfg := config.NewDefaultConfig()

	if path := cctx.String("config"); path != "" {
		override, err := config.LoadConfigOverrideFile(path)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
		cfg.Merge(override)
	}

	var flags config.ConfigOverride
	if cctx.IsSet("host") {
		flags.Host = util.Pointer(cctx.String("host"))
	}
	if cctx.IsSet("port") {
		flags.Port = util.Pointer(cctx.Int("port"))
	}
	if cctx.IsSet("verbose") {
		flags.LogLvl = util.Pointer(cctx.Int("verbose"))
	}
	if cctx.IsSet("metrics-addr") {
		flags.MetricsAddr = util.Pointer(cctx.String("metrics-addr"))
	}
	if cctx.Bool("no-seed") {
		flags.Seed = &[]config.SeedEntry{}
	}
	cfg.Merge(&flags)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func run(cctx *cli.Context) error {
	cfg, err := buildConfig(cctx)
	if err != nil {
		return err
	}

	util.InitializeLogger(cfg.LogLvl)
	logger := util.GetLogger("main")
	logger.Info().Str("addr", cfg.Addr()).Str("metrics", cfg.MetricsAddr).Msg("Treestore server initializing")

	guard := tree.NewGuard(tree.NewStore())
	seeded, err := executor.Seed(guard, cfg.Seed)
	if err != nil {
		return fmt.Errorf("seed tree: %w", err)
	}
	logger.Info().Int("entries", seeded).Msg("Seeded tree")

	srv := server.New(cfg, executor.New(guard))
	done := srv.Start(cctx.Context)

	// Setup signal handling for graceful shutdown
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signalChan)

	select {
	case sig := <-signalChan:
		logger.Info().Str("signal", sig.String()).Msg("Received signal, shutting down")
		srv.Shutdown()
		err = <-done
	case err = <-done:
	}

	if err != nil && !errors.Is(err, server.ErrServerClosed) {
		return err
	}
	stats := guard.Stats()
	logger.Info().Int("nodes", stats.Nodes).Int("leaves", stats.Leaves).Msg("Server shut down")
	return nil
}

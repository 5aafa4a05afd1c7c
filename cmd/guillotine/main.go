// Command guillotine is the entry point for the guillotine Ethereum
// execution client.
//
// Usage:
//
//	guillotine [flags]
//
// Flags:
//
//	--config <name>       network config to load (default "mainnet")
//	--configs-dir <path>  directory holding network config files (default "configs")
//	--data-dir <path>     data directory (default "./data")
//	--db-dir <path>       key-value store directory (default "./db")
//	--help, -h            print usage and exit
//	--version, -v         print version and exit
//
// Flags may be supplied as --flag=value or --flag value. --help and
// --version are mutually exclusive; supplying both is an error.
// GUILLOTINE_CONFIG, GUILLOTINE_CONFIGS_DIR, GUILLOTINE_DATA_DIR, and
// GUILLOTINE_DB_DIR set defaults that CLI flags override.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	applog "github.com/guillotine/guillotine/log"
	"github.com/guillotine/guillotine/node"
)

// Build-time version info, overridable with ldflags:
//
//	go build -ldflags "-X main.version=v0.2.0 -X main.commit=abc1234"
var (
	version = "v0.1.0-dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run is the actual entry point, returning an exit code. Accepts CLI
// arguments (without the program name) so it can be tested in isolation.
func run(args []string) int {
	cfg, exit, code := parseFlags(args)
	if exit {
		return code
	}

	logger := applog.NewConsole(slog.LevelInfo)

	logger.Info("guillotine starting", "version", version, "commit", commit)
	logger.Info("configuration", "network", cfg.Network, "configs-dir", cfg.ConfigsDir,
		"data-dir", cfg.DataDir, "db-dir", cfg.DBDir)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "err", err)
		return 1
	}

	if err := cfg.InitDataDir(); err != nil {
		logger.Error("failed to initialize data directory", "err", err)
		return 1
	}
	logger.Info("data directory initialized", "path", cfg.DataDir)

	n, err := node.New(&cfg)
	if err != nil {
		logger.Error("failed to create node", "err", err)
		return 1
	}

	if err := n.Start(); err != nil {
		logger.Error("failed to start node", "err", err)
		return 1
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig.String())

	if err := n.Stop(); err != nil {
		logger.Error("error during shutdown", "err", err)
		return 1
	}

	logger.Info("shutdown complete")
	return 0
}

// parseFlags resolves a Config from defaults, GUILLOTINE_* environment
// variables, then CLI flags (each layer overriding the last), and handles
// --help/--version. Returns the config, whether the caller should exit
// immediately, and the exit code.
func parseFlags(args []string) (node.Config, bool, int) {
	def := node.DefaultConfig()
	f := &cliFlags{
		Config:     def.Network,
		ConfigsDir: def.ConfigsDir,
		DataDir:    def.DataDir,
		DBDir:      def.DBDir,
	}
	f.envOverrides(os.LookupEnv)

	if err := f.parseArgs(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		usage(os.Stderr)
		return def, true, 2
	}

	if f.Help && f.Version {
		fmt.Fprintf(os.Stderr, "Error: %v\n", errFlagConflict)
		return def, true, 2
	}
	if f.Help {
		usage(os.Stdout)
		return def, true, 0
	}
	if f.Version {
		fmt.Printf("guillotine %s (commit %s)\n", version, commit)
		return def, true, 0
	}

	cfg := def
	cfg.Network = f.Config
	cfg.ConfigsDir = f.ConfigsDir
	cfg.DataDir = f.DataDir
	cfg.DBDir = f.DBDir

	if err := loadNetworkConfig(&cfg); err != nil && !errors.Is(err, ErrConfigFileNotFound) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return def, true, 1
	}
	return cfg, false, 0
}

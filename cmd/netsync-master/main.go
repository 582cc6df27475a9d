// ABOUTME: Entry point for netsync-master: watches a directory and pushes updates to agents
// ABOUTME: Runs the hub, status servers, and the operator console on stdin

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/2389/netsync/internal/config"
	"github.com/2389/netsync/internal/logging"
	"github.com/2389/netsync/internal/master"
	"github.com/2389/netsync/internal/repl"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const banner = `
             _                                                 _
 _ __   ___| |_ ___ _   _ _ __   ___       _ __ ___   __ _ ___| |_ ___ _ __
| '_ \ / _ \ __/ __| | | | '_ \ / __|_____| '_ ' _ \ / _' / __| __/ _ \ '__|
| | | |  __/ |_\__ \ |_| | | | | (_|_____| | | | | | (_| \__ \ ||  __/ |
|_| |_|\___|\__|___/\__, |_| |_|\___|    |_| |_| |_|\__,_|___/\__\___|_|
                    |___/
`

type options struct {
	configPath string
	repoPath   string
	port       int
	logLevel   string
	noConsole  bool
}

// getConfigPath returns the path to the master config file.
// Priority: --config > NETSYNC_CONFIG env var > XDG_CONFIG_HOME/netsync/master.yaml > ~/.config/netsync/master.yaml
func getConfigPath(flagPath string) (path string, explicit bool) {
	if flagPath != "" {
		return flagPath, true
	}
	if envPath := os.Getenv("NETSYNC_CONFIG"); envPath != "" {
		return envPath, true
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "master.yaml", false
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "netsync", "master.yaml"), false
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	var opts options
	flagSet := pflag.NewFlagSet("netsync-master", pflag.ContinueOnError)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "path to master.yaml (default: $NETSYNC_CONFIG or ~/.config/netsync/master.yaml)")
	flagSet.StringVar(&opts.repoPath, "repo-path", "", "directory to watch (overrides WATCH_PATH and watch.path)")
	flagSet.IntVarP(&opts.port, "port", "p", 0, "agent listening port (overrides WATCH_PORT and server.port)")
	flagSet.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn, or error")
	flagSet.BoolVar(&opts.noConsole, "no-console", false, "do not read operator commands from stdin")
	showVersion := flagSet.Bool("version", false, "print version and exit")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if *showVersion {
		fmt.Printf("netsync-master %s\n", version)
		return nil
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}

	cfg, configPath, err := loadConfig(opts, flagSet)
	if err != nil {
		return err
	}

	return runServe(ctx, cfg, configPath, opts)
}

// loadConfig layers file, environment, and flags, then validates.
func loadConfig(opts options, flagSet *pflag.FlagSet) (*config.Config, string, error) {
	configPath, explicit := getConfigPath(opts.configPath)

	var cfg *config.Config
	var err error
	if explicit {
		cfg, err = config.Load(configPath)
	} else {
		cfg, err = config.LoadOptional(configPath)
	}
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, "", err
	}
	if flagSet.Changed("repo-path") {
		cfg.Watch.Path = opts.repoPath
	}
	if flagSet.Changed("port") {
		cfg.Server.Port = opts.port
	}
	if flagSet.Changed("log-level") {
		cfg.Logging.Level = opts.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid config: %w", err)
	}
	return cfg, configPath, nil
}

func runServe(ctx context.Context, cfg *config.Config, configPath string, opts options) error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	logger, closer, err := logging.Setup(cfg.Logging, os.Stdout)
	if err != nil {
		return err
	}
	defer closer.Close()

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Watching:  %s\n", cfg.Watch.Path)
	green.Print("    ▶ ")
	fmt.Printf("Agents:    %s\n", cfg.Server.ListenAddr())
	if cfg.Server.HealthAddr != "" {
		green.Print("    ▶ ")
		fmt.Printf("HTTP:      %s\n", cfg.Server.HealthAddr)
	}
	if cfg.Server.GRPCHealthAddr != "" {
		green.Print("    ▶ ")
		fmt.Printf("gRPC:      %s\n", cfg.Server.GRPCHealthAddr)
	}
	if cfg.Database.Path == "" {
		yellow.Println("    ! event history disabled (database.path is empty)")
	}
	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}
	fmt.Println()

	logger.Info("starting netsync-master",
		"config", configPath,
		"watch_path", cfg.Watch.Path,
		"listen_addr", cfg.Server.ListenAddr(),
	)

	m, err := master.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating master: %w", err)
	}

	if !opts.noConsole {
		var history repl.History
		if h := m.History(); h != nil {
			history = h
		}
		console := repl.New(m.Hub().Registry(), m.Hub().Dispatcher(), history, os.Stdout, logger)
		go func() {
			if err := console.Run(ctx, os.Stdin); err != nil {
				logger.Warn("console stopped", "error", err)
			}
		}()
	}

	return m.Run(ctx)
}

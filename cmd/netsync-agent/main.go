// ABOUTME: Entry point for netsync-agent: connects to the master and reacts to pushed commands
// ABOUTME: Runs on_update / on_custom hooks and reconnects forever until interrupted

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/2389/netsync/internal/config"
	"github.com/2389/netsync/internal/logging"
	"github.com/2389/netsync/internal/session"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type options struct {
	configPath string
	masterAddr string
	hostname   string
	logLevel   string
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
	flagSet := pflag.NewFlagSet("netsync-agent", pflag.ContinueOnError)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "path to agent.toml (optional)")
	flagSet.StringVar(&opts.masterAddr, "master-addr", "", "master host:port (overrides MASTER_ADDR)")
	flagSet.StringVar(&opts.hostname, "client-hostname", "", "hostname announced to the master (overrides CLIENT_HOSTNAME)")
	flagSet.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn, or error")
	showVersion := flagSet.Bool("version", false, "print version and exit")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if *showVersion {
		fmt.Printf("netsync-agent %s\n", version)
		return nil
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}

	cfg, err := loadConfig(opts, flagSet)
	if err != nil {
		return err
	}
	return runAgent(ctx, cfg)
}

// loadConfig layers file, environment, and flags, then validates.
func loadConfig(opts options, flagSet *pflag.FlagSet) (*config.AgentConfig, error) {
	cfg, err := config.LoadAgent(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	cfg.ApplyEnv(os.Getenv)
	if flagSet.Changed("master-addr") {
		cfg.MasterAddr = opts.masterAddr
	}
	if flagSet.Changed("client-hostname") {
		cfg.Hostname = opts.hostname
	}
	if flagSet.Changed("log-level") {
		cfg.Logging.Level = opts.logLevel
	}
	cfg.ResolveHostname(os.Hostname)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func runAgent(ctx context.Context, cfg *config.AgentConfig) error {
	logger, closer, err := logging.Setup(cfg.Logging, os.Stdout)
	if err != nil {
		return err
	}
	defer closer.Close()

	green := color.New(color.FgGreen)
	gray := color.New(color.FgHiBlack)

	green.Print("▶ ")
	fmt.Printf("netsync-agent %s: ", version)
	color.New(color.FgCyan).Print(cfg.Hostname)
	gray.Printf(" -> %s\n", cfg.MasterAddr)

	handler := &session.ExecHandler{
		UpdateCmd: cfg.OnUpdate,
		CustomCmd: cfg.OnCustom,
		Timeout:   cfg.HookTimeout,
		Logger:    logger,
	}
	s := session.New(session.Config{
		MasterAddr:     cfg.MasterAddr,
		Hostname:       cfg.Hostname,
		ReconnectDelay: cfg.ReconnectDelay,
		ReadTimeout:    cfg.ReadTimeout,
	}, handler, logger)

	logger.Info("starting netsync-agent", "hostname", cfg.Hostname, "master", cfg.MasterAddr)
	return s.Run(ctx)
}

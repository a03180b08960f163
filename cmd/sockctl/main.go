package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/irctrakz/sockmgr/pkg/config"
	"github.com/irctrakz/sockmgr/pkg/core"
	"github.com/irctrakz/sockmgr/pkg/logging"
	"github.com/irctrakz/sockmgr/pkg/socket"
)

type globalConfig struct {
	configPath string
	logFile    string
	debug      bool

	cfg *config.Config
}

// load builds the effective configuration: defaults, then the config file,
// then the environment, then command line flags.
func (g *globalConfig) load() error {
	cfg := config.DefaultConfig()
	if g.configPath != "" {
		if err := config.LoadFromFile(g.configPath, cfg); err != nil {
			return err
		}
	}
	config.LoadFromEnv(cfg)
	if g.debug || envTruthy("DEBUG") {
		cfg.Logging.Level = "debug"
	}
	if g.logFile != "" {
		cfg.Logging.File = g.logFile
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.ApplyLogging(); err != nil {
		return err
	}
	core.SetDebugMode(cfg.Logging.Level == "debug")
	g.cfg = cfg
	return nil
}

func (g *globalConfig) options() socket.Options {
	opts := socket.DefaultOptions()
	opts.Socket = g.cfg.Socket
	opts.HTTP = g.cfg.HTTP
	return opts
}

func envTruthy(name string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(name)))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func main() {
	rootCommand := &cobra.Command{
		Use:           "sockctl",
		Short:         "asynchronous socket manager client",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	g := new(globalConfig)
	rootCommand.PersistentFlags().StringVar(&g.configPath, "config", "", "`path` to a json, yaml or hujson config file")
	rootCommand.PersistentFlags().StringVar(&g.logFile, "log-file", "", "also write logs to rotated `file`")
	rootCommand.PersistentFlags().BoolVar(&g.debug, "debug", false, "show debugging output")
	rootCommand.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return g.load()
	}

	rootCommand.AddCommand(
		newConnectCommand(g),
		newHTTPCommand(g),
		newOAuthCommand(g),
		newValidateCommand(g),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCommand.ExecuteContext(ctx)
	cancel()
	if err != nil {
		logging.Errorf("%v", err)
		fmt.Fprintln(os.Stderr, "sockctl:", err)
		os.Exit(1)
	}
}

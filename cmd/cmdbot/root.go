package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperifyio/cmdbot/internal/config"
)

// rootOptions holds the resolved configuration shared by all subcommands.
type rootOptions struct {
	cfg config.Config

	store         string
	storePath     string
	logLevel      string
	logFormat     string
	scriptTimeout time.Duration
	replyUnknown  bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "cmdbot",
		Short: "Chat command bot with sandboxed user scripts",
		Long: `cmdbot answers "!!name args" invocations in chat. Built-in commands are
trusted Go code; user-defined commands are templates or JavaScript run in
an isolated, time-limited sandbox.

Configuration comes from CMDBOT_* environment variables; flags override.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.resolve(cmd)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.store, "store", "", "command store backend (sqlite|file|memory)")
	pf.StringVar(&opts.storePath, "store-path", "", "sqlite database file or file-store directory")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level (debug|info|warn|error)")
	pf.StringVar(&opts.logFormat, "log-format", "", "log format (text|json)")
	pf.DurationVar(&opts.scriptTimeout, "script-timeout", 0, "wall-clock limit per script run")
	pf.BoolVar(&opts.replyUnknown, "reply-unknown", false, "reply when a command does not exist")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newConsoleCommand(opts))
	cmd.AddCommand(newCommandsCommand(opts))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// resolve loads the environment and applies explicitly set flags on top.
func (o *rootOptions) resolve(cmd *cobra.Command) error {
	var cfg config.Config
	if err := config.ParseEnv(&cfg); err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("store") {
		cfg.Store = o.store
	}
	if flags.Changed("store-path") {
		cfg.StorePath = o.storePath
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = o.logFormat
	}
	if flags.Changed("script-timeout") {
		cfg.ScriptTimeout = o.scriptTimeout
	}
	if flags.Changed("reply-unknown") {
		cfg.ReplyUnknown = o.replyUnknown
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	o.cfg = cfg
	return nil
}

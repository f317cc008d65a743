package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/com-junkawasaki/kotoba-sub011/config"
)

// rootOptions holds the global flags every subcommand sees.
type rootOptions struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
	Format     string // "text" | "json"

	cfg    *config.Config
	logger *slog.Logger
}

// validFormats defines the allowed output formats.
var validFormats = []string{"text", "json"}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "kotoba - graph-native transformation engine",
		Long: `Kotoba rewrites property graphs with declaratively defined rules and
composes rules into strategies: one-shot and fixpoint application,
ordered choice, parallel branches, sagas with compensation, and
long-running workflow steps with activities, timers and signals.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.setup(cmd)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "",
		"path to a JSON or YAML config file (env: KOTOBA_CONFIG)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "",
		"log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "",
		"log format: text, json")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text",
		"output format (text|json)")

	cmd.AddCommand(newValidateCommand(opts))
	cmd.AddCommand(newHashCommand(opts))
	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// setup loads .env, the config file and the logger. Flags override the
// file, the file overrides defaults; environment overrides sit between.
func (o *rootOptions) setup(cmd *cobra.Command) error {
	if !isValidFormat(o.Format) {
		return fmt.Errorf("invalid format %q: must be one of %v", o.Format, validFormats)
	}

	// A missing .env is not an error, local overrides are optional.
	_ = godotenv.Load()

	if o.ConfigPath == "" {
		o.ConfigPath = envConfigPath()
	}
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return err
	}
	if o.LogLevel != "" {
		cfg.Logging.Level = o.LogLevel
	}
	if o.LogFormat != "" {
		cfg.Logging.Format = o.LogFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	o.cfg = cfg
	// Logs go to stderr so json output on stdout stays parseable.
	o.logger = cfg.Logging.Logger(cmd.ErrOrStderr())
	slog.SetDefault(o.logger)
	return nil
}

func isValidFormat(format string) bool {
	for _, f := range validFormats {
		if f == format {
			return true
		}
	}
	return false
}

// envConfigPath honors KOTOBA_CONFIG when --config is not given.
func envConfigPath() string {
	return os.Getenv(config.EnvPrefix + "_CONFIG")
}

// printJSON renders v as indented JSON on w.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Package cmd provides the command-line interface for quilt.
//
// Configuration System:
//
//	Settings are read from several sources with clear precedence:
//	1. Command-line flags (--root, --port, etc.) - highest priority
//	2. Individual environment variables (QUILT_SERVER_PORT, etc.)
//	3. The configuration file: --config, else QUILT_CONFIG_FILE, else .quilt.yml
//	4. Built-in defaults - lowest priority
//
// Environment Variables:
//
//	QUILT_CONFIG_FILE: Path to custom configuration file
//	QUILT_TEMPLATE_ROOT: Template root directory
//	QUILT_SERVER_PORT: Override server port
//	And the rest following the QUILT_<SECTION>_<OPTION> pattern
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/conneroisu/quilt/internal/config"
	"github.com/conneroisu/quilt/internal/engine"
	"github.com/conneroisu/quilt/internal/errors"
	"github.com/conneroisu/quilt/internal/logging"
)

var cfgFile string

// flagKeys maps flag names to the configuration keys they override.
var flagKeys = map[string]string{
	"log-level":   "log-level",
	"root":        "template.root",
	"port":        "server.port",
	"host":        "server.host",
	"live-reload": "server.live_reload",
	"watch":       "server.watch",
	"dest":        "build.dest",
	"pages":       "build.pages",
	"concurrency": "build.concurrency",
	"manifest":    "build.manifest",
	"no-cache":    "template.disable_cache",
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "quilt",
	Short: "Compose HTML pages from Handlebars templates, layouts and partials",
	Long: `Quilt renders pages written as Handlebars templates with front matter.
Pages are wrapped in layouts, pull in partials and helper modules from their
project or from the shared directory, and merge data files into their context.

Quick Start:
  quilt serve                     Preview the template root with live reload
  quilt render blog/index.html    Render one page to stdout
  quilt build                     Render every page into the dest directory`,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .quilt.yml, can also use QUILT_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().StringP("root", "r", "", "template root directory (default is the current directory)")
	rootCmd.PersistentFlags().Bool("no-cache", false, "disable the template and data caches")
}

// initConfig points viper at the configuration file and binds the flags of
// the running command.
func initConfig(cmd *cobra.Command, _ []string) error {
	explicit := cfgFile
	if explicit == "" {
		explicit = os.Getenv("QUILT_CONFIG_FILE")
	}
	if explicit != "" {
		viper.SetConfigFile(explicit)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".quilt")
	}

	viper.SetEnvPrefix("QUILT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit != "" || !errors.As(err, &notFound) {
			return errors.NewConfigError("could not read configuration file", err)
		}
	}

	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if key, ok := flagKeys[f.Name]; ok && bindErr == nil {
			bindErr = viper.BindPFlag(key, f)
		}
	})
	return bindErr
}

// loadConfig loads the validated configuration with root and dest made
// absolute.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.NewConfigError("failed to load configuration", err)
	}

	root, err := filepath.Abs(cfg.Template.Root)
	if err != nil {
		return nil, errors.NewConfigError("invalid template root", err)
	}
	cfg.Template.Root = filepath.ToSlash(root)

	if cfg.Build.Dest, err = filepath.Abs(cfg.Build.Dest); err != nil {
		return nil, errors.NewConfigError("invalid build destination", err)
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg *config.Config) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, errors.NewConfigError("invalid log level", err)
	}
	format, _ := cmd.Flags().GetString("log-format")
	if format != "text" && format != "json" {
		return nil, errors.NewConfigError(fmt.Sprintf("unsupported log format %q (supported: text, json)", format), nil)
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: format,
		Output: cmd.ErrOrStderr(),
	}), nil
}

// setup loads configuration and builds the logger and engine every command
// shares.
func setup(cmd *cobra.Command) (*config.Config, logging.Logger, *engine.Engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	eng := engine.New(&cfg.Template, engine.WithLogger(logger))
	return cfg, logger, eng, nil
}

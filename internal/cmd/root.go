// Package cmd wires configuration, logging and the mailprobe services
// into the command line.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/optimode/mailprobe/internal/config"
	"github.com/optimode/mailprobe/internal/observability"
)

// Version info set by main package
var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{Version: "dev", Commit: "unknown", BuildDate: "unknown"}

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// cli is the state shared by one command tree.
type cli struct {
	v       *viper.Viper
	cfgFile string
	verbose bool
}

// NewRootCmd builds the command tree with its own viper instance.
func NewRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:   "mailprobe",
		Short: "Email address validation service",
		Long: `mailprobe checks email addresses for syntax, disposable and role
accounts, MX records and mailbox acceptance over SMTP.

Use the subcommands to validate addresses directly or to run the HTTP API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return config.Setup(c.v, c.cfgFile)
		},
	}

	// Global flags
	root.PersistentFlags().StringVar(&c.cfgFile, "config", "", "config file (default ./mailprobe.yaml or ./config/mailprobe.yaml)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "verbose output (sets log level to debug)")

	root.AddCommand(
		c.serveCmd(),
		c.validateCmd(),
		c.batchCmd(),
		versionCmd(),
	)
	return root
}

// Execute runs the root command. This is called by main.main().
func Execute() error {
	return NewRootCmd().Execute()
}

// load decodes and validates the configuration and builds the logger.
func (c *cli) load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Decode(c.v)
	if err != nil {
		return nil, nil, err
	}
	level := cfg.Logging.Level
	if c.verbose {
		level = "debug"
	}
	logger, err := observability.NewLogger(level, cfg.Logging.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, observability.WithInstance(logger, cfg.Instance.ID), nil
}

// bindFlag lets a command flag override a config key.
func (c *cli) bindFlag(cmd *cobra.Command, key, flag string) {
	_ = c.v.BindPFlag(key, cmd.Flags().Lookup(flag))
}

// Package cli implements the sb3fix command-line interface.
//
// sb3fix takes exactly one argument, the path of a project archive, and
// strips every annotation from the archive's descriptor in place. There are
// no flags beyond cobra's built-in --help and --version; behaviour that needs
// tuning (descriptor entry name, temp directory, log level) comes from the
// configuration file loaded by [config.Load].
//
// # Logging
//
// Logs go to stderr through charmbracelet/log at the configured level.
// SB3FIX_DEBUG=1 switches to debug logging, which also reports the archive
// checksum before and after the repair. Loggers are passed through
// context.Context.
//
// [config.Load]: github.com/matzehuels/sb3fix/internal/config.Load
package cli

import (
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/sb3fix/internal/config"
	"github.com/matzehuels/sb3fix/pkg/buildinfo"
)

// appName is the application name used for display.
const appName = "sb3fix"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	// ConfigPath overrides the configuration file location. Empty means
	// config.Path().
	ConfigPath string

	cfg *config.Config
}

// New creates a new CLI instance with a logger writing to w.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: newLogger(w, level),
		cfg:    config.Default(),
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName + " <archive>",
		Short: "Remove broken annotations from a Scratch project archive",
		Long: `sb3fix repairs a Scratch project archive (.sb3) whose annotations reference
blocks that no longer exist. It empties every target's comment registry and
removes the comment link from every block in project.json, leaving all other
archive entries byte-for-byte untouched. The archive is replaced atomically.`,
		Version:           buildinfo.Version,
		Args:              exactlyOneArchive,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.loadConfig,
		RunE:              c.runRepair,
	}

	root.SetVersionTemplate(buildinfo.Template())

	return root
}

// loadConfig reads the configuration file, applies its log level and
// attaches the logger to the command context.
func (c *CLI) loadConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(c.ConfigPath)
	if err != nil {
		return err
	}
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.SetLogLevel(level)
	cmd.SetContext(withLogger(cmd.Context(), c.Logger))
	return nil
}

package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/entql/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	Context    string

	// Config is the loaded config file, or config.Default when none is
	// given. It is filled in before any subcommand runs.
	Config config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the entql CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{Config: config.Default()}

	cmd := &cobra.Command{
		Use:   "entql",
		Short: "entql - expression-tree queries over SQLite",
		Long: `Declare entities and contexts in CUE, lower query expression trees
to SQL, and save tracked changes to SQLite.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.ConfigPath != "" {
				cfg, err := config.Load(opts.ConfigPath)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to load config", err)
				}
				opts.Config = cfg
			}
			configureLogging(opts, cmd)
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (.yaml or .jsonc)")
	cmd.PersistentFlags().StringVar(&opts.Context, "context", "", "context to use when the schema declares several")

	// Add subcommands
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewDDLCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewExecCommand(opts))

	return cmd
}

// configureLogging installs the default slog handler on the command's
// stderr. --verbose forces debug; otherwise the config's log level applies.
func configureLogging(opts *RootOptions, cmd *cobra.Command) {
	logLevel := opts.Config.Level()
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// contextName returns the --context flag, falling back to the config.
func (o *RootOptions) contextName() string {
	if o.Context != "" {
		return o.Context
	}
	return o.Config.Context
}

// schemaPath returns the schema argument, falling back to the config.
func (o *RootOptions) schemaPath(args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}
	if o.Config.Schema != "" {
		return o.Config.Schema, nil
	}
	return "", NewExitError(ExitCommandError, "no schema given: pass a path or set schema in the config file")
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

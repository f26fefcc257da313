package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/entql/internal/schema"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool             `json:"valid"`
	Entities int              `json:"entities"`
	Contexts []ContextSummary `json:"contexts"`
}

// ContextSummary describes one validated context.
type ContextSummary struct {
	Name        string       `json:"name"`
	Fingerprint string       `json:"fingerprint"`
	Sets        []SetSummary `json:"sets"`
}

// SetSummary describes one entity set and the table backing it.
type SetSummary struct {
	Name       string   `json:"name"`
	Element    string   `json:"element"`
	Key        string   `json:"key"`
	Columns    []string `json:"columns"`
	References []string `json:"references,omitempty"`
}

// String renders the result for text output.
func (r ValidationResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "\u2713 Schema valid: %d entities, %d contexts", r.Entities, len(r.Contexts))
	for _, c := range r.Contexts {
		fmt.Fprintf(&b, "\n%s %s", c.Name, c.Fingerprint[:12])
		for _, s := range c.Sets {
			fmt.Fprintf(&b, "\n  %s (%s) key=%s columns=%s", s.Name, s.Element, s.Key, strings.Join(s.Columns, ","))
			if len(s.References) > 0 {
				fmt.Fprintf(&b, " references=%s", strings.Join(s.References, ","))
			}
		}
	}
	return b.String()
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [schema]",
		Short: "Validate a CUE entity schema",
		Long: `Validate the entity and context declarations of a CUE schema.

Every context must close over its navigations: each reference or
collection target needs an entity set in the same context, and inverse
properties must point back at each other. The schema is a directory
holding a CUE package or a single .cue file; without an argument the
schema from the config file is used.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, args []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	path, err := opts.schemaPath(args)
	if err != nil {
		return err
	}

	loaded, err := loadSchema(path)
	if err != nil {
		return formatter.FailWith(failureCode(err), ErrorCode(err), "schema invalid", err, loadErrorDetails(err))
	}
	formatter.VerboseLog("Loaded %d entities and %d contexts from %s",
		len(loaded.Registry.Entities()), len(loaded.Contexts), path)

	result := summarize(loaded)
	if name := opts.contextName(); name != "" {
		m, err := loaded.Context(name)
		if err != nil {
			return formatter.Fail(ExitFailure, "schema invalid", err)
		}
		result.Contexts = []ContextSummary{summarizeContext(m)}
	}
	return formatter.Success(result)
}

func summarize(loaded *schema.Loaded) ValidationResult {
	result := ValidationResult{
		Valid:    true,
		Entities: len(loaded.Registry.Entities()),
		Contexts: []ContextSummary{},
	}
	for _, m := range loaded.Contexts {
		result.Contexts = append(result.Contexts, summarizeContext(m))
	}
	return result
}

func summarizeContext(m *schema.Model) ContextSummary {
	summary := ContextSummary{Name: m.Name, Fingerprint: m.Fingerprint()}
	for _, set := range m.Sets() {
		e := set.Element()
		s := SetSummary{Name: set.Name, Element: e.Name, Key: e.Key().Name}
		for _, f := range e.Columns() {
			s.Columns = append(s.Columns, f.Column)
		}
		for _, f := range e.References() {
			s.References = append(s.References, f.Name+"->"+f.Target().Name)
		}
		summary.Sets = append(summary.Sets, s)
	}
	return summary
}

// loadErrorDetails returns the source position of a CUE load error, or
// nil when there is none.
func loadErrorDetails(err error) any {
	var le *schema.LoadError
	if !errors.As(err, &le) || !le.Pos.IsValid() {
		return nil
	}
	return map[string]any{
		"file":   le.Pos.Filename(),
		"line":   le.Pos.Line(),
		"column": le.Pos.Column(),
		"path":   le.Path,
	}
}

package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/optimode/mailprobe"
	"github.com/optimode/mailprobe/types"
)

func (c *cli) validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <email>...",
		Short: "Validate one or more email addresses",
		Long:  "Run the full validation pipeline on each address and print a table, or JSON with --json.",
		Args:  cobra.MinimumNArgs(1),
		RunE:  c.runValidate,
	}
	cmd.Flags().Bool("skip-smtp", false, "stop before the SMTP probe")
	cmd.Flags().Bool("force-smtp", false, "probe domains that are normally skipped")
	cmd.Flags().Int("workers", 5, "concurrent validations")
	cmd.Flags().Bool("json", false, "print results as JSON")
	return cmd
}

func (c *cli) runValidate(cmd *cobra.Command, args []string) error {
	skip, err := cmd.Flags().GetBool("skip-smtp")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force-smtp")
	if err != nil {
		return err
	}
	workers, err := cmd.Flags().GetInt("workers")
	if err != nil {
		return err
	}
	if workers < 1 {
		return errors.New("workers must be at least 1")
	}
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	cfg, logger, err := c.load()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	validator, err := buildValidator(cfg, logger)
	if err != nil {
		return err
	}

	results, err := validator.ValidateMany(cmd.Context(), args, mailprobe.ConcurrencyOptions{
		Workers:  workers,
		Validate: mailprobe.ValidateOptions{SkipSMTP: skip, ForceSMTP: force},
	})
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	renderResults(cmd.OutOrStdout(), results)
	return nil
}

// renderResults writes one table row per result.
func renderResults(w io.Writer, results []types.ValidationResult) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Email", "Status", "Score", "MX", "SMTP", "Notes"})

	for _, r := range results {
		t.AppendRow(table.Row{
			r.Email,
			string(r.Status),
			r.Score,
			firstMX(r.MX),
			smtpLabel(r.SMTP),
			notes(r),
		})
	}
	t.Render()
}

func firstMX(mx []string) string {
	switch len(mx) {
	case 0:
		return "-"
	case 1:
		return mx[0]
	default:
		return fmt.Sprintf("%s (+%d)", mx[0], len(mx)-1)
	}
}

func smtpLabel(o *types.SMTPOutcome) string {
	switch {
	case o == nil:
		return "not performed"
	case o.OK:
		return "passed"
	case o.Skipped:
		return "skipped"
	case o.SMTPCode > 0:
		return fmt.Sprintf("%s (%d)", o.Code, o.SMTPCode)
	default:
		return string(o.Code)
	}
}

func notes(r types.ValidationResult) string {
	var parts []string
	if !r.SyntaxValid {
		parts = append(parts, "bad syntax")
	}
	if r.Disposable {
		parts = append(parts, "disposable")
	}
	if r.RoleAccount {
		parts = append(parts, "role account")
	}
	if r.Suggestion != "" {
		parts = append(parts, "did you mean "+r.Suggestion+"?")
	}
	if r.Error != "" {
		parts = append(parts, r.Error)
	}
	return strings.Join(parts, ", ")
}

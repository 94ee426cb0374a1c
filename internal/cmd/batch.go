package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/optimode/mailprobe/batch"
	"github.com/optimode/mailprobe/types"
)

func (c *cli) batchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch <file.csv>",
		Short: "Validate every address in a CSV file",
		Long: `Read a CSV file with a header line, validate the addresses in the
email column as one in-process job and write the original columns plus
the validation columns to --out ("-" for stdout).`,
		Args: cobra.ExactArgs(1),
		RunE: c.runBatch,
	}
	cmd.Flags().String("email-column", batch.DefaultEmailColumn, "header of the column holding addresses")
	cmd.Flags().String("out", "results.csv", "output CSV path, - for stdout")
	cmd.Flags().Int("concurrency", 0, "batches in flight (overrides batch.concurrency)")
	cmd.Flags().Bool("skip-smtp", false, "stop before the SMTP probe")
	cmd.Flags().Bool("force-smtp", false, "probe domains that are normally skipped")
	c.bindFlag(cmd, "batch.concurrency", "concurrency")
	return cmd
}

func (c *cli) runBatch(cmd *cobra.Command, args []string) error {
	column, err := cmd.Flags().GetString("email-column")
	if err != nil {
		return err
	}
	outPath, err := cmd.Flags().GetString("out")
	if err != nil {
		return err
	}
	skip, err := cmd.Flags().GetBool("skip-smtp")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force-smtp")
	if err != nil {
		return err
	}

	cfg, logger, err := c.load()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	header, rows, err := readCSVFile(args[0], column)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("no addresses found in column %q", column)
	}

	validator, err := buildValidator(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := batch.NewEngine(validator, batch.NewMemoryStore(), batchConfig(cfg), logger)
	defer func() { _ = engine.Shutdown(context.WithoutCancel(ctx)) }()

	id, err := engine.SubmitRows(ctx, header, rows, batch.Options{SkipSMTP: skip, ForceSMTP: force})
	if err != nil {
		return err
	}
	if err := engine.Wait(ctx, id); err != nil {
		return fmt.Errorf("waiting for job %s: %w", id, err)
	}

	job, err := engine.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job.State != batch.StateCompleted {
		return fmt.Errorf("job %s %s: %s", id, job.State, job.Error)
	}

	if err := writeCSVFile(cmd.OutOrStdout(), outPath, job); err != nil {
		return err
	}
	logger.Info("batch finished", zap.String("job_id", id), zap.Int("total", job.Total), zap.String("out", outPath))

	renderSummary(cmd.ErrOrStderr(), job.Results)
	return nil
}

func readCSVFile(path, column string) ([]string, []batch.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = f.Close() }()
	return batch.ReadRows(f, column)
}

func writeCSVFile(stdout io.Writer, path string, job *batch.Job) (err error) {
	if path == "-" {
		return batch.WriteCSV(stdout, job)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return batch.WriteCSV(f, job)
}

// renderSummary prints how many results ended in each status.
func renderSummary(w io.Writer, results []types.ValidationResult) {
	counts := make(map[types.Status]int)
	for _, r := range results {
		counts[r.Status]++
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Status", "Count"})
	for _, st := range []types.Status{types.StatusValid, types.StatusRisky, types.StatusInvalid, types.StatusUnknown} {
		if counts[st] > 0 {
			t.AppendRow(table.Row{string(st), counts[st]})
		}
	}
	t.AppendFooter(table.Row{"Total", len(results)})
	t.Render()
}

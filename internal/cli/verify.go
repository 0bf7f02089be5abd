package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/schemetrust/internal/app"
	"github.com/ppiankov/schemetrust/internal/model"
)

var (
	verifyTimeout time.Duration
	verifyJSON    bool
)

var verifyCmd = &cobra.Command{
	Use:   "verify <schemeID>",
	Short: "Verify one scheme against every enabled source",
	Long: `Verify queries every enabled source for the scheme, appends new evidence
to its chain, recomputes the trust score and prints the resulting status
with any changelog entries the run produced.

Example:
  schemetrust verify pm-kisan
  schemetrust verify pm-kisan --json`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().DurationVar(&verifyTimeout, "timeout", 3*time.Minute, "overall run timeout")
	verifyCmd.Flags().BoolVar(&verifyJSON, "json", false, "print the run result as JSON")
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := app.NewLogger(cfg.Log)

	ctx, cancel := context.WithTimeout(cmd.Context(), verifyTimeout)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	run, err := a.Orchestrator.RunVerification(ctx, args[0])
	if run != nil {
		out := cmd.OutOrStdout()
		if verifyJSON {
			if jsonErr := writeJSON(out, run); jsonErr != nil {
				return jsonErr
			}
		} else {
			printRun(out, a, run)
		}
	}
	if err != nil {
		return fmt.Errorf("verify %s: %w", args[0], err)
	}
	if run.Err != nil {
		return fmt.Errorf("verify %s: %w", args[0], run.Err)
	}
	return nil
}

func printRun(out io.Writer, a *app.App, run *model.RunResult) {
	name := ""
	if scheme, ok := a.Catalog.Get(run.SchemeID); ok {
		name = scheme.Name
	}

	st := model.InitialStatus(run.SchemeID)
	if run.Status != nil {
		st = *run.Status
	}
	printStatus(out, name, st)
	printSources(out, run.Sources)
	printChanges(out, run.Changes)

	fmt.Fprintln(out)
	fmt.Fprintf(out, "  %s run %s, %d new record(s), %s\n",
		faint.Sprint("→"), run.RunID, run.Inserted, run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
}

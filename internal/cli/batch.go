package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/schemetrust/internal/app"
	"github.com/ppiankov/schemetrust/internal/model"
	"github.com/ppiankov/schemetrust/internal/worker"
)

var (
	batchFile    string
	batchStale   bool
	batchAll     bool
	batchTimeout time.Duration
	batchJSON    bool
)

var batchCmd = &cobra.Command{
	Use:   "batch [schemeID...]",
	Short: "Verify many schemes in parallel",
	Long: `Batch verifies schemes concurrently through the worker pool.

Schemes come from the arguments, from --file (one ID per line, # comments
allowed), from --stale (never verified or older than verify.stale_after)
or from --all (the whole catalogue).

Example:
  schemetrust batch pm-kisan mgnrega
  schemetrust batch --file schemes.txt --concurrency 5
  schemetrust batch --stale --stale-after 72h`,
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringVar(&batchFile, "file", "", "file with one scheme ID per line")
	batchCmd.Flags().BoolVar(&batchStale, "stale", false, "verify schemes whose status is stale")
	batchCmd.Flags().BoolVar(&batchAll, "all", false, "verify every catalogued scheme")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 30*time.Minute, "total timeout for the batch")
	batchCmd.Flags().BoolVar(&batchJSON, "json", false, "print run results as JSON")
	batchCmd.Flags().Int("concurrency", 0, "number of concurrent workers (default verify.batch_workers)")
	batchCmd.Flags().Duration("stale-after", 0, "age after which a status is stale (default verify.stale_after)")

	_ = viper.BindPFlag("verify.batch_workers", batchCmd.Flags().Lookup("concurrency"))
	_ = viper.BindPFlag("verify.stale_after", batchCmd.Flags().Lookup("stale-after"))
}

func runBatch(cmd *cobra.Command, args []string) error {
	selectors := 0
	for _, set := range []bool{len(args) > 0, batchFile != "", batchStale, batchAll} {
		if set {
			selectors++
		}
	}
	if selectors != 1 {
		return errors.New("give scheme IDs, or exactly one of --file, --stale or --all")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := app.NewLogger(cfg.Log)

	ctx, cancel := context.WithTimeout(cmd.Context(), batchTimeout)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ids := args
	switch {
	case batchFile != "":
		if ids, err = worker.ReadSchemeIDs(batchFile); err != nil {
			return err
		}
	case batchStale:
		if ids, err = a.Orchestrator.StaleSchemes(ctx, cfg.Verify.StaleAfter); err != nil {
			return err
		}
	case batchAll:
		ids = nil
		for _, s := range a.Catalog.List() {
			ids = append(ids, s.ID)
		}
	}

	if !batchJSON {
		fmt.Fprintf(os.Stderr, "\n%s\n  SchemeTrust Batch Verification\n%s\n\n", rule, rule)
		fmt.Fprintf(os.Stderr, "  Schemes:   %d\n", len(ids))
		fmt.Fprintf(os.Stderr, "  Workers:   %d\n", cfg.Verify.BatchWorkers)
		fmt.Fprintf(os.Stderr, "  Sources:   %d\n", a.Sources.Len())
		fmt.Fprintf(os.Stderr, "  Timeout:   %v\n\n", batchTimeout)
	}
	if len(ids) == 0 {
		fmt.Fprintln(os.Stderr, "Nothing to verify.")
		return nil
	}

	results := a.Orchestrator.VerifyBatch(ctx, ids)

	if batchJSON {
		runs := make([]*model.RunResult, 0, len(results))
		for _, r := range results {
			if r.Run != nil {
				runs = append(runs, r.Run)
			}
		}
		return writeJSON(cmd.OutOrStdout(), runs)
	}

	summary := summarize(results)
	for _, r := range results {
		if err := r.GetError(); err != nil || r.Run == nil || r.Run.Status == nil {
			if err == nil {
				err = errors.New("no status committed")
			}
			fmt.Fprintf(os.Stderr, "%s %s: %v\n", bad.Sprint("✗"), r.SchemeID, err)
			continue
		}
		st := r.Run.Status
		fmt.Fprintf(os.Stderr, "%s %-32s %-28s score %.3f  %d change(s)\n",
			good.Sprint("✓"), r.SchemeID, statusColor(st.Status).Sprint(st.Status), st.TrustScore, len(r.Run.Changes))
	}

	fmt.Fprintf(os.Stderr, "\n%s\n  Batch Complete\n%s\n\n", rule, rule)
	fmt.Fprintf(os.Stderr, "  Total:     %d\n", len(results))
	fmt.Fprintf(os.Stderr, "  Success:   %d\n", summary.succeeded)
	fmt.Fprintf(os.Stderr, "  Failures:  %d\n", summary.failed)
	for _, s := range model.AllStatuses {
		if n := summary.byStatus[s]; n > 0 {
			fmt.Fprintf(os.Stderr, "    %-20s %d\n", statusColor(s).Sprint(s), n)
		}
	}
	fmt.Fprintln(os.Stderr)
	return nil
}

type batchSummary struct {
	succeeded int
	failed    int
	byStatus  map[model.Status]int
}

func summarize(results []*worker.VerifyResult) batchSummary {
	s := batchSummary{byStatus: make(map[model.Status]int)}
	for _, r := range results {
		if r.GetError() != nil || r.Run == nil || r.Run.Status == nil {
			s.failed++
			continue
		}
		s.succeeded++
		s.byStatus[r.Run.Status.Status]++
	}
	return s
}

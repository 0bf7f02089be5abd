package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/schemetrust/internal/app"
	"github.com/ppiankov/schemetrust/internal/model"
	"github.com/ppiankov/schemetrust/internal/store"
)

var (
	statusChanges int
	statusJSON    bool
)

var statusCmd = &cobra.Command{
	Use:   "status <schemeID>",
	Short: "Show the stored status of a scheme",
	Long: `Status prints the derived verification status of a scheme from the
evidence store, without querying any source.

Example:
  schemetrust status pm-kisan --changes 20`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().IntVar(&statusChanges, "changes", 10, "number of recent changelog entries to show")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print as JSON")
}

type statusReport struct {
	Status    model.VerificationStatus `json:"status"`
	Evidence  int                      `json:"evidence_records"`
	Changelog []model.ChangelogEntry   `json:"changelog"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	schemeID := args[0]

	a, err := app.New(ctx, cfg, app.NewLogger(cfg.Log))
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	scheme, known := a.Catalog.Get(schemeID)
	st, err := a.Store.Status(ctx, schemeID)
	switch {
	case errors.Is(err, store.ErrNotFound) && known:
		st = model.InitialStatus(schemeID)
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("scheme %q not found", schemeID)
	case err != nil:
		return err
	}

	report := statusReport{Status: st, Changelog: []model.ChangelogEntry{}}
	if report.Evidence, err = a.Store.EvidenceCount(ctx, schemeID); err != nil {
		return err
	}
	if statusChanges > 0 {
		if report.Changelog, err = a.Store.Changelog(ctx, schemeID, statusChanges); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if statusJSON {
		return writeJSON(out, report)
	}
	printStatus(out, scheme.Name, st)
	fmt.Fprintf(out, "  Evidence:     %d record(s)\n", report.Evidence)
	printChanges(out, report.Changelog)
	return nil
}

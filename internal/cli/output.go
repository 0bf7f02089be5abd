package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/ppiankov/schemetrust/internal/model"
)

var (
	bold    = color.New(color.Bold)
	faint   = color.New(color.Faint)
	good    = color.New(color.FgGreen)
	warn    = color.New(color.FgYellow)
	bad     = color.New(color.FgRed)
	neutral = color.New(color.FgCyan)
)

const rule = "═══════════════════════════════════════════════════════════"

func statusColor(s model.Status) *color.Color {
	switch s {
	case model.StatusVerified:
		return good
	case model.StatusPartiallyVerified:
		return neutral
	case model.StatusDisputed:
		return warn
	case model.StatusRevoked:
		return bad
	default:
		return faint
	}
}

func outcomeColor(o model.Outcome) *color.Color {
	switch o {
	case model.OutcomeOK:
		return good
	case model.OutcomeNotFound:
		return faint
	case model.OutcomeCircuitOpen, model.OutcomePolicyViolation:
		return bad
	default:
		return warn
	}
}

func check(ok bool) string {
	if ok {
		return good.Sprint("✓")
	}
	return faint.Sprint("·")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printStatus(w io.Writer, name string, st model.VerificationStatus) {
	title := st.SchemeID
	if name != "" {
		title = fmt.Sprintf("%s (%s)", name, st.SchemeID)
	}
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "  %s\n", bold.Sprint(title))
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "  Status:       %s\n", statusColor(st.Status).Sprint(st.Status))
	fmt.Fprintf(w, "  Trust score:  %.3f (%s)\n", st.TrustScore, st.Band)
	fmt.Fprintf(w, "  Gazette:      %s   Act: %s   Parliament: %s\n",
		check(st.GazetteConfirmed), check(st.ActConfirmed), check(st.ParliamentConfirmed))
	if st.ConflictStreak > 0 {
		fmt.Fprintf(w, "  Conflict:     %s\n", warn.Sprintf("%d consecutive run(s)", st.ConflictStreak))
	}
	if len(st.SourcesChecked) > 0 {
		ids := make([]string, len(st.SourcesChecked))
		for i, s := range st.SourcesChecked {
			ids[i] = string(s)
		}
		fmt.Fprintf(w, "  Sources:      %s\n", strings.Join(ids, ", "))
	}
	if st.LastVerified != nil {
		fmt.Fprintf(w, "  Verified at:  %s\n", st.LastVerified.Format("2006-01-02 15:04:05 MST"))
	} else {
		fmt.Fprintf(w, "  Verified at:  %s\n", faint.Sprint("never"))
	}
}

func printSources(w io.Writer, results []model.SourceResult) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s\n", bold.Sprint("Sources"))
	for _, r := range results {
		line := fmt.Sprintf("    %-18s %-17s records=%d attempts=%d %s",
			r.Source, outcomeColor(r.Outcome).Sprint(r.Outcome), r.Records, r.Attempts, r.Duration.Round(time.Millisecond))
		if r.Error != "" {
			line += " " + faint.Sprint(r.Error)
		}
		fmt.Fprintln(w, line)
	}
}

func printChanges(w io.Writer, changes []model.ChangelogEntry) {
	if len(changes) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s\n", bold.Sprint("Changes"))
	for _, c := range changes {
		line := fmt.Sprintf("    #%-4d %-22s %s → %s", c.Seq, c.Field, c.OldValue, c.NewValue)
		if c.Reason != "" {
			line += faint.Sprintf("  (%s)", c.Reason)
		}
		fmt.Fprintf(w, "%s  %s\n", line, faint.Sprint(c.DetectedAt.Format("2006-01-02 15:04")))
	}
}

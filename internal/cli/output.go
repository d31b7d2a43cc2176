package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/splitmatch/internal/domain/splitmatch"
)

func money(cents int64) string {
	return "$" + decimal.New(cents, -2).StringFixed(2)
}

// PrintHeader prints the command header
func PrintHeader(w io.Writer, tenantID, sourceID string, create bool) {
	mode := "DRY-RUN"
	if create {
		mode = "CREATE"
	}
	fmt.Fprintf(w, "find-splits: tenant=%s source=%s (%s mode)\n\n", tenantID, sourceID, mode)
}

// PrintSuggestions prints ranked suggestions as a compact table
func PrintSuggestions(w io.Writer, suggestions []splitmatch.Suggestion) {
	if len(suggestions) == 0 {
		fmt.Fprintln(w, "No split suggestions within tolerance.")
		return
	}

	first := suggestions[0]
	fmt.Fprintf(w, "Target: %s | Type: %s | Suggestions: %d\n", money(first.TargetAmountCents), first.MatchType, len(suggestions))
	fmt.Fprintln(w, strings.Repeat("-", 60))

	for i, s := range suggestions {
		fmt.Fprintf(w, "#%d  matched=%s remainder=%s items=%d\n",
			i+1, money(s.MatchedAmountCents), money(s.RemainderCents), len(s.Components))
		for _, c := range s.Components {
			fmt.Fprintf(w, "    %-12s %-24s %12s  %s\n",
				c.Kind, c.CandidateRecordID, money(c.AmountCents), c.Date.Format("2006-01-02"))
		}
	}
	fmt.Fprintln(w, strings.Repeat("-", 60))
}

// PrintSplitMatch prints a persisted split match
func PrintSplitMatch(w io.Writer, m *splitmatch.SplitMatch) {
	fmt.Fprintf(w, "Split match %s: %s matched=%s remainder=%s components=%d\n",
		m.ID, m.Status, money(m.MatchedAmountCents), money(m.RemainderCents), len(m.Components))
}

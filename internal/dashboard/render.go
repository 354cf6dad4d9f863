package dashboard

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/kiranshivaraju/threadlens/pkg/models"
	"github.com/kiranshivaraju/threadlens/pkg/sentiment"
)

// RenderThreads writes the thread panel as an aligned table. A panel whose
// last load failed prints the error above whatever data it still holds.
func RenderThreads(out io.Writer, p ThreadsPanel) error {
	if p.Err != nil {
		fmt.Fprintf(out, "threads: %v\n", p.Err)
	}
	if len(p.Threads) == 0 {
		_, err := fmt.Fprintln(out, "No threads.")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "THREAD\tSTATUS\tSOURCE\tOWNER\tSENTIMENT\tMESSAGES\tLAST MESSAGE")
	for _, t := range p.Threads {
		owner := "-"
		if t.NextActionOwner != nil {
			owner = string(*t.NextActionOwner)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			t.ThreadID,
			t.Status,
			t.StatusSource,
			owner,
			t.Sentiment,
			t.MessageCount,
			t.LastMessageTS.UTC().Format(time.RFC3339),
		)
	}
	return w.Flush()
}

// RenderAggregates writes one row per month with the share of each sentiment level.
func RenderAggregates(out io.Writer, p AggregatesPanel) error {
	if p.Err != nil {
		fmt.Fprintf(out, "aggregates: %v\n", p.Err)
	}
	if len(p.Months) == 0 {
		_, err := fmt.Fprintln(out, "No monthly data.")
		return err
	}

	levels := append(sentiment.Canonical(), sentiment.Unknown)

	headers := []string{"MONTH", "THREADS"}
	for _, s := range levels {
		headers = append(headers, strings.ToUpper(s.String()))
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(headers, "\t"))
	for _, m := range p.Months {
		row := []string{monthLabel(m), fmt.Sprintf("%d", m.ThreadCount)}
		for _, s := range levels {
			row = append(row, fmt.Sprintf("%d (%.1f%%)", m.Count(s), m.Percent(s)))
		}
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	return w.Flush()
}

func monthLabel(m models.MonthlyAggregate) string {
	if m.Taxonomy == sentiment.Legacy3 {
		return m.Month + "*"
	}
	return m.Month
}

// Package report renders lead exports for the admin surface.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/JakeFAU/website-growth-analyzer/internal/analysis"
)

// Header is the first row of every export.
var Header = []string{"Domain", "URL", "Score", "Title", "Summary", "IP", "Submitted", "Analyzed"}

// Filename returns the attachment name for an export taken at now.
func Filename(now time.Time) string {
	return fmt.Sprintf("leads-%s.csv", now.UTC().Format("2006-01-02"))
}

// WriteCSV writes leads as CSV with RFC3339 UTC timestamps.
func WriteCSV(w io.Writer, leads []analysis.LeadRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, lead := range leads {
		row := []string{
			lead.Domain,
			lead.URL,
			strconv.Itoa(lead.GrowthScore),
			lead.PageTitle,
			lead.Summary,
			lead.ClientIP,
			formatTime(lead.CreatedAt),
			formatTime(lead.AnalyzedAt),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %d: %w", lead.ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

package report

import (
	"bytes"
	"encoding/csv"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/website-growth-analyzer/internal/analysis"
)

func TestWriteCSV(t *testing.T) {
	t.Parallel()

	submitted := time.Date(2024, 3, 9, 8, 0, 0, 0, time.FixedZone("EST", -5*3600))
	leads := []analysis.LeadRecord{
		{
			ID:          1,
			URL:         "https://acme.test",
			Domain:      "acme.test",
			GrowthScore: 72,
			PageTitle:   "Acme, Inc.",
			Summary:     "Strong \"hero\" section\nweak CTA",
			ClientIP:    "203.0.113.9",
			CreatedAt:   submitted,
			AnalyzedAt:  submitted.Add(time.Minute),
		},
		{ID: 2, URL: "https://b.test", Domain: "b.test", GrowthScore: 40},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, leads))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Header, rows[0])
	assert.Equal(t, []string{
		"acme.test",
		"https://acme.test",
		"72",
		"Acme, Inc.",
		"Strong \"hero\" section\nweak CTA",
		"203.0.113.9",
		"2024-03-09T13:00:00Z",
		"2024-03-09T13:01:00Z",
	}, rows[1])
	assert.Equal(t, "", rows[2][6])
}

func TestWriteCSVEmpty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))
	assert.Equal(t, "Domain,URL,Score,Title,Summary,IP,Submitted,Analyzed\n", buf.String())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWriteCSVPropagatesWriteErrors(t *testing.T) {
	t.Parallel()

	err := WriteCSV(failingWriter{}, []analysis.LeadRecord{{URL: "https://acme.test"}})
	require.Error(t, err)
}

func TestFilename(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "leads-2024-03-09.csv", Filename(time.Date(2024, 3, 9, 23, 0, 0, 0, time.UTC)))
}

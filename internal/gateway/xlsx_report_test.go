package gateway

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"payment-reconciliation/internal/domain"
)

func TestWriteDuplicateReport(t *testing.T) {
	report := domain.DuplicateReport{
		RunID: "run-1",
		Summary: domain.DuplicateSummary{
			ErrorPaymentsFound:   3,
			DuplicatesIdentified: 1,
			DuplicatesResolved:   1,
			ManualReview:         1,
			NoMatch:              1,
		},
		Log: []domain.ResolutionEntry{
			{
				QuarantineID:     "q1",
				PaymentReference: "pay_1",
				Amount:           "100.00",
				Action:           domain.ActionResolved,
				Details:          "marked 1 staging record(s) duplicate",
				StagingIDs:       []string{"s1"},
				RegistrationIDs:  []string{"r1", "r2"},
			},
			{
				QuarantineID:     "q2",
				PaymentReference: "REF-2",
				Amount:           "10.00",
				Action:           domain.ActionManualReview,
				Details:          "amounts differ",
				ReviewIDs:        []string{"s2"},
			},
			{QuarantineID: "q3", PaymentReference: "q3", Action: domain.ActionNoMatch},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteDuplicateReport(&buf, report))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetSummary, SheetLog, SheetManualReview}, f.GetSheetList())

	summary, err := f.GetRows(SheetSummary)
	require.NoError(t, err)
	assert.Equal(t, []string{"Run ID", "run-1"}, summary[0])
	assert.Equal(t, []string{"Error Payments Found", "3"}, summary[2])

	log, err := f.GetRows(SheetLog)
	require.NoError(t, err)
	require.Len(t, log, 4)
	assert.Equal(t, "Quarantine ID", log[0][0])
	assert.Equal(t, []string{"q1", "pay_1", "100.00", "RESOLVED", "marked 1 staging record(s) duplicate", "s1", "", "r1, r2"}, log[1])

	review, err := f.GetRows(SheetManualReview)
	require.NoError(t, err)
	require.Len(t, review, 2)
	assert.Equal(t, "q2", review[1][0])
	assert.Equal(t, "s2", review[1][6])
}

func TestWriteDuplicateReport_EmptyLog(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteDuplicateReport(&buf, domain.DuplicateReport{RunID: "run-2", DryRun: true}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	review, err := f.GetRows(SheetManualReview)
	require.NoError(t, err)
	assert.Len(t, review, 1, "header only")

	dry, err := f.GetCellValue(SheetSummary, "B2")
	require.NoError(t, err)
	assert.Equal(t, "TRUE", dry)
}

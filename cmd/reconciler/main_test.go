package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"payment-reconciliation/internal/domain"
	"payment-reconciliation/internal/gateway"
)

// setupWorkspace writes a memory-driver config backed by a snapshot
// holding the given collections and returns the config path.
func setupWorkspace(t *testing.T, collections map[string][]domain.Document) (string, string) {
	t.Helper()
	dir := t.TempDir()
	snapshot := filepath.Join(dir, "snapshot.json")
	raw, err := json.Marshal(collections)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(snapshot, raw, 0o644))

	cfg := filepath.Join(dir, "config.yaml")
	body := "store:\n  driver: memory\n  path: " + snapshot + "\nlogging:\n  level: error\n"
	require.NoError(t, os.WriteFile(cfg, []byte(body), 0o644))
	return cfg, snapshot
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func loadSnapshot(t *testing.T, path string) *gateway.MemoryStore {
	t.Helper()
	store := gateway.NewMemoryStore()
	require.NoError(t, store.LoadSnapshot(path))
	return store
}

func TestMatchCommand(t *testing.T) {
	cfg, snapshot := setupWorkspace(t, map[string][]domain.Document{
		"payments":      {{"_id": "p1", "paymentId": "pi_1"}},
		"registrations": {{"_id": "r1", "stripePaymentIntentId": "pi_1"}},
	})

	out, err := run(t, "-c", cfg, "match", "p1")
	require.NoError(t, err)
	var preview domain.MatchResult
	require.NoError(t, json.Unmarshal([]byte(out), &preview))
	assert.Equal(t, "r1", preview.RegistrationID)
	assert.Equal(t, domain.MethodByPaymentID, preview.Method)

	p1, err := loadSnapshot(t, snapshot).FindOne(context.Background(), "payments", domain.ByID("p1"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatePending, domain.StateOf(p1), "preview writes nothing")

	_, err = run(t, "-c", cfg, "--actor", "alice", "match", "p1", "--confirm")
	require.NoError(t, err)

	p1, err = loadSnapshot(t, snapshot).FindOne(context.Background(), "payments", domain.ByID("p1"))
	require.NoError(t, err)
	assert.Equal(t, domain.StateMatched, domain.StateOf(p1))
	assert.Equal(t, "alice", p1.String(domain.FieldMatchedBy))
}

func TestRematchCommand_YAMLOutput(t *testing.T) {
	cfg, _ := setupWorkspace(t, map[string][]domain.Document{
		"payments": {
			{"_id": "p1", "paymentId": "pi_1"},
			{"_id": "p2", "paymentId": "pi_2"},
		},
		"registrations": {{"_id": "r1", "stripePaymentIntentId": "pi_1"}},
	})

	out, err := run(t, "-c", cfg, "-o", "yaml", "rematch", "--workers", "2")
	require.NoError(t, err)

	var summary domain.RematchSummary
	require.NoError(t, yaml.Unmarshal([]byte(out), &summary))
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 1, summary.Matched)
}

func TestDedupeCommand_WritesWorkbook(t *testing.T) {
	cfg, _ := setupWorkspace(t, map[string][]domain.Document{
		"error_payments":  {{"_id": "q1", "referenceId": "REF-1", "amount": 10}},
		"import_payments": {{"_id": "s1", "referenceId": "REF-1", "amount": 10}},
	})
	xlsx := filepath.Join(t.TempDir(), "report.xlsx")

	out, err := run(t, "-c", cfg, "dedupe", "--dry-run", "--xlsx", xlsx)
	require.NoError(t, err)

	var report domain.DuplicateReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.True(t, report.DryRun)
	require.Len(t, report.Log, 1)
	assert.Equal(t, domain.ActionDryRun, report.Log[0].Action)

	info, err := os.Stat(xlsx)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestWriteWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	require.NoError(t, writeWorkbook(path, domain.DuplicateReport{RunID: "run-1"}))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	runID, err := f.GetCellValue(gateway.SheetSummary, "B1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", runID)

	err = writeWorkbook(filepath.Join(t.TempDir(), "missing", "report.xlsx"), domain.DuplicateReport{})
	assert.Error(t, err)
}

func TestImportCSVCommand(t *testing.T) {
	cfg, snapshot := setupWorkspace(t, map[string][]domain.Document{})
	export := filepath.Join(t.TempDir(), "stripe.csv")
	require.NoError(t, os.WriteFile(export, []byte("id,Amount,PaymentIntent ID\nch_1,10.00,pi_1\nch_2,5.00,pi_2\n"), 0o644))

	out, err := run(t, "-c", cfg, "import-csv", export)
	require.NoError(t, err)
	assert.JSONEq(t, `{"parsed":2,"inserted":2,"skipped":0}`, out)

	out, err = run(t, "-c", cfg, "import-csv", export)
	require.NoError(t, err)
	assert.JSONEq(t, `{"parsed":2,"inserted":0,"skipped":2}`, out)

	n, err := loadSnapshot(t, snapshot).CountDocuments(context.Background(), "payments", domain.Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestCommandErrors(t *testing.T) {
	cfg, _ := setupWorkspace(t, map[string][]domain.Document{
		"payments": {{"_id": "p1"}},
	})

	tests := []struct {
		name string
		args []string
	}{
		{"unknown payment", []string{"-c", cfg, "match", "nope"}},
		{"invalid transition", []string{"-c", cfg, "mark-imported", "p1"}},
		{"unknown output format", []string{"-c", cfg, "-o", "xml", "match", "p1"}},
		{"missing argument", []string{"-c", cfg, "unmatch"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

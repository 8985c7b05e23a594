package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ledgerJSON = `[
	{"date": "2025-01-05", "symbol": "XAUUSD", "profit": 100},
	{"date": "2025-01-20", "symbol": "EURUSD", "profit": -40},
	{"date": "2025-02-03", "symbol": "XAUUSD", "profit": 50},
	{"date": "someday", "symbol": "GOLD", "profit": 10}
]`

const consolidatedJSON = `[
	{"tradeDate": "2025-01-05", "segment": "XAUUSD", "clientName": "Asha Rao", "profit": 30},
	{"tradeDate": "2025-01-06", "segment": "XAUUSD", "clientName": "Vikram Shah", "profit": -10},
	{"tradeDate": "2025-01-07", "segment": "EURUSD", "clientName": "Asha Rao", "profit": 5}
]`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func runCmd(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_Ledger(t *testing.T) {
	path := writeFile(t, "ledger.json", ledgerJSON)

	code, out, errOut := runCmd("--file", path, "--capital", "1000", "--baseline", "2000")
	require.Equal(t, 0, code, errOut)

	assert.Contains(t, out, "TRADE LEDGER ANALYSIS: ledger.json")
	assert.Contains(t, out, "Records:        4 (1 without a usable date)")
	assert.Contains(t, out, "Total P/L:      +120.00")
	assert.Contains(t, out, "Total invested: 1000.00")
	assert.Contains(t, out, "Total ROI:      12.00%")
	assert.Contains(t, out, "│ Jan 2025 │      2 │       +60.00 │    3.00% │")
	assert.Contains(t, out, "│ Feb 2025 │      1 │       +50.00 │    2.50% │")
	assert.Contains(t, out, "Wins: 3 | Losses: 1")
	assert.Contains(t, out, "4 records, subtotal +120.00")
	assert.NotContains(t, out, "PERFORMANCE BY CLIENT")
}

func TestRun_DateRange(t *testing.T) {
	path := writeFile(t, "ledger.json", ledgerJSON)

	code, out, _ := runCmd("--file", path, "--start", "2025-02-01")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "1 records, subtotal +50.00", "undated trades drop out of a bounded range")
	// Metrics still cover the whole ledger
	assert.Contains(t, out, "Total P/L:      +120.00")
}

func TestRun_ConsolidatedClients(t *testing.T) {
	path := writeFile(t, "all.json", consolidatedJSON)

	code, out, _ := runCmd("--file", path, "--source", "consolidated", "--client", "asha")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "PERFORMANCE BY CLIENT")
	assert.Contains(t, out, "│ Asha Rao             │      2 │       2 │       0 │       +35.00 │")
	assert.Contains(t, out, "│ Vikram Shah          │      1 │       0 │       1 │       -10.00 │")
	assert.Contains(t, out, "2 records, subtotal +35.00")
}

func TestRun_Charts(t *testing.T) {
	path := writeFile(t, "ledger.json", ledgerJSON)
	dir := filepath.Join(t.TempDir(), "charts")

	code, out, errOut := runCmd("--file", path, "--charts", dir)
	require.Equal(t, 0, code, errOut)

	for _, name := range []string{"pl.png", "roi.png"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")), name)
		assert.Contains(t, out, "Wrote "+filepath.Join(dir, name))
	}
}

func TestRun_NoDatedTrades(t *testing.T) {
	path := writeFile(t, "undated.json", `[{"date": "n/a", "profit": 5}]`)
	dir := t.TempDir()

	code, out, _ := runCmd("--file", path, "--charts", dir)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "No dated trades")
	assert.Contains(t, out, "Skipped pl.png: no dated trades")
	assert.NoFileExists(t, filepath.Join(dir, "pl.png"))
}

func TestRun_Errors(t *testing.T) {
	ledger := writeFile(t, "ledger.json", ledgerJSON)
	notArray := writeFile(t, "bad.json", `{"date": "2025-01-01"}`)

	tests := []struct {
		name   string
		args   []string
		code   int
		stderr string
	}{
		{"missing file flag", nil, 2, "--file is required"},
		{"unknown flag", []string{"--bogus"}, 2, "flag provided but not defined"},
		{"unknown source", []string{"--file", ledger, "--source", "broker"}, 2, `unknown source "broker"`},
		{"bad start", []string{"--file", ledger, "--start", "01/02/2025"}, 2, "invalid --start"},
		{"bad end", []string{"--file", ledger, "--end", "tomorrow"}, 2, "invalid --end"},
		{"missing ledger", []string{"--file", filepath.Join(t.TempDir(), "none.json")}, 1, "Error reading"},
		{"not an array", []string{"--file", notArray}, 1, "expected a JSON array"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, out, errOut := runCmd(tt.args...)
			assert.Equal(t, tt.code, code)
			assert.Contains(t, errOut, tt.stderr)
			assert.Empty(t, out)
		})
	}
}

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const foundingScenario = `
name: founding
steps:
  - kind: GENESIS_VERDICT_SUBMITTED
    actor: member/ada
    payload:
      why: to endure
      consent: true
  - kind: DAY_CLOSED
    actor: engine/scheduler
    payload:
      date: "2026-03-01"
      active: true
`

func writeScenario(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "founding.yaml")
	require.NoError(t, os.WriteFile(path, []byte(foundingScenario), 0o644))
	return path
}

func TestRunWithoutArgsShowsUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"charter"}, &stdout, &stderr)

	assert.Equal(t, 2, code)
	assert.Contains(t, stderr.String(), "Usage")
}

func TestRunScenarioCommand(t *testing.T) {
	path := writeScenario(t)

	var stdout, stderr bytes.Buffer
	code := Run([]string{"charter", "run", "-scenario", path}, &stdout, &stderr)

	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "accepted=2 rejected=0 crises=0")
}

func TestRunWithSnapshotPrintsDomains(t *testing.T) {
	path := writeScenario(t)

	var stdout, stderr bytes.Buffer
	code := Run([]string{"charter", "run", "-scenario", path, "-snapshot"}, &stdout, &stderr)

	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), `"Probation"`)
}

func TestRunMirrorsAuditRecordsToSink(t *testing.T) {
	path := writeScenario(t)
	sinkPath := filepath.Join(t.TempDir(), "audit.jsonl")
	t.Setenv("CHARTER_AUDIT_SINK", sinkPath)

	var stdout, stderr bytes.Buffer
	code := Run([]string{"charter", "run", "-scenario", path}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	data, err := os.ReadFile(sinkPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind":"Decision"`)
	assert.Contains(t, string(data), "member/ada")
}

func TestExportThenVerify(t *testing.T) {
	path := writeScenario(t)
	bundlePath := filepath.Join(t.TempDir(), "bundle.json")

	var stdout, stderr bytes.Buffer
	code := Run([]string{"charter", "export", "-scenario", path, "-out", bundlePath}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	stdout.Reset()
	stderr.Reset()
	code = Run([]string{"charter", "verify", "-bundle", bundlePath}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "OK: 2 entries")
}

func TestVerifyRejectsTamperedBundle(t *testing.T) {
	path := writeScenario(t)
	bundlePath := filepath.Join(t.TempDir(), "bundle.json")

	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, Run([]string{"charter", "export", "-scenario", path, "-out", bundlePath}, &stdout, &stderr))

	data, err := os.ReadFile(bundlePath)
	require.NoError(t, err)
	tampered := bytes.Replace(data, []byte("to endure"), []byte("to betray"), 1)
	require.NotEqual(t, data, tampered, "fixture must contain the payload text")
	require.NoError(t, os.WriteFile(bundlePath, tampered, 0o644))

	stdout.Reset()
	stderr.Reset()
	code := Run([]string{"charter", "verify", "-bundle", bundlePath}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "FAIL")
}

package proc

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aicers/roxy/internal/resolver"
	"github.com/aicers/roxy/pkg/reconcile"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, dir, name, body string) {
	t.Helper()
	script := "#!/bin/sh\n" + body + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(script), 0o755))
}

func TestRunCapturesOutput(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "status", `echo active; echo warn >&2`)

	r := NewRunner(resolver.NewWithPath([]string{dir}), time.Second)
	out, err := r.Run(context.Background(), "status")
	require.NoError(t, err)
	require.Equal(t, "active\n", out.Stdout)
	require.Equal(t, "warn\n", out.Stderr)
	require.Equal(t, 0, out.ExitCode)
}

func TestRunNonZeroExit(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "failing", `echo broken >&2; exit 3`)

	r := NewRunner(resolver.NewWithPath([]string{dir}), time.Second)
	out, err := r.Run(context.Background(), "failing")
	require.Error(t, err)
	require.Equal(t, reconcile.KindExecutionFailed, reconcile.KindOf(err))
	require.Equal(t, 3, out.ExitCode)
	require.Contains(t, err.Error(), "broken")
}

func TestRunTimeoutKillsProcess(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "hang", `exec /bin/sleep 10`)

	r := NewRunner(resolver.NewWithPath([]string{dir}), 100*time.Millisecond)
	start := time.Now()
	_, err := r.Run(context.Background(), "hang")
	require.Error(t, err)
	require.Equal(t, reconcile.KindTimeout, reconcile.KindOf(err))
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestRunUnresolvedUtility(t *testing.T) {
	r := NewRunner(resolver.NewWithPath([]string{t.TempDir()}), time.Second)
	_, err := r.Run(context.Background(), "netplan")
	require.Equal(t, reconcile.KindUtilityNotFound, reconcile.KindOf(err))
}

func TestRunPinsPathEnv(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "showpath", `echo "$PATH"`)

	r := NewRunner(resolver.NewWithPath([]string{dir}), time.Second)
	out, err := r.Run(context.Background(), "showpath")
	require.NoError(t, err)
	require.Equal(t, dir+"\n", out.Stdout)
}

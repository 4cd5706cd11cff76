package stage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

// fakeCopyScript builds a stand-in for the external copy utility: it
// accepts the real flag set, copies src into the destination directory,
// appends its arguments to args.log, and fails for sources containing
// "fail".
func fakeCopyScript(t *testing.T) (command, argsLog string) {
	t.Helper()
	dir := t.TempDir()
	command = filepath.Join(dir, "fakecp")
	argsLog = filepath.Join(dir, "args.log")
	script := `#!/bin/sh
echo "$@" >> "` + argsLog + `"
src=
dst=
for a in "$@"; do
  case "$a" in
    --*) ;;
    *) if [ -z "$src" ]; then src="$a"; else dst="$a"; fi ;;
  esac
done
case "$src" in
  *fail*) echo "copy failed" >&2; exit 1 ;;
esac
cp "$src" "$dst/"
`
	require.NoError(t, os.WriteFile(command, []byte(script), 0o755))
	return command, argsLog
}

func writeSources(t *testing.T, names ...string) []string {
	t.Helper()
	dir := t.TempDir()
	srcs := make([]string, len(names))
	for i, name := range names {
		srcs[i] = filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(srcs[i], []byte(name), 0o644))
	}
	return srcs
}

func TestStageAll(t *testing.T) {
	command, _ := fakeCopyScript(t)
	srcs := writeSources(t, "a.root", "b.root", "c.root")
	dst := filepath.Join(t.TempDir(), "staged")

	s := New(Config{Command: command, Parallelism: 2}, nil, prometheus.NewRegistry())
	require.NoError(t, s.StageAll(context.Background(), srcs, dst, false))

	entries, err := os.ReadDir(dst)
	require.NoError(t, err)
	require.Len(t, entries, 3)
}

func TestStageAllEmptyBatch(t *testing.T) {
	s := New(Config{Command: "/does/not/exist"}, nil, prometheus.NewRegistry())
	require.NoError(t, s.StageAll(context.Background(), nil, t.TempDir(), false))
}

func TestStageAllOverwriteAddsForce(t *testing.T) {
	command, argsLog := fakeCopyScript(t)
	srcs := writeSources(t, "a.root")
	dst := filepath.Join(t.TempDir(), "staged")

	s := New(Config{Command: command}, nil, prometheus.NewRegistry())
	require.NoError(t, s.StageAll(context.Background(), srcs, dst, true))

	logged, err := os.ReadFile(argsLog)
	require.NoError(t, err)
	require.Contains(t, string(logged), "--force")
}

func TestStageAllPartialFailure(t *testing.T) {
	command, _ := fakeCopyScript(t)
	srcs := writeSources(t, "a.root", "fail.root", "c.root")
	dst := filepath.Join(t.TempDir(), "staged")

	s := New(Config{Command: command, Parallelism: 1}, nil, prometheus.NewRegistry())
	err := s.StageAll(context.Background(), srcs, dst, false)

	var batchErr *BatchError
	require.ErrorAs(t, err, &batchErr)
	require.Equal(t, 1, batchErr.Failed)
	require.Equal(t, 3, batchErr.Total)

	// The batch drains before reporting: the remaining files were still
	// staged even though the batch as a whole failed.
	entries, readErr := os.ReadDir(dst)
	require.NoError(t, readErr)
	require.Len(t, entries, 2)
}

func TestStageAllMissingCommand(t *testing.T) {
	srcs := writeSources(t, "a.root")
	dst := filepath.Join(t.TempDir(), "staged")

	s := New(Config{Command: "/does/not/exist"}, nil, prometheus.NewRegistry())
	err := s.StageAll(context.Background(), srcs, dst, false)

	var batchErr *BatchError
	require.ErrorAs(t, err, &batchErr)
	require.Equal(t, 1, batchErr.Failed)
}

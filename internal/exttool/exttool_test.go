// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package exttool

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunSuccess(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "line_log.txt")

	res, err := Run(context.Background(), logPath, "echo", "hello world")
	require.NoError(t, err)
	require.Equal(t, 0, res.ExitCode)
	require.Contains(t, res.Log, "hello world")

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	require.Contains(t, string(content), "hello world")
}

func TestRunNonZeroExit(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "line_log.txt")

	res, err := Run(context.Background(), logPath, "sh", "-c", "exit 3")
	require.NoError(t, err)
	require.Equal(t, 3, res.ExitCode)
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.bil")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	require.False(t, FileExists(empty))

	nonEmpty := filepath.Join(dir, "nonempty.bil")
	require.NoError(t, os.WriteFile(nonEmpty, []byte("x"), 0o644))
	require.True(t, FileExists(nonEmpty))

	require.False(t, FileExists(filepath.Join(dir, "missing.bil")))
}

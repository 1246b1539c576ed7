// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package progress

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSampleLogExtractsPercentAndMegabytes(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "log.txt")
	content := "line one\nApproximate percent complete: 42\nsome noise\noutput is 12.5 megabytes\n"
	require.NoError(t, os.WriteFile(logPath, []byte(content), 0o644))

	w := &Watcher{LogPath: logPath}
	percent, mb := w.sampleLog()
	require.Equal(t, 42, percent)
	require.InDelta(t, 12.5, mb, 0.001)
}

func TestSampleLogKeepsMostRecentPercent(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "log.txt")
	content := "Approximate percent complete: 10\nApproximate percent complete: 55\n"
	require.NoError(t, os.WriteFile(logPath, []byte(content), 0o644))

	w := &Watcher{LogPath: logPath}
	percent, _ := w.sampleLog()
	require.Equal(t, 55, percent)
}

func TestNormalizeSizePromotesAboveThreshold(t *testing.T) {
	mb, unit := normalizeSize(200)
	require.Equal(t, "MB", unit)
	require.InDelta(t, 200, mb, 0.001)

	gb, unit := normalizeSize(1024)
	require.Equal(t, "GB", unit)
	require.InDelta(t, 1, gb, 0.001)
}

func TestFileSizeMBMissingFile(t *testing.T) {
	_, ok := fileSizeMB(filepath.Join(t.TempDir(), "missing.zip"))
	require.False(t, ok)
}

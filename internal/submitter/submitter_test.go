// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package submitter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTmpfreeGBDefaultsOnMissingFile(t *testing.T) {
	require.Equal(t, 100, tmpfreeGB("/does/not/exist.bil"))
}

func TestTmpfreeGBRoundsUpOneAndHalfTimes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "level1.bil")

	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(2*1024*1024*1024)) // sparse 2 GiB file
	require.NoError(t, f.Close())

	require.Equal(t, 3, tmpfreeGB(path))
}

func TestSplitPair(t *testing.T) {
	x, y := splitPair("2.0 2.0")
	require.Equal(t, "2.0", x)
	require.Equal(t, "2.0", y)

	x, y = splitPair("bogus")
	require.Equal(t, "bogus", x)
	require.Equal(t, "bogus", y)
}

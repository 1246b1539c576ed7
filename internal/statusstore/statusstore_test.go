// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package statusstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// setup connects once per test binary run (Connect is memoized for
// the process), so every test in this package shares one temp-file
// database. Its directory is not tied to one test, so it outlives the
// test that created it.
func setup(t *testing.T) *StatusStore {
	t.Helper()
	dir, err := os.MkdirTemp("", "scops-statusstore-test-")
	require.NoError(t, err)
	s, err := Connect(filepath.Join(dir, "status.db"))
	require.NoError(t, err)
	return s
}

func TestInsertAndGetStage(t *testing.T) {
	s := setup(t)

	require.NoError(t, s.Insert("proj_2024_100_20240101000000", "f123", ""))
	stage, err := s.GetStage("proj_2024_100_20240101000000", "f123")
	require.NoError(t, err)
	require.Equal(t, StageWaiting, stage)
}

func TestUpdateStageSetsErrorFlag(t *testing.T) {
	s := setup(t)

	const pid = "proj_err"
	require.NoError(t, s.Insert(pid, "f1", ""))
	require.NoError(t, s.UpdateStage(pid, "f1", "ERROR - aplmask"))

	rows, err := s.List(pid)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, 1, rows[0].Flag)
	require.Equal(t, "ERROR - aplmask", rows[0].Stage)
}

func TestUpdateProgress(t *testing.T) {
	s := setup(t)

	const pid = "proj_progress"
	require.NoError(t, s.Insert(pid, "f1", ""))
	require.NoError(t, s.UpdateProgress(pid, "f1", 70, 120.5, "MB", 0, "MB"))

	rows, err := s.List(pid)
	require.NoError(t, err)
	require.Equal(t, 70, rows[0].Progress)
	require.InDelta(t, 120.5, rows[0].FileSize, 0.001)
}

func TestClaimZipAggregationOnce(t *testing.T) {
	s := setup(t)

	const pid = "proj_race"
	require.NoError(t, s.EnsureOrder(pid))

	first, err := s.ClaimZipAggregation(pid, "/tmp/x.zip")
	require.NoError(t, err)
	require.True(t, first)

	second, err := s.ClaimZipAggregation(pid, "/tmp/x.zip")
	require.NoError(t, err)
	require.False(t, second)
}

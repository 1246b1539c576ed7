// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package pipeline

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nerc-arf/scops/internal/statusstore"
	"github.com/nerc-arf/scops/internal/workspace"
)

// setup connects the process-wide memoized store. Its database lives in
// a directory that is not tied to one test, since every later test
// reuses the connection the first one opened.
func setup(t *testing.T) *statusstore.StatusStore {
	t.Helper()
	dir, err := os.MkdirTemp("", "scops-pipeline-test-")
	require.NoError(t, err)
	s, err := statusstore.Connect(filepath.Join(dir, "status.db"))
	require.NoError(t, err)
	return s
}

// buildInput prepares a workspace whose geocorrect/reproject/map
// outputs already exist in the scratch dir the Driver will choose, so
// Run never shells out to the four external hyperspectral binaries.
func buildInput(t *testing.T, displayName string, lastProcess bool) (Input, workspace.Layout) {
	t.Helper()
	root := t.TempDir()
	layout, err := workspace.Build(filepath.Join(root, "ws"))
	require.NoError(t, err)

	tmpRoot := filepath.Join(root, "tmp")
	require.NoError(t, os.MkdirAll(tmpRoot, 0o755))

	in := Input{
		ProcessingID:    "proj_2024_100_ord1",
		Project:         "proj",
		Year:            "2024",
		Jday:            "100",
		LineName:        displayName,
		DisplayName:     displayName,
		Workspace:       layout,
		Level1Path:      filepath.Join(root, displayName+".bil"),
		SkipMasking:     true,
		ProjectionField: "UTM zone 30N",
		PixelX:          "2.0",
		PixelY:          "2.0",
		DataType:        "bsq",
		Tmp:             true,
		LastProcess:     lastProcess,
		TmpRoot:         tmpRoot,
	}
	return in, layout
}

func TestRunCompletesSingleLineWithoutLastProcess(t *testing.T) {
	store := setup(t)
	in, layout := buildInput(t, "f240100a01", false)
	in.Tmp = false // process directly into layout.Root's subdirectories, so paths are known up front

	record := NewRecord(layout.Root, layout.Root, in.DisplayName, "utm_wgs84N_30", false)
	require.NoError(t, os.MkdirAll(filepath.Dir(record.IGM.scratch), 0o755))
	writeNonEmpty(t, record.IGM.scratch)
	writeNonEmpty(t, record.IGMTransformed.scratch)
	writeNonEmpty(t, record.MappedBil.scratch)
	writeNonEmpty(t, record.MappedHdr.scratch)

	driver := &Driver{Store: store}
	require.NoError(t, driver.Run(context.Background(), in))

	stage, err := store.GetStage(in.ProcessingID, in.DisplayName)
	require.NoError(t, err)
	require.Equal(t, StageComplete, stage)

	// Writeback (deferred) has already moved the per-line zip to its
	// final resting place under layout.Mapped by the time Run returns,
	// and the un-zipped mapped raster was removed when it was zipped.
	require.FileExists(t, record.Zip.final)
	require.NoFileExists(t, record.MappedBil.scratch)
}

func TestRunBuildsMasterZipOnLastProcess(t *testing.T) {
	store := setup(t)
	in, layout := buildInput(t, "f240100a02", true)
	in.Tmp = false

	record := NewRecord(layout.Root, layout.Root, in.DisplayName, "utm_wgs84N_30", false)
	require.NoError(t, os.MkdirAll(filepath.Dir(record.IGM.scratch), 0o755))
	writeNonEmpty(t, record.IGM.scratch)
	writeNonEmpty(t, record.IGMTransformed.scratch)
	writeNonEmpty(t, record.MappedBil.scratch)
	writeNonEmpty(t, record.MappedHdr.scratch)

	driver := &Driver{Store: store}
	require.NoError(t, driver.Run(context.Background(), in))

	// Writeback for the last invocation runs before the master-zip scan,
	// so this line's own per-line zip must be present in the final
	// mapped directory already.
	masterPath := filepath.Join(layout.Mapped, "proj_2024100.zip")
	require.FileExists(t, masterPath)

	zr, err := zip.OpenReader(masterPath)
	require.NoError(t, err)
	defer zr.Close()
	require.Len(t, zr.File, 1)
	require.Equal(t, "proj_2024100/"+filepath.Base(record.Zip.final), zr.File[0].Name)
}

// TestRunResumeSkipsCompletedStages exercises the resume property end
// to end: a line already recorded past geocorrect/reproject/map is
// resubmitted with Resume set, and Run must reach StageComplete
// without invoking any of the four external stage binaries, which
// aren't present in this environment and would fail the test if
// actually shelled out to.
func TestRunResumeSkipsCompletedStages(t *testing.T) {
	store := setup(t)
	in, _ := buildInput(t, "f240100a03", false)
	in.Tmp = false
	in.Resume = true

	require.NoError(t, store.Insert(in.ProcessingID, in.DisplayName, ""))
	require.NoError(t, store.UpdateStage(in.ProcessingID, in.DisplayName, StageWaitingZip))

	driver := &Driver{Store: store}
	require.NoError(t, driver.Run(context.Background(), in))

	stage, err := store.GetStage(in.ProcessingID, in.DisplayName)
	require.NoError(t, err)
	require.Equal(t, StageComplete, stage)
}

func TestShouldSkipWhenOutputAlreadyExists(t *testing.T) {
	require.True(t, shouldSkip(false, "", StageMask, true))
}

func TestShouldSkipOnResumePastStage(t *testing.T) {
	require.True(t, shouldSkip(true, StageMap, StageGeocorrect, false))
	require.False(t, shouldSkip(true, StageGeocorrect, StageMap, false))
}

func TestShouldSkipWithoutResumeAndNoOutput(t *testing.T) {
	require.False(t, shouldSkip(false, "", StageMask, false))
}

func TestTrimBilSuffix(t *testing.T) {
	require.Equal(t, "flight", trimBilSuffix("flight.bil"))
	require.Equal(t, "flight.igm", trimBilSuffix("flight.igm"))
}

func writeNonEmpty(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

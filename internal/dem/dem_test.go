// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package dem

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nerc-arf/scops/internal/orderfile"
	"github.com/nerc-arf/scops/internal/workspace"
)

func TestEnsureReturnsAlreadyUploadedSource(t *testing.T) {
	root := t.TempDir()
	layout, err := workspace.Build(filepath.Join(root, "ws"))
	require.NoError(t, err)

	demFile := filepath.Join(root, "supplied.dem.bil")
	require.NoError(t, os.WriteFile(demFile, []byte("x"), 0o644))

	order := orderfile.New()
	order.SetDefault("dem", demFile)
	order.SetDefault("project_code", "ABC")
	order.SetDefault("year", "2024")
	order.SetDefault("julianday", "100")
	order.SetDefault("projection", "UTM zone 30N")

	path, err := Ensure(context.Background(), layout, order)
	require.NoError(t, err)
	require.Equal(t, demFile, path)
}

func TestEnsureReturnsExistingNamedDEM(t *testing.T) {
	root := t.TempDir()
	layout, err := workspace.Build(filepath.Join(root, "ws"))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(layout.DEM, "already.dem.bil"), []byte("x"), 0o644))

	order := orderfile.New()
	order.SetDefault("dem_name", "already.dem.bil")

	path, err := Ensure(context.Background(), layout, order)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(layout.DEM, "already.dem.bil"), path)
}

// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package spectralangle

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nerc-arf/scops/internal/plugin"
	"github.com/nerc-arf/scops/internal/raster"
)

func TestRunClassifiesExactMatch(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "f123_lev1.bil")
	hdr := bin + ".hdr"

	h := raster.Header{Samples: 1, Lines: 2, Bands: 2}
	// pixel 0 matches reference 0 exactly, pixel 1 matches reference 1.
	band0 := []float32{1, 0}
	band1 := []float32{0, 1}
	require.NoError(t, raster.WriteBands(bin, hdr, h, [][]float32{band0, band1}))

	References = [][]float32{{1, 0}, {0, 1}}
	defer func() { References = nil }()

	outPath, err := Run(dir, bin)
	require.NoError(t, err)

	outHdr, err := raster.ReadHeader(outPath + ".hdr")
	require.NoError(t, err)
	classes, err := raster.ReadBand(outPath, outHdr, 0)
	require.NoError(t, err)

	require.Equal(t, float32(1), classes[0])
	require.Equal(t, float32(2), classes[1])
}

func TestRegisteredUnderPluginName(t *testing.T) {
	fn, ok := plugin.Lookup("spectralangle")
	require.True(t, ok)
	require.NotNil(t, fn)
}

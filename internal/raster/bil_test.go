// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package raster

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteAndReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "test.bil")
	hdr := filepath.Join(dir, "test.bil.hdr")

	h := Header{Samples: 2, Lines: 2, Bands: 2}
	band0 := []float32{1, 2, 3, 4}
	band1 := []float32{5, 6, 7, 8}

	require.NoError(t, WriteBands(bin, hdr, h, [][]float32{band0, band1}))

	gotHdr, err := ReadHeader(hdr)
	require.NoError(t, err)
	require.Equal(t, h, gotHdr)

	gotBand0, err := ReadBand(bin, gotHdr, 0)
	require.NoError(t, err)
	require.Equal(t, band0, gotBand0)

	gotBand1, err := ReadBand(bin, gotHdr, 1)
	require.NoError(t, err)
	require.Equal(t, band1, gotBand1)
}

func TestReadBandOutOfRange(t *testing.T) {
	_, err := ReadBand("unused", Header{Samples: 1, Lines: 1, Bands: 1}, 5)
	require.Error(t, err)
}

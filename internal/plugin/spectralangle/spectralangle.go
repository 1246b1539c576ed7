// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package spectralangle registers the "spectralangle" plugin: a
// per-pixel spectral angle mapper against one or more reference
// spectra, producing a single-band classification raster. Grounded on
// original_source/plugins/spectral_angle.py's calculate_spectral_angle
// and create_classification_mask, reworked over internal/raster
// instead of GDAL/numpy.
package spectralangle

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/nerc-arf/scops/internal/plugin"
	"github.com/nerc-arf/scops/internal/raster"
)

// NoData is the sentinel for "no class was closer than all others",
// clamped to fit a float32 classification band.
const NoData = 65535

func init() {
	plugin.Register("spectralangle", Run)
}

// References is the set of reference spectra a deployment wants
// classified against. Populated by an operator at process start (no
// config-file format is specified for this; it is a compiled-in
// registry entry, matching the "no dynamic code loading" design
// note). With a nil or empty slice Run returns an error.
var References [][]float32

// Run implements the plugin.RunFunc contract: classify every pixel of
// hsiFilename against References by cosine spectral angle and write
// the winning class index (1-based) as a single-band float32 raster
// under outputFolder.
func Run(outputFolder, hsiFilename string) (string, error) {
	if len(References) == 0 {
		return "", fmt.Errorf("spectralangle: no reference spectra configured")
	}

	hdrPath := hsiFilename + ".hdr"
	header, err := raster.ReadHeader(hdrPath)
	if err != nil {
		return "", fmt.Errorf("spectralangle: %w", err)
	}
	if header.Bands != len(References[0]) {
		return "", fmt.Errorf("spectralangle: reference spectra have %d bands, raster has %d", len(References[0]), header.Bands)
	}

	n := header.Samples * header.Lines
	bandPlanes := make([][]float32, header.Bands)
	for b := 0; b < header.Bands; b++ {
		plane, err := raster.ReadBand(hsiFilename, header, b)
		if err != nil {
			return "", fmt.Errorf("spectralangle: reading band %d: %w", b, err)
		}
		bandPlanes[b] = plane
	}

	classification := make([]float32, n)
	for pixel := 0; pixel < n; pixel++ {
		bestAngle := math.Inf(1)
		bestClass := NoData

		var hsiMag float64
		for b := 0; b < header.Bands; b++ {
			v := float64(bandPlanes[b][pixel])
			hsiMag += v * v
		}
		hsiMag = math.Sqrt(hsiMag)

		for classIdx, spectra := range References {
			var dot, specMag float64
			for b := 0; b < header.Bands; b++ {
				v := float64(bandPlanes[b][pixel])
				s := float64(spectra[b])
				dot += v * s
				specMag += s * s
			}
			specMag = math.Sqrt(specMag)

			denom := hsiMag * specMag
			cosAngle := 0.0
			if denom != 0 {
				cosAngle = dot / denom
			}
			angle := math.Acos(clamp(cosAngle, -1, 1))

			if angle < bestAngle {
				bestAngle = angle
				bestClass = classIdx + 1
			}
		}

		classification[pixel] = float32(bestClass)
	}

	base := strings.TrimSuffix(filepath.Base(hsiFilename), ".bil")
	outBin := filepath.Join(outputFolder, base+"_spectralangle.bil")
	outHdr := outBin + ".hdr"

	outHeader := raster.Header{Samples: header.Samples, Lines: header.Lines, Bands: 1}
	if err := raster.WriteBands(outBin, outHdr, outHeader, [][]float32{classification}); err != nil {
		return "", fmt.Errorf("spectralangle: %w", err)
	}

	return outBin, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

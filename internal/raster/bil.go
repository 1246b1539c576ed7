// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package raster reads and writes ENVI band-interleaved-by-line (BIL)
// rasters: a flat binary file of float32 samples plus a small text
// ".hdr" sidecar describing dimensions. Deliberately tiny -- only what
// the band-math preprocessor needs (see DESIGN.md for why this is
// hand-rolled rather than a third-party dependency).
package raster

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// Header is the subset of ENVI header fields this package cares
// about: enough to locate band-major float32 planes in the BIL file.
type Header struct {
	Samples int
	Lines   int
	Bands   int
}

// Raster is a BIL image held fully in memory: Bands[b] is a flat
// row-major Samples*Lines array of float32 values for band b.
type Raster struct {
	Header
	Bands [][]float32
}

// ReadHeader parses an ENVI .hdr sidecar.
func ReadHeader(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, fmt.Errorf("raster: open header %s: %w", path, err)
	}
	defer f.Close()

	var h Header
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		val = strings.TrimSpace(val)

		switch key {
		case "samples":
			h.Samples, _ = strconv.Atoi(val)
		case "lines":
			h.Lines, _ = strconv.Atoi(val)
		case "bands":
			h.Bands, _ = strconv.Atoi(val)
		}
	}
	if err := scanner.Err(); err != nil {
		return Header{}, fmt.Errorf("raster: reading header %s: %w", path, err)
	}
	if h.Samples == 0 || h.Lines == 0 || h.Bands == 0 {
		return Header{}, fmt.Errorf("raster: incomplete header %s", path)
	}
	return h, nil
}

// WriteHeader writes a minimal ENVI header sufficient for this
// package (and aplmap/aplmask downstream) to read back.
func WriteHeader(path string, h Header) error {
	content := fmt.Sprintf(
		"ENVI\ndescription = {SCOPS band-math output}\nsamples = %d\nlines = %d\nbands = %d\nheader offset = 0\nfile type = ENVI Standard\ndata type = 4\ninterleave = bil\nbyte order = 0\n",
		h.Samples, h.Lines, h.Bands)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("raster: write header %s: %w", path, err)
	}
	return nil
}

// ReadBand reads band index (0-based) of the BIL file at binPath as a
// flat Samples*Lines float32 slice, given the file's header.
func ReadBand(binPath string, h Header, band int) ([]float32, error) {
	if band < 0 || band >= h.Bands {
		return nil, fmt.Errorf("raster: band %d out of range [0,%d)", band, h.Bands)
	}

	f, err := os.Open(binPath)
	if err != nil {
		return nil, fmt.Errorf("raster: open %s: %w", binPath, err)
	}
	defer f.Close()

	rowBytes := int64(h.Samples) * int64(h.Bands) * 4
	out := make([]float32, h.Samples*h.Lines)
	rowBuf := make([]byte, h.Samples*4)

	for line := 0; line < h.Lines; line++ {
		offset := int64(line)*rowBytes + int64(band)*int64(h.Samples)*4
		if _, err := f.ReadAt(rowBuf, offset); err != nil {
			return nil, fmt.Errorf("raster: reading %s line %d: %w", binPath, line, err)
		}
		for s := 0; s < h.Samples; s++ {
			bits := binary.LittleEndian.Uint32(rowBuf[s*4 : s*4+4])
			out[line*h.Samples+s] = math.Float32frombits(bits)
		}
	}

	return out, nil
}

// WriteBands writes a multi-band BIL file (and matching .hdr) from
// flat Samples*Lines float32 band planes.
func WriteBands(binPath, hdrPath string, h Header, bands [][]float32) error {
	if len(bands) != h.Bands {
		return fmt.Errorf("raster: expected %d bands, got %d", h.Bands, len(bands))
	}

	f, err := os.Create(binPath)
	if err != nil {
		return fmt.Errorf("raster: create %s: %w", binPath, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	rowBuf := make([]byte, h.Samples*4)

	for line := 0; line < h.Lines; line++ {
		for b := 0; b < h.Bands; b++ {
			plane := bands[b]
			for s := 0; s < h.Samples; s++ {
				binary.LittleEndian.PutUint32(rowBuf[s*4:s*4+4], math.Float32bits(plane[line*h.Samples+s]))
			}
			if _, err := w.Write(rowBuf); err != nil {
				return fmt.Errorf("raster: writing %s: %w", binPath, err)
			}
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("raster: flushing %s: %w", binPath, err)
	}

	return WriteHeader(hdrPath, h)
}

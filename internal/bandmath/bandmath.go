// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package bandmath evaluates the free-form arithmetic equations that
// an order's eq_<name> keys attach to a line, using
// github.com/expr-lang/expr over named bandNNN identifiers.
package bandmath

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/nerc-arf/scops/internal/raster"
)

var bandToken = regexp.MustCompile(`\bband(\d+)\b`)

// ExtractBands returns the distinct band indices (1-based, as they
// appear in the equation text) referenced by equation, sorted
// ascending.
func ExtractBands(equation string) []int {
	matches := bandToken.FindAllStringSubmatch(equation, -1)
	seen := map[int]struct{}{}
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		seen[n] = struct{}{}
	}
	bands := make([]int, 0, len(seen))
	for b := range seen {
		bands = append(bands, b)
	}
	sort.Ints(bands)
	return bands
}

// Result is the product of evaluating one equation against a source
// raster.
type Result struct {
	OutputPath string
	HeaderPath string
	Layers     int
}

// compile turns the equation text into an expr-lang program over
// bandNNN float64 variables.
func compile(equation string, bands []int) (*vm.Program, error) {
	env := map[string]interface{}{}
	for _, b := range bands {
		env[fmt.Sprintf("band%03d", b)] = float64(0)
	}
	// Equations may also spell band numbers without zero-padding
	// (band1, band050); register both spellings found verbatim in the
	// text so expr's identifier resolution never misses.
	for _, m := range bandToken.FindAllStringSubmatch(equation, -1) {
		env["band"+m[1]] = float64(0)
	}

	program, err := expr.Compile(equation, expr.Env(env), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("bandmath: compiling %q: %w", equation, err)
	}
	return program, nil
}

// Evaluate runs equation elementwise over the bands it references in
// binPath (using hdrPath for dimensions), producing a single-band
// float32 result raster named <basename>_<eqName>.bil under
// outputDir. If maskBinPath is given, the referenced bands' masks are
// summed into a single-band companion _mask.bil file.
func Evaluate(binPath, hdrPath, outputDir, equation, eqName string, maskBinPath string) (Result, error) {
	header, err := raster.ReadHeader(hdrPath)
	if err != nil {
		return Result{}, err
	}

	bands := ExtractBands(equation)
	if len(bands) == 0 {
		return Result{}, fmt.Errorf("bandmath: equation %q references no bandNNN identifiers", equation)
	}

	program, err := compile(equation, bands)
	if err != nil {
		return Result{}, err
	}

	planes := make(map[int][]float32, len(bands))
	for _, b := range bands {
		plane, err := raster.ReadBand(binPath, header, b-1)
		if err != nil {
			return Result{}, fmt.Errorf("bandmath: reading band %d: %w", b, err)
		}
		planes[b] = plane
	}

	n := header.Samples * header.Lines
	out := make([]float32, n)

	env := map[string]interface{}{}
	for i := 0; i < n; i++ {
		for _, b := range bands {
			v := float64(planes[b][i])
			env[fmt.Sprintf("band%03d", b)] = v
			env[fmt.Sprintf("band%d", b)] = v
		}
		raw, err := expr.Run(program, env)
		if err != nil {
			return Result{}, fmt.Errorf("bandmath: evaluating pixel %d: %w", i, err)
		}
		f, ok := toFloat64(raw)
		if !ok {
			return Result{}, fmt.Errorf("bandmath: equation did not produce a number, got %T", raw)
		}
		out[i] = float32(f)
	}

	base := strings.TrimSuffix(filepath.Base(binPath), ".bil")
	outBin := filepath.Join(outputDir, fmt.Sprintf("%s_%s.bil", base, eqName))
	outHdr := outBin + ".hdr"

	outHeader := raster.Header{Samples: header.Samples, Lines: header.Lines, Bands: 1}
	if err := raster.WriteBands(outBin, outHdr, outHeader, [][]float32{out}); err != nil {
		return Result{}, err
	}

	result := Result{OutputPath: outBin, HeaderPath: outHdr, Layers: 1}

	if maskBinPath != "" {
		maskOut := strings.TrimSuffix(outBin, ".bil") + "_mask.bil"
		if err := combineMasks(maskBinPath, maskBinPath+".hdr", maskOut, bands); err != nil {
			return Result{}, err
		}
	}

	return result, nil
}

// combineMasks sums the per-referenced-band mask planes into a single
// output band, matching bandmath_mask_gen's layers==1 case -- the
// only case the pipeline ever exercises, since equation results here
// are always single-band.
func combineMasks(maskBinPath, maskHdrPath, outPath string, bands []int) error {
	header, err := raster.ReadHeader(maskHdrPath)
	if err != nil {
		return err
	}

	n := header.Samples * header.Lines
	combined := make([]float32, n)
	for _, b := range bands {
		plane, err := raster.ReadBand(maskBinPath, header, b-1)
		if err != nil {
			return fmt.Errorf("bandmath: reading mask band %d: %w", b, err)
		}
		for i := range combined {
			combined[i] += plane[i]
		}
	}

	outHeader := raster.Header{Samples: header.Samples, Lines: header.Lines, Bands: 1}
	return raster.WriteBands(outPath, outPath+".hdr", outHeader, [][]float32{combined})
}

func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

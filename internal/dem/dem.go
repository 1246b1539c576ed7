// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package dem resolves the digital elevation model an order processes
// against: either an already-uploaded path, or one derived from a
// declared source tag and the flight's navigation files via the
// external apldem generator.
package dem

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/nerc-arf/scops/internal/exttool"
	"github.com/nerc-arf/scops/internal/orderfile"
	"github.com/nerc-arf/scops/internal/workspace"
)

// ErrInsufficientCoverage is returned when the declared DEM source
// does not cover the flight; this is a recoverable error the caller
// may retry with a different source.
var ErrInsufficientCoverage = errors.New("dem: insufficient coverage")

// IsInsufficientCoverage reports whether err wraps
// ErrInsufficientCoverage.
func IsInsufficientCoverage(err error) bool {
	return errors.Is(err, ErrInsufficientCoverage)
}

// Ensure returns the DEM path this order should process against. If
// the order already names an uploaded file (dem_name or an absolute
// "dem" path that exists), that path is used unchanged. Otherwise a
// DEM is derived via the external "apldem" generator, named from
// project/year/jday/projection, and written under the workspace's dem
// subdirectory.
func Ensure(ctx context.Context, layout workspace.Layout, order *orderfile.Order) (string, error) {
	if name, ok := order.GetDefault("dem_name"); ok && name != "" {
		existing := filepath.Join(layout.DEM, name)
		if exttool.FileExists(existing) {
			return existing, nil
		}
	}

	source, _ := order.GetDefault("dem")
	if exttool.FileExists(source) {
		return source, nil
	}

	project, _ := order.GetDefault("project_code")
	year, _ := order.GetDefault("year")
	jday, _ := order.GetDefault("julianday")
	projection, _ := order.GetDefault("projection")

	outName := fmt.Sprintf("%s_%s%s_%s.dem.bil", project, year, jday, projection)
	outPath := filepath.Join(layout.DEM, outName)

	bounds, _ := order.GetDefault("bounds")
	logPath := filepath.Join(layout.Logs, "dem_generation_log.txt")

	result, err := exttool.Run(ctx, logPath, "apldem", "-source", source, "-bounds", bounds, "-output", outPath)
	if err != nil {
		return "", fmt.Errorf("dem: generating for %s: %w", project, err)
	}
	if result.ExitCode == 2 {
		return "", fmt.Errorf("%w: source %q does not cover bounds %q", ErrInsufficientCoverage, source, bounds)
	}
	if !exttool.FileExists(outPath) {
		return "", fmt.Errorf("dem: apldem exited %d without producing %s", result.ExitCode, outPath)
	}

	return outPath, nil
}

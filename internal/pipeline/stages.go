// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package pipeline

import (
	"fmt"
	"os"
	"strings"

	"github.com/nerc-arf/scops/internal/masking"
)

// maskArgs builds the aplmask argument vector for a masking policy.
// It returns (nil, false) when the policy is "none": the caller
// should skip invoking aplmask entirely and treat the input level-1
// file as already masked.
func maskArgs(policyString, inputLevel1, maskFile, outputFile, badPixelMaskFile string) ([]string, bool) {
	policy := masking.Resolve(policyString)

	if policy.None {
		return nil, false
	}

	args := []string{"-lev1", inputLevel1}

	if !policy.All {
		args = append(args, "-flags")
		args = append(args, policy.Flags...)
		if len(policy.CCD) > 0 {
			if fileExists(badPixelMaskFile) {
				args = append(args, "-onlymaskmethods", badPixelMaskFile)
				args = append(args, policy.CCD...)
			}
		}
	}

	args = append(args, "-mask", maskFile, "-output", outputFile)
	return args, true
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// geocorrectArgs builds the aplcorr argument vector.
func geocorrectArgs(lev1, navFile, viewVectorFile, demFile, igmOut string) []string {
	return []string{
		"-lev1file", lev1,
		"-navfile", navFile,
		"-vvfile", viewVectorFile,
		"-dem", demFile,
		"-igmfile", igmOut,
	}
}

// reprojectArgs builds the apltran argument vector.
func reprojectArgs(igmIn, igmOut string, proj Projection) []string {
	args := []string{"-inproj", "latlong", "WGS84", "-igm", igmIn, "-output", igmOut, "-outproj"}
	args = append(args, proj.OutprojArgs...)
	return args
}

// mapArgs builds the aplmap argument vector. bandList is the free
// text from the order's band_range field, or "ALL".
func mapArgs(igm, lev1, pixelX, pixelY, bandList, interpolation, mapName, dataType string, ignoreFreeSpace bool) []string {
	args := []string{
		"-igm", igm,
		"-lev1", lev1,
		"-pixelsize", pixelX, pixelY,
		"-bandlist", bandList,
		"-interpolation", interpolation,
		"-mapname", mapName,
		"-buffersize", "4096",
		"-outputlevel", "verbose",
		"-outputdatatype", dataType,
	}
	if ignoreFreeSpace {
		args = append(args, "-ignorediskspace")
	}
	return args
}

// ErrorStage formats a stage failure status string, e.g.
// "ERROR - aplmask".
func ErrorStage(stage string) string {
	return fmt.Sprintf("ERROR - %s", stage)
}

// IsErrorStage reports whether a stage string represents a terminal
// "ERROR - <stage>" absorbing state.
func IsErrorStage(stage string) bool {
	return strings.Contains(stage, "ERROR")
}

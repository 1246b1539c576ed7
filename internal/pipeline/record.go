// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nerc-arf/scops/pkg/log"
)

// artifact pairs a scratch-produced file with its final resting
// place, one entry per produced file in a line's processing record.
type artifact struct {
	scratch string
	final   string
}

// Record is the per-invocation line processing record: scratch dir,
// final dir, display name, projection token, and the table of
// produced artifacts. Writeback (see Writeback) moves every artifact
// present in scratch to its final destination and, when IsTmp is set,
// removes the scratch dir.
type Record struct {
	ScratchDir  string
	OutputDir   string
	DisplayName string
	Projection  string
	IsTmp       bool

	MaskedBil       artifact
	MaskedHdr       artifact
	IGM             artifact
	IGMHdr          artifact
	IGMTransformed  artifact
	MappedBil       artifact
	MappedHdr       artifact
	Zip             artifact
}

// NewRecord builds the processing record paths for one line
// invocation, mirroring line_proc_details.__init__.
func NewRecord(processingDir, outputLocation, displayName, projectionToken string, isTmp bool) Record {
	projSuffix := strings.ReplaceAll(projectionToken, " ", "_")

	mask := filepath.Join(processingDir, displayName+"_masked.bil")
	maskHdr := mask + ".hdr"
	igm := filepath.Join(processingDir, displayName+".igm")
	igmHdr := igm + ".hdr"
	igmTransformed := strings.TrimSuffix(igm, ".igm") + "_" + projSuffix + ".igm"
	mapped := filepath.Join(processingDir, displayName+"3b_mapped.bil")
	mappedHdr := mapped + ".hdr"
	zipPath := mapped + ".zip"

	finalMask := filepath.Join(outputLocation, "level1b", displayName+"_masked.bil")
	finalMaskHdr := finalMask + ".hdr"
	finalIgm := filepath.Join(outputLocation, "igm", displayName+".igm")
	finalIgmHdr := finalIgm + ".hdr"
	finalIgmTransformed := strings.TrimSuffix(finalIgm, ".igm") + "_" + projSuffix + ".igm"
	finalMapped := filepath.Join(outputLocation, "mapped", displayName+"3b_mapped.bil")
	finalMappedHdr := finalMapped + ".hdr"
	finalZip := finalMapped + ".zip"

	return Record{
		ScratchDir:  processingDir,
		OutputDir:   outputLocation,
		DisplayName: displayName,
		Projection:  projectionToken,
		IsTmp:       isTmp,

		MaskedBil:      artifact{mask, finalMask},
		MaskedHdr:      artifact{maskHdr, finalMaskHdr},
		IGM:            artifact{igm, finalIgm},
		IGMHdr:         artifact{igmHdr, finalIgmHdr},
		IGMTransformed: artifact{igmTransformed, finalIgmTransformed},
		MappedBil:      artifact{mapped, finalMapped},
		MappedHdr:      artifact{mappedHdr, finalMappedHdr},
		Zip:            artifact{zipPath, finalZip},
	}
}

func (r Record) artifacts() []artifact {
	return []artifact{r.MaskedBil, r.MaskedHdr, r.IGM, r.IGMHdr, r.IGMTransformed, r.MappedBil, r.MappedHdr, r.Zip}
}

// Writeback moves every artifact present in the scratch dir to its
// final destination, then removes the scratch dir if this record was
// processing to a temporary location. Called on every exit path,
// success or failure.
func (r Record) Writeback() {
	log.Infof("pipeline: writeback for %s into %s", r.DisplayName, r.OutputDir)

	for _, a := range r.artifacts() {
		info, err := os.Stat(a.scratch)
		if err != nil || info.IsDir() {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(a.final), 0o755); err != nil {
			log.Warnf("pipeline: writeback mkdir %s: %v", filepath.Dir(a.final), err)
			continue
		}
		if err := os.Rename(a.scratch, a.final); err != nil {
			log.Warnf("pipeline: writeback move %s -> %s: %v", a.scratch, a.final, err)
		}
	}

	if r.IsTmp {
		if err := os.RemoveAll(r.ScratchDir); err != nil {
			log.Warnf("pipeline: writeback removing scratch dir %s: %v", r.ScratchDir, err)
		}
	}
}

// finalArtifactOK reports whether a named final artifact either
// exists or was never produced, erroring if the artifact is still in
// scratch. Nothing in the package calls it; it is not part of the
// operational path.
func finalArtifactOK(a artifact) (bool, error) {
	_, scratchErr := os.Stat(a.scratch)
	_, finalErr := os.Stat(a.final)
	if scratchErr == nil {
		return false, fmt.Errorf("artifact still present in scratch: %s", a.scratch)
	}
	return finalErr == nil || os.IsNotExist(finalErr), nil
}

// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package pipeline is the per-line processing engine: it drives the
// four external hyperspectral stages plus the in-process zip stage
// for one flightline, with scratch-directory processing, stage skip
// on resume, the cross-line zip barrier, and (on the last invocation
// for a line) the aggregate master-zip step.
package pipeline

import (
	"archive/zip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nerc-arf/scops/internal/delivery"
	"github.com/nerc-arf/scops/internal/exttool"
	"github.com/nerc-arf/scops/internal/metrics"
	"github.com/nerc-arf/scops/internal/notify"
	"github.com/nerc-arf/scops/internal/statusstore"
	"github.com/nerc-arf/scops/internal/workspace"
	"github.com/nerc-arf/scops/pkg/log"
)

// Stage names, the canonical list a flightline's status progresses
// through.
const (
	StageMask       = "aplmask"
	StageGeocorrect = "aplcorr"
	StageReproject  = "apltran"
	StageMap        = "aplmap"
	StageWaitingZip = "waiting to zip"
	StageZipping    = "zipping"
	StageComplete   = "complete"
)

// Input is everything the Driver needs to process one pipeline
// invocation.
type Input struct {
	ProcessingID string
	Project      string
	Year         string
	Jday         string

	LineName    string // base line name, first letter identifies sensor
	DisplayName string // differs from LineName for equation/plugin runs

	BandList             string
	Workspace            workspace.Layout
	Level1Path           string
	InputLevel1Override  string

	MaskFile         string
	BadPixelMaskFile string
	SkipMasking      bool

	ProjectionField    string
	OSNGSeparationFile string

	MaskingPolicy   string
	PixelX          string
	PixelY          string
	Interpolation   string
	DataType        string
	IgnoreFreeSpace bool

	NavFile        string
	ViewVectorFile string
	DEMFile        string

	Tmp         bool
	Resume      bool
	LastProcess bool

	TmpRoot string

	// NotifyEmail is the order's contact address, used only on the
	// LastProcess invocation to send the completion e-mail once the
	// master zip is built.
	NotifyEmail string
}

// ProgressWatcher is the interface a background progress sampler must
// satisfy to be driven by a Driver. Declared here rather than taking a
// concrete dependency because the concrete watcher lives in a package
// that already imports pipeline for its stage names.
type ProgressWatcher interface {
	Run(ctx context.Context)
}

// Driver executes the pipeline for one Input. Mailer, Delivery and
// NewProgressWatcher are all optional: a nil Mailer skips the
// completion and stage-error e-mails, a nil Delivery leaves the master
// zip in place under the workspace, and a nil NewProgressWatcher runs
// without a live progress sampler.
type Driver struct {
	Store    *statusstore.StatusStore
	Mailer   *notify.Mailer
	Delivery delivery.Backend

	// NewProgressWatcher builds the watcher for one invocation, given
	// the log path Run writes to and the scratch zip path it will
	// eventually produce.
	NewProgressWatcher func(in Input, logPath, zipPath string) ProgressWatcher
}

// Run executes all stages for in, writing back scratch artifacts on
// every exit path. A non-nil error means the line ended in an ERROR
// state; the caller (submitter or cluster job wrapper) should treat
// that as "this line failed, continue with the rest of the order".
func (d *Driver) Run(ctx context.Context, in Input) error {
	logPath := filepath.Join(in.Workspace.Logs, in.DisplayName+"_log.txt")
	if !in.Resume {
		os.WriteFile(logPath, nil, 0o644)
	}
	statusDir := in.Workspace.Status

	if err := d.Store.Insert(in.ProcessingID, in.DisplayName, ""); err != nil {
		log.Debugf("pipeline: insert %s/%s: %v (likely already exists)", in.ProcessingID, in.DisplayName, err)
	}

	proj, projErr := ResolveProjection(in.ProjectionField, in.OSNGSeparationFile)
	if projErr != nil {
		d.fail(in, statusDir, ErrorStage("projection not identified"), projErr)
		return fmt.Errorf("pipeline: %s: %w", in.DisplayName, projErr)
	}

	processingDir := in.Workspace.Mapped
	isTmp := in.Tmp
	if isTmp {
		tmp, err := os.MkdirTemp(in.TmpRoot, "scops-")
		if err != nil {
			return fmt.Errorf("pipeline: creating scratch dir: %w", err)
		}
		processingDir = tmp
	} else {
		processingDir = in.Workspace.Root
	}

	record := NewRecord(processingDir, in.Workspace.Root, in.DisplayName, proj.Token, isTmp)
	defer record.Writeback()

	if d.NewProgressWatcher != nil {
		watcherCtx, cancelWatcher := context.WithCancel(ctx)
		defer cancelWatcher()
		go d.NewProgressWatcher(in, logPath, record.Zip.scratch).Run(watcherCtx)
	}

	level1 := in.Level1Path
	if in.InputLevel1Override != "" {
		level1 = in.InputLevel1Override
	}

	resumeStage, err := d.currentStage(in)
	if err != nil {
		resumeStage = ""
	}

	maskedFile := level1

	// stage 1: mask
	if !in.SkipMasking && !shouldSkip(in.Resume, resumeStage, StageMask, exttool.FileExists(record.MaskedBil.scratch)) {
		if err := d.setStage(in, statusDir, StageMask); err != nil {
			return err
		}

		maskFile := in.MaskFile
		if maskFile == "" {
			maskFile = trimBilSuffix(level1) + "_mask.bil"
		}

		args, invoke := maskArgs(in.MaskingPolicy, level1, maskFile, record.MaskedBil.scratch, in.BadPixelMaskFile)
		if invoke {
			if _, err := exttool.Run(ctx, logPath, "aplmask", args...); err != nil {
				return d.stageError(in, statusDir, StageMask, err)
			}
			if !exttool.FileExists(record.MaskedBil.scratch) {
				return d.stageError(in, statusDir, StageMask, fmt.Errorf("masked file not output"))
			}
			maskedFile = record.MaskedBil.scratch
		}
	} else if exttool.FileExists(record.MaskedBil.scratch) {
		maskedFile = record.MaskedBil.scratch
	}

	// stage 2: geocorrect
	if !shouldSkip(in.Resume, resumeStage, StageGeocorrect, exttool.FileExists(record.IGM.scratch)) {
		if err := d.setStage(in, statusDir, StageGeocorrect); err != nil {
			return err
		}
		args := geocorrectArgs(level1, in.NavFile, in.ViewVectorFile, in.DEMFile, record.IGM.scratch)
		if _, err := exttool.Run(ctx, logPath, "aplcorr", args...); err != nil {
			return d.stageError(in, statusDir, StageGeocorrect, err)
		}
		if !exttool.FileExists(record.IGM.scratch) {
			return d.stageError(in, statusDir, StageGeocorrect, fmt.Errorf(".igm not output"))
		}
	}

	// stage 3: reproject
	if !shouldSkip(in.Resume, resumeStage, StageReproject, exttool.FileExists(record.IGMTransformed.scratch)) {
		if err := d.setStage(in, statusDir, StageReproject); err != nil {
			return err
		}
		args := reprojectArgs(record.IGM.scratch, record.IGMTransformed.scratch, proj)
		if _, err := exttool.Run(ctx, logPath, "apltran", args...); err != nil {
			return d.stageError(in, statusDir, StageReproject, err)
		}
		if !exttool.FileExists(record.IGMTransformed.scratch) {
			return d.stageError(in, statusDir, StageReproject, fmt.Errorf("reprojected .igm not output"))
		}
	}

	// stage 4: map
	if !shouldSkip(in.Resume, resumeStage, StageMap, exttool.FileExists(record.MappedBil.scratch)) {
		if err := d.setStage(in, statusDir, StageMap); err != nil {
			return err
		}
		args := mapArgs(record.IGMTransformed.scratch, maskedFile, in.PixelX, in.PixelY, in.BandList, in.Interpolation, record.MappedBil.scratch, in.DataType, in.IgnoreFreeSpace)
		if _, err := exttool.Run(ctx, logPath, "aplmap", args...); err != nil {
			return d.stageError(in, statusDir, StageMap, err)
		}
		if !exttool.FileExists(record.MappedBil.scratch) {
			return d.stageError(in, statusDir, StageMap, fmt.Errorf("3b_mapped.bil not output"))
		}
	}

	// stage 5: zip, gated by the cross-line barrier.
	if err := d.setStage(in, statusDir, StageWaitingZip); err != nil {
		return err
	}
	waitStart := time.Now()
	if err := AwaitZipBarrier(ctx, statusDir); err != nil {
		return fmt.Errorf("pipeline: %s: zip barrier: %w", in.DisplayName, err)
	}
	metrics.ObserveZipBarrierWait(time.Since(waitStart))
	if err := d.setStage(in, statusDir, StageZipping); err != nil {
		return err
	}

	if err := zipMappedFile(record); err != nil {
		log.Errorf("pipeline: %s: zip failed: %v", in.DisplayName, err)
	}

	if err := d.setStage(in, statusDir, StageComplete); err != nil {
		return err
	}

	if in.LastProcess {
		// MaybeBuildMasterZip globs the final mapped directory, so this
		// invocation's own per-line zip must already be there -- move it
		// out of scratch now instead of waiting for the deferred
		// Writeback below.
		record.Writeback()

		master, err := MaybeBuildMasterZip(d.Store, in.ProcessingID, statusDir, in.Workspace.Mapped, in.Project, in.Year, in.Jday)
		if err != nil {
			log.Errorf("pipeline: %s: aggregate completion: %v", in.DisplayName, err)
		} else if master != "" {
			log.Infof("pipeline: master zip built at %s", master)
			d.deliverAndNotify(in, master)
		}
	}

	return nil
}

// deliverAndNotify hands the master zip to the delivery backend (if
// configured) and sends the order-complete e-mail (if a mailer and
// recipient are both set).
func (d *Driver) deliverAndNotify(in Input, masterZipPath string) {
	reference := masterZipPath
	if d.Delivery != nil {
		delivered, err := d.Delivery.Deliver(context.Background(), masterZipPath)
		if err != nil {
			log.Errorf("pipeline: %s: delivering master zip: %v", in.ProcessingID, err)
		} else {
			reference = delivered
		}
	}

	if d.Mailer == nil || in.NotifyEmail == "" {
		return
	}
	if err := d.Mailer.OrderCompleteEmail(in.NotifyEmail, in.ProcessingID, reference); err != nil {
		log.Errorf("pipeline: %s: order-complete email: %v", in.ProcessingID, err)
	}
}

func (d *Driver) currentStage(in Input) (string, error) {
	return d.Store.GetStage(in.ProcessingID, in.DisplayName)
}

// shouldSkip implements the stage-skip rule: a stage is skipped if
// resume is true and the resume point is past it, or its declared
// output already exists.
func shouldSkip(resume bool, resumeStage, stage string, outputExists bool) bool {
	if outputExists {
		return true
	}
	if !resume {
		return false
	}
	return stageIndex(resumeStage) > stageIndex(stage)
}

var canonicalStages = []string{statusstore.StageWaiting, StageMask, StageGeocorrect, StageReproject, StageMap, StageWaitingZip, StageZipping, StageComplete}

func stageIndex(stage string) int {
	for i, s := range canonicalStages {
		if s == stage {
			return i
		}
	}
	return -1
}

func (d *Driver) setStage(in Input, statusDir, stage string) error {
	if err := d.Store.UpdateStage(in.ProcessingID, in.DisplayName, stage); err != nil {
		return fmt.Errorf("pipeline: %s: updating stage: %w", in.DisplayName, err)
	}
	if err := WriteStatusFile(statusDir, in.DisplayName, stage); err != nil {
		return fmt.Errorf("pipeline: %s: writing status file: %w", in.DisplayName, err)
	}
	metrics.StageTransitionsTotal.WithLabelValues(stage).Inc()
	return nil
}

func (d *Driver) fail(in Input, statusDir, stage string, cause error) {
	if err := d.Store.UpdateStage(in.ProcessingID, in.DisplayName, stage); err != nil {
		log.Errorf("pipeline: %s: recording failure stage %s: %v", in.DisplayName, stage, err)
	}
	if err := WriteStatusFile(statusDir, in.DisplayName, stage); err != nil {
		log.Errorf("pipeline: %s: writing failure status file: %v", in.DisplayName, err)
	}
	metrics.StageFailuresTotal.WithLabelValues(stage).Inc()

	if d.Mailer != nil {
		if err := d.Mailer.StageErrorEmail(in.ProcessingID, in.DisplayName, stage, cause); err != nil {
			log.Errorf("pipeline: %s: stage-error email: %v", in.DisplayName, err)
		}
	}
}

func (d *Driver) stageError(in Input, statusDir, stage string, cause error) error {
	errStage := ErrorStage(stage)
	d.fail(in, statusDir, errStage, cause)
	return fmt.Errorf("pipeline: %s: stage %s: %w", in.DisplayName, stage, cause)
}

func trimBilSuffix(path string) string {
	const suffix = ".bil"
	if len(path) > len(suffix) && path[len(path)-len(suffix):] == suffix {
		return path[:len(path)-len(suffix)]
	}
	return path
}

// zipMappedFile zips the mapped raster and its header into a per-line
// zip named after the mapped bil, then removes the un-zipped raster
// so a line's scratch dir doesn't hold both representations once
// zipped.
func zipMappedFile(r Record) error {
	out, err := os.Create(r.Zip.scratch)
	if err != nil {
		return fmt.Errorf("pipeline: creating %s: %w", r.Zip.scratch, err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	for _, a := range []artifact{r.MappedBil, r.MappedHdr} {
		if !exttool.FileExists(a.scratch) {
			continue
		}
		if err := addStored(zw, a.scratch, filepath.Base(a.scratch)); err != nil {
			return fmt.Errorf("pipeline: zipping %s: %w", a.scratch, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("pipeline: closing %s: %w", r.Zip.scratch, err)
	}

	os.Remove(r.MappedBil.scratch)
	os.Remove(r.MappedHdr.scratch)
	return nil
}

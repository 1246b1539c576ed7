// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package progress is a per-line best-effort watcher: it polls the
// status store and log tail once a second, derives an overall
// percent, and publishes it both to NATS (for the live operator UI)
// and to a local line-protocol file (for historical metrics
// ingestion).
package progress

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/influxdata/line-protocol/v2/lineprotocol"
	"github.com/nats-io/nats.go"

	"github.com/nerc-arf/scops/internal/pipeline"
	"github.com/nerc-arf/scops/internal/statusstore"
	"github.com/nerc-arf/scops/pkg/log"
)

// PollInterval is how often a watcher samples the status store and
// log tail.
const PollInterval = 1 * time.Second

var percentRe = regexp.MustCompile(`Approximate percent complete:\s*(\d+)`)
var megabytesRe = regexp.MustCompile(`([\d.]+)\s*megabytes`)

// stageWeight is the (baseline, weight) pair used to turn a stage's
// intra-stage percent into an overall percent.
type stageWeight struct {
	baseline int
	weight   int
}

var stageWeights = map[string]stageWeight{
	pipeline.StageMask:       {0, 15},
	pipeline.StageGeocorrect: {15, 15},
	pipeline.StageReproject:  {30, 15},
	pipeline.StageMap:        {45, 50},
	pipeline.StageWaitingZip: {95, 5},
	pipeline.StageZipping:    {95, 5},
	pipeline.StageComplete:   {100, 0},
}

// Watcher tracks one line's progress.
type Watcher struct {
	Store        *statusstore.StatusStore
	ProcessingID string
	Line         string
	LogPath      string
	ZipPath      string

	NatsConn *nats.Conn
	LPPath   string
}

// Run polls until the line reaches a terminal stage (complete or
// ERROR) or ctx is cancelled. Every exception is logged and swallowed
// so the pipeline it's attached to never blocks on it, per spec
// section 4.7's "best-effort" contract.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if w.tick() {
				return
			}
		}
	}
}

// tick runs one sampling pass and reports whether the line has
// reached a terminal state.
func (w *Watcher) tick() (done bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("progress: %s/%s: recovered panic: %v", w.ProcessingID, w.Line, r)
			done = false
		}
	}()

	stage, err := w.Store.GetStage(w.ProcessingID, w.Line)
	if err != nil {
		log.Warnf("progress: %s/%s: reading stage: %v", w.ProcessingID, w.Line, err)
		return false
	}
	if pipeline.IsErrorStage(stage) {
		return true
	}

	intraPercent, outputMB := w.sampleLog()

	fileMB, fileUnit := 0.0, "MB"
	zipMB, zipUnit := 0.0, "MB"
	if sz, ok := fileSizeMB(w.ZipPath); ok {
		zipMB, zipUnit = normalizeSize(sz)
		intraPercent = 0
	}
	if outputMB > 0 {
		fileMB, fileUnit = normalizeSize(outputMB)
	}

	overall := 100
	if stage != pipeline.StageComplete {
		sw, ok := stageWeights[stage]
		if !ok {
			sw = stageWeight{0, 0}
		}
		overall = sw.baseline + (intraPercent*sw.weight)/100
	}

	if err := w.Store.UpdateProgress(w.ProcessingID, w.Line, overall, fileMB, fileUnit, zipMB, zipUnit); err != nil {
		log.Warnf("progress: %s/%s: committing progress: %v", w.ProcessingID, w.Line, err)
	}

	w.publish(overall)

	return stage == pipeline.StageComplete
}

// sampleLog reads the last ~6 lines of the log file and extracts the
// most recent "Approximate percent complete" integer and any
// "megabytes" output size mentioned.
func (w *Watcher) sampleLog() (percent int, outputMB float64) {
	lines := tailLines(w.LogPath, 6)
	for _, line := range lines {
		if m := percentRe.FindStringSubmatch(line); m != nil {
			if v, err := strconv.Atoi(m[1]); err == nil && v <= 100 {
				percent = v
			}
		}
		if m := megabytesRe.FindStringSubmatch(line); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				outputMB = v
			}
		}
	}
	return percent, outputMB
}

func tailLines(path string, n int) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if len(lines) > n {
			lines = lines[1:]
		}
	}
	return lines
}

func fileSizeMB(path string) (float64, bool) {
	if path == "" {
		return 0, false
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, false
	}
	return float64(info.Size()) / (1024 * 1024), true
}

// normalizeSize promotes MB to GB above 500 MB.
func normalizeSize(mb float64) (float64, string) {
	if mb > 500 {
		return mb / 1024, "GB"
	}
	return mb, "MB"
}

// publish sends the overall percent to both NATS (subject
// scops.progress.<processing_id>.<line>) and a local line-protocol
// file, swallowing any transport error.
func (w *Watcher) publish(overall int) {
	if w.NatsConn != nil {
		subject := fmt.Sprintf("scops.progress.%s.%s", w.ProcessingID, w.Line)
		if err := w.NatsConn.Publish(subject, []byte(strconv.Itoa(overall))); err != nil {
			log.Warnf("progress: publishing %s: %v", subject, err)
		}
	}

	if w.LPPath == "" {
		return
	}

	var enc lineprotocol.Encoder
	enc.SetPrecision(lineprotocol.Second)
	enc.StartLine("line_progress")
	enc.AddTag("processing_id", w.ProcessingID)
	enc.AddTag("line", w.Line)
	enc.AddField("percent", lineprotocol.MustNewValue(int64(overall)))
	enc.EndLine(time.Now())
	if err := enc.Err(); err != nil {
		log.Warnf("progress: encoding line protocol: %v", err)
		return
	}

	f, err := os.OpenFile(w.LPPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Warnf("progress: opening %s: %v", w.LPPath, err)
		return
	}
	defer f.Close()
	if _, err := f.Write(enc.Bytes()); err != nil {
		log.Warnf("progress: writing %s: %v", w.LPPath, err)
	}
}

// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package submitter runs the submission sequence for a confirmed
// order: it ensures the workspace and DEM exist, marks the order
// submitted, initializes every line's status, sends the order-started
// e-mail once, and fans each line out to either an in-process
// executor or a cluster batch scheduler (SGE qsub or LSF bsub).
package submitter

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"golang.org/x/time/rate"

	"github.com/nerc-arf/scops/internal/bandmath"
	"github.com/nerc-arf/scops/internal/delivery"
	"github.com/nerc-arf/scops/internal/dem"
	"github.com/nerc-arf/scops/internal/exttool"
	"github.com/nerc-arf/scops/internal/metrics"
	"github.com/nerc-arf/scops/internal/notify"
	"github.com/nerc-arf/scops/internal/orderfile"
	"github.com/nerc-arf/scops/internal/pipeline"
	"github.com/nerc-arf/scops/internal/plugin"
	"github.com/nerc-arf/scops/internal/progress"
	"github.com/nerc-arf/scops/internal/statusstore"
	"github.com/nerc-arf/scops/internal/workspace"
	"github.com/nerc-arf/scops/pkg/log"
)

// Backend selects how a line's pipeline invocation is dispatched.
type Backend string

const (
	BackendLocal Backend = "local"
	BackendSGE   Backend = "sge"
	BackendLSF   Backend = "lsf"
)

// ClusterConfig carries the scheduler-specific knobs for the qsub/bsub
// argument lists.
type ClusterConfig struct {
	Backend    Backend
	SGEQueue   string
	SGEProject string
	LSFQueue   string
	PipelineBinary string // path to the scops-pipeline binary, for cluster dispatch
}

// Submitter ties the pieces above into one order-submission pass.
type Submitter struct {
	Store     *statusstore.StatusStore
	Mailer    *notify.Mailer
	Delivery  delivery.Backend
	Cluster   ClusterConfig
	TmpRoot   string
	PluginDir string
	Limiter   *rate.Limiter

	// NatsConn is optional; a nil connection leaves the live progress
	// feed disabled but still writes the line-protocol trail.
	NatsConn *nats.Conn
}

// New constructs a Submitter with a submission rate limiter, per spec
// section 5's throttling of cluster submissions.
func New(store *statusstore.StatusStore, mailer *notify.Mailer, deliveryBackend delivery.Backend, cluster ClusterConfig, tmpRoot, pluginDir string, ratePerSec float64, natsConn *nats.Conn) *Submitter {
	return &Submitter{
		Store:     store,
		Mailer:    mailer,
		Delivery:  deliveryBackend,
		Cluster:   cluster,
		TmpRoot:   tmpRoot,
		PluginDir: pluginDir,
		Limiter:   rate.NewLimiter(rate.Limit(ratePerSec), 1),
		NatsConn:  natsConn,
	}
}

// newProgressWatcher builds the background progress sampler for one
// invocation, wired into pipeline.Driver through pipeline.ProgressWatcher
// so the two packages don't import each other directly.
func (s *Submitter) newProgressWatcher(in pipeline.Input, logPath, zipPath string) pipeline.ProgressWatcher {
	return &progress.Watcher{
		Store:        s.Store,
		ProcessingID: in.ProcessingID,
		Line:         in.DisplayName,
		LogPath:      logPath,
		ZipPath:      zipPath,
		NatsConn:     s.NatsConn,
		LPPath:       filepath.Join(in.Workspace.Logs, in.DisplayName+"_progress.lp"),
	}
}

// RunClusterLine re-enters the submission path for a single line on an
// already-allocated compute node: the cluster job wrapper (cmd
// scops-pipeline) calls this with the arguments qsub/bsub were given
// (-c order, -o output root, -l line, optionally -r to resume), and it
// rebuilds the same invocation set submitLine planned at dispatch
// time, running each one in-process via the local backend.
func (s *Submitter) RunClusterLine(ctx context.Context, orderPath, outputRoot, line string, resume bool) error {
	order, err := orderfile.Load(orderPath)
	if err != nil {
		return fmt.Errorf("submitter: loading %s: %w", orderPath, err)
	}

	layout := workspace.NewLayout(outputRoot)
	processingID := filepath.Base(outputRoot)

	demName, _ := order.GetDefault("dem_name")
	demPath := filepath.Join(layout.DEM, demName)

	project, _ := order.GetDefault("project_code")
	year, _ := order.GetDefault("year")
	jday, _ := order.GetDefault("julianday")

	lines := order.Lines()
	last := len(lines) > 0 && lines[len(lines)-1] == line

	return s.submitLine(ctx, processingID, project, year, jday, line, order, layout, BackendLocal, demPath, last, resume)
}

// Submit runs the full submission sequence for one order file.
func (s *Submitter) Submit(ctx context.Context, orderPath string, local bool) error {
	metrics.OrdersInFlight.Inc()
	defer metrics.OrdersInFlight.Dec()

	order, err := orderfile.Load(orderPath)
	if err != nil {
		return fmt.Errorf("submitter: loading %s: %w", orderPath, err)
	}

	project, _ := order.GetDefault("project_code")
	year, _ := order.GetDefault("year")
	jday, _ := order.GetDefault("julianday")
	sortie, _ := order.GetDefault("sortie")

	outputFolder, hasOutput := order.GetDefault("output_folder")
	if !hasOutput || outputFolder == "" {
		outputFolder = filepath.Join(filepath.Dir(orderPath), "workspaces", workspace.ProcessingID(project, year, jday, sortie, time.Now()))
	}
	processingID := filepath.Base(outputFolder)

	layout, err := workspace.Build(outputFolder)
	if err != nil {
		return fmt.Errorf("submitter: order %s: fatal: %w", processingID, err)
	}
	if err := workspace.SymlinkOrderFile(layout, orderPath); err != nil {
		return fmt.Errorf("submitter: order %s: %w", processingID, err)
	}

	demPath, err := dem.Ensure(ctx, layout, order)
	if err != nil {
		if dem.IsInsufficientCoverage(err) {
			order.SetDefault("has_error", "true")
			order.Save()
			email, _ := order.GetDefault("email")
			if s.Mailer != nil && email != "" {
				if mailErr := s.Mailer.DEMCoverageErrorEmail(email, outputFolder, project); mailErr != nil {
					log.Errorf("submitter: sending DEM coverage email: %v", mailErr)
				}
			}
			return nil
		}
		return fmt.Errorf("submitter: order %s: ensuring DEM: %w", processingID, err)
	}

	order.SetDefault("submitted", "true")
	order.SetDefault("dem_name", filepath.Base(demPath))
	if err := order.Save(); err != nil {
		return fmt.Errorf("submitter: order %s: writing back submitted flag: %w", processingID, err)
	}

	backend := BackendLocal
	if !local {
		backend = s.Cluster.Backend
	}

	for _, line := range order.Lines() {
		if err := s.initLineStatus(processingID, line, order, layout); err != nil {
			log.Errorf("submitter: order %s: line %s: %v", processingID, line, err)
		}
	}

	if !order.GetBool("", "status_email_sent") && s.Mailer != nil {
		email, _ := order.GetDefault("email")
		if email != "" {
			if err := s.Mailer.OrderStartedEmail(email, processingID); err != nil {
				log.Errorf("submitter: order %s: order-started email: %v", processingID, err)
			}
		}
		order.SetDefault("status_email_sent", "true")
		order.Save()
	}

	lines := order.Lines()
	for i, line := range lines {
		mainLine := order.GetBool(line, "process")
		bandRatio := len(order.EquationNames(line)) > 0

		if !mainLine && !bandRatio {
			continue
		}

		last := i == len(lines)-1
		if err := s.submitLine(ctx, processingID, project, year, jday, line, order, layout, backend, demPath, last, false); err != nil {
			log.Errorf("submitter: order %s: line %s: submission failed, continuing: %v", processingID, line, err)
		}
	}

	return nil
}

func (s *Submitter) initLineStatus(processingID, line string, order *orderfile.Order, layout workspace.Layout) error {
	stage := "not processing"
	if order.GetBool(line, "process") {
		stage = "waiting"
	}
	if err := pipeline.WriteStatusFile(layout.Status, line, stage); err != nil {
		return err
	}

	for _, eq := range order.EquationNames(line) {
		if !order.GetBool(line, "eq_"+eq) {
			continue
		}
		name := line + "_" + eq
		if err := pipeline.WriteStatusFile(layout.Status, name, "waiting"); err != nil {
			return err
		}
	}

	return nil
}

// submitLine dispatches the main line run plus one run per active
// equation or plugin.
func (s *Submitter) submitLine(ctx context.Context, processingID, project, year, jday, line string, order *orderfile.Order, layout workspace.Layout, backend Backend, demPath string, lastLineOfOrder, resume bool) error {
	level1, _ := order.GetDefault("sourcefolder")
	level1Path := filepath.Join(level1, line+".bil")

	invocations := s.planInvocations(line, order, layout, level1Path)
	if len(invocations) == 0 {
		return nil
	}
	// Every line's last invocation runs the aggregate-completion check;
	// the zip_aggregated claim keeps the master zip to a single build.
	invocations[len(invocations)-1].last = true

	projection, _ := order.GetDefault("projection")
	interp, _ := order.GetDefault("interpolation")
	bandRange, _ := order.Get(line, "band_range")
	pixel, _ := order.GetDefault("pixelsize")
	px, py := splitPair(pixel)
	masking, _ := order.GetDefault("masking")
	ignoreFree := order.GetBool("", "aplmap_ignore_freespace")
	email, _ := order.GetDefault("email")

	for _, inv := range invocations {
		in := pipeline.Input{
			ProcessingID:       processingID,
			Project:            project,
			Year:               year,
			Jday:               jday,
			LineName:           line,
			DisplayName:        inv.display,
			BandList:           bandRange,
			Workspace:          layout,
			Level1Path:         level1Path,
			InputLevel1Override: inv.level1Override,
			SkipMasking:        inv.skipMasking,
			ProjectionField:    projection,
			MaskingPolicy:      masking,
			PixelX:             px,
			PixelY:             py,
			Interpolation:      interp,
			DataType:           "bsq",
			IgnoreFreeSpace:    ignoreFree,
			DEMFile:            demPath,
			Tmp:                true,
			Resume:             resume,
			LastProcess:        inv.last,
			TmpRoot:            s.TmpRoot,
			NotifyEmail:        email,
		}

		if err := s.dispatch(ctx, backend, in, order); err != nil {
			log.Errorf("submitter: %s/%s: %v", processingID, inv.display, err)
		}
	}

	return nil
}

type invocation struct {
	display        string
	level1Override string
	skipMasking    bool
	last           bool
}

// planInvocations expands one line into its main run plus one run per
// active eq_/plugin_ preprocessor.
func (s *Submitter) planInvocations(line string, order *orderfile.Order, layout workspace.Layout, level1Path string) []invocation {
	var out []invocation

	if order.GetBool(line, "process") {
		out = append(out, invocation{display: line})
	}

	for _, eq := range order.EquationNames(line) {
		if !order.GetBool(line, "eq_"+eq) {
			continue
		}
		// The line's own eq_<name> is the true/false selector; the
		// equation text lives in DEFAULT.
		expr, _ := order.GetDefault("eq_" + eq)
		result, err := bandmath.Evaluate(level1Path, level1Path+".hdr", layout.Level1b, expr, eq, "")
		if err != nil {
			log.Errorf("submitter: band-math %s/%s: %v", line, eq, err)
			continue
		}
		out = append(out, invocation{display: line + "_" + eq, level1Override: result.OutputPath})
	}

	for _, name := range order.PluginNames(line) {
		if !order.GetBool(line, "plugin_"+name) {
			continue
		}
		run, ok := plugin.Lookup(name)
		if !ok {
			log.Errorf("submitter: plugin %q not registered for line %s", name, line)
			continue
		}
		produced, err := run(layout.Level1b, level1Path)
		if err != nil {
			log.Errorf("submitter: plugin %s/%s: %v", line, name, err)
			continue
		}
		out = append(out, invocation{display: line + "_" + name, level1Override: produced, skipMasking: true})
	}

	return out
}

func (s *Submitter) dispatch(ctx context.Context, backend Backend, in pipeline.Input, order *orderfile.Order) error {
	switch backend {
	case BackendSGE:
		return s.submitSGE(ctx, in, order)
	case BackendLSF:
		return s.submitLSF(ctx, in, order)
	default:
		driver := &pipeline.Driver{Store: s.Store, Mailer: s.Mailer, Delivery: s.Delivery, NewProgressWatcher: s.newProgressWatcher}
		return driver.Run(ctx, in)
	}
}

func (s *Submitter) submitSGE(ctx context.Context, in pipeline.Input, order *orderfile.Order) error {
	if s.Limiter != nil {
		if err := s.Limiter.Wait(ctx); err != nil {
			return err
		}
	}

	tmpfree := tmpfreeGB(in.Level1Path)
	jobName := fmt.Sprintf("WEB_%s_%s", in.Project, in.LineName)
	logDir := in.Workspace.Logs

	orderPath := order.Path()
	args := []string{
		"-N", jobName,
		"-q", s.Cluster.SGEQueue,
		"-P", s.Cluster.SGEProject,
		"-wd", in.Workspace.Root,
		"-e", logDir,
		"-o", logDir,
		"-m", "n",
		"-b", "y",
		"-l", "apl_throttle=1",
		"-l", "apl_web_throttle=1",
		"-l", fmt.Sprintf("tmpfree=%dG", tmpfree),
		s.Cluster.PipelineBinary,
		"-l", in.LineName,
		"-c", orderPath,
		"-s", "fenix",
		"-o", in.Workspace.Root,
	}

	_, err := exttool.Run(ctx, filepath.Join(logDir, in.DisplayName+"_submit.log"), "qsub", args...)
	if err == nil {
		metrics.ClusterSubmissionsTotal.WithLabelValues("sge").Inc()
	}
	return err
}

func (s *Submitter) submitLSF(ctx context.Context, in pipeline.Input, order *orderfile.Order) error {
	if s.Limiter != nil {
		if err := s.Limiter.Wait(ctx); err != nil {
			return err
		}
	}

	jobName := fmt.Sprintf("WEB_%s_%s", in.Project, in.LineName)
	logDir := in.Workspace.Logs
	orderPath := order.Path()

	args := []string{
		"-J", jobName,
		"-q", s.Cluster.LSFQueue,
		"-o", filepath.Join(logDir, in.DisplayName+".bsub.out"),
		"-e", filepath.Join(logDir, in.DisplayName+".bsub.err"),
		"-W", "240",
		"-n", "1",
	}

	stdin := fmt.Sprintf("%s -l %s -c %s -s fenix -o %s\n", s.Cluster.PipelineBinary, in.LineName, orderPath, in.Workspace.Root)

	_, err := exttool.RunWithStdin(ctx, filepath.Join(logDir, in.DisplayName+"_submit.log"), stdin, "bsub", args...)
	if err == nil {
		metrics.ClusterSubmissionsTotal.WithLabelValues("lsf").Inc()
	}
	return err
}

// tmpfreeGB computes the SGE tmpfree request: 1.5x the declared
// input's size in GB, rounded up, defaulting to 100 on any failure to
// stat the file.
func tmpfreeGB(level1Path string) int {
	info, err := os.Stat(level1Path)
	if err != nil {
		return 100
	}
	gb := float64(info.Size()) / (1024 * 1024 * 1024)
	return int(math.Ceil(gb * 1.5))
}

func splitPair(s string) (string, string) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return s, s
	}
	return fields[0], fields[1]
}

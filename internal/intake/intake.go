// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package intake is a periodically-scheduled daemon: it scans the
// order directory for *.cfg files, filters out orders that aren't
// ready, and hands the rest to a submitter. Built on gocron, one
// registered job per daemon.
package intake

import (
	"context"
	"path/filepath"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/nerc-arf/scops/internal/orderfile"
	"github.com/nerc-arf/scops/pkg/log"
)

// Submitter is the minimal surface intake needs from
// internal/submitter, kept as an interface so tests can substitute a
// recorder.
type Submitter interface {
	Submit(ctx context.Context, orderPath string, local bool) error
}

// Daemon owns the gocron scheduler and the order directory to scan.
type Daemon struct {
	OrderDir  string
	Submitter Submitter
	Local     bool

	scheduler gocron.Scheduler
}

// Start registers the periodic scan job and begins running it every
// interval.
func (d *Daemon) Start(interval time.Duration) error {
	s, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	d.scheduler = s

	if _, err := s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(d.scanOnce),
	); err != nil {
		return err
	}

	s.Start()
	return nil
}

// Shutdown stops the scheduler.
func (d *Daemon) Shutdown() error {
	if d.scheduler == nil {
		return nil
	}
	return d.scheduler.Shutdown()
}

func (d *Daemon) scanOnce() {
	matches, err := filepath.Glob(filepath.Join(d.OrderDir, "*.cfg"))
	if err != nil {
		log.Errorf("intake: globbing %s: %v", d.OrderDir, err)
		return
	}

	for _, path := range matches {
		if err := d.considerOrder(path); err != nil {
			log.Errorf("intake: %s: %v", path, err)
		}
	}
}

// considerOrder applies the five eligibility filters and, if all
// pass, hands the order to the submitter.
func (d *Daemon) considerOrder(path string) error {
	order, err := orderfile.Load(path)
	if err != nil {
		return err
	}

	if order.GetBool("", "submitted") && !order.GetBool("", "restart") {
		return nil
	}
	if !order.GetBool("", "confirmed") {
		return nil
	}
	if order.GetBool("", "ftp_dem") && !order.GetBool("", "ftp_dem_confirmed") {
		return nil
	}
	if order.GetBool("", "bandratio") && !order.GetBool("", "bandratioset") && !order.GetBool("", "bandratiomappedset") {
		return nil
	}
	if order.GetBool("", "has_error") {
		return nil
	}

	log.Infof("intake: dispatching %s to submitter", path)
	return d.Submitter.Submit(context.Background(), path, d.Local)
}

// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command scops-submit runs the submission sequence for a single order
// file: wire up the status store, mailer and delivery backend, then
// hand the order to internal/submitter.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/nats-io/nats.go"

	"github.com/nerc-arf/scops/internal/delivery"
	"github.com/nerc-arf/scops/internal/notify"
	_ "github.com/nerc-arf/scops/internal/plugin/spectralangle"
	"github.com/nerc-arf/scops/internal/runtimeenv"
	"github.com/nerc-arf/scops/internal/scopsconfig"
	"github.com/nerc-arf/scops/internal/statusstore"
	"github.com/nerc-arf/scops/internal/submitter"
	"github.com/nerc-arf/scops/pkg/log"
)

func main() {
	var flagConfigFile, flagOrder string
	var flagLocal bool
	flag.StringVar(&flagConfigFile, "config", "./config.json", "Overwrite the default configuration with the one in `config.json`")
	flag.StringVar(&flagOrder, "order", "", "Path to the order `.cfg` file to submit (required)")
	flag.BoolVar(&flagLocal, "local", false, "Run every line in-process instead of dispatching to the configured cluster backend")
	flag.Parse()

	if flagOrder == "" {
		log.Fatal("scops-submit: -order is required")
	}

	if err := runtimeenv.LoadEnv("./.env"); err != nil && !os.IsNotExist(err) {
		log.Fatalf("parsing './.env' file failed: %s", err.Error())
	}

	if err := scopsconfig.Init(flagConfigFile); err != nil {
		log.Fatal(err)
	}
	log.SetLogLevel(scopsconfig.Keys.LogLevel)

	store, err := statusstore.Connect(scopsconfig.Keys.StatusDB)
	if err != nil {
		log.Fatalf("connecting to status store: %s", err.Error())
	}

	mailer := notify.New(scopsconfig.Keys.SMTPHost, scopsconfig.Keys.ServerBaseURL, scopsconfig.Keys.JWTSecret, scopsconfig.Keys.ErrorEmail, scopsconfig.Keys.ErrorBCC)

	deliveryBackend, err := delivery.New(scopsconfig.Keys)
	if err != nil {
		log.Fatalf("constructing delivery backend: %s", err.Error())
	}

	cluster := submitter.ClusterConfig{
		Backend:        submitter.Backend(scopsconfig.Keys.ClusterBackend),
		SGEQueue:       scopsconfig.Keys.SGEQueue,
		SGEProject:     scopsconfig.Keys.SGEProject,
		LSFQueue:       scopsconfig.Keys.LSFQueue,
		PipelineBinary: "scops-pipeline",
	}

	natsConn := connectNats(scopsconfig.Keys.NatsURL)
	if natsConn != nil {
		defer natsConn.Close()
	}

	sub := submitter.New(store, mailer, deliveryBackend, cluster, scopsconfig.Keys.TmpRoot, scopsconfig.Keys.PluginDir, scopsconfig.Keys.SubmitRatePerSec, natsConn)

	if err := sub.Submit(context.Background(), flagOrder, flagLocal); err != nil {
		log.Fatalf("scops-submit: %s: %s", flagOrder, err.Error())
	}
}

// connectNats dials the live-progress broker. A nil result (empty URL
// or a dial failure) leaves progress publishing disabled; it is never
// fatal.
func connectNats(url string) *nats.Conn {
	if url == "" {
		return nil
	}
	conn, err := nats.Connect(url)
	if err != nil {
		log.Warnf("scops-submit: connecting to nats at %s: %s", url, err.Error())
		return nil
	}
	return conn
}

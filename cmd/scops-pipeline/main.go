// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command scops-pipeline is the program a cluster job (qsub/bsub)
// actually runs on an allocated compute node: given the line, order
// and output root submitter.submitSGE/submitLSF passed it, it
// re-enters the submission path for that single line and runs its
// invocations in-process.
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
	var flagConfigFile, flagLine, flagOrder, flagSortie, flagOutputRoot string
	var flagResume bool
	flag.StringVar(&flagConfigFile, "config", "./config.json", "Overwrite the default configuration with the one in `config.json`")
	flag.StringVar(&flagLine, "l", "", "Flightline name to process (required)")
	flag.StringVar(&flagOrder, "c", "", "Path to the order `.cfg` file this line belongs to (required)")
	flag.StringVar(&flagSortie, "s", "", "Sortie tag (accepted for compatibility with the qsub/bsub argument list, unused)")
	flag.StringVar(&flagOutputRoot, "o", "", "Workspace output root (required)")
	flag.BoolVar(&flagResume, "r", false, "Resume from the line's last recorded stage instead of starting over")
	flag.BoolVar(&flagResume, "resume", false, "Long form of -r")
	flag.Parse()

	if flagLine == "" || flagOrder == "" || flagOutputRoot == "" {
		log.Fatal("scops-pipeline: -l, -c and -o are all required")
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

	natsConn := connectNats(scopsconfig.Keys.NatsURL)
	if natsConn != nil {
		defer natsConn.Close()
	}

	sub := submitter.New(store, mailer, deliveryBackend, submitter.ClusterConfig{}, scopsconfig.Keys.TmpRoot, scopsconfig.Keys.PluginDir, scopsconfig.Keys.SubmitRatePerSec, natsConn)

	if err := sub.RunClusterLine(context.Background(), flagOrder, flagOutputRoot, flagLine, flagResume); err != nil {
		log.Fatalf("scops-pipeline: %s/%s: %s", flagOrder, flagLine, err.Error())
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
		log.Warnf("scops-pipeline: connecting to nats at %s: %s", url, err.Error())
		return nil
	}
	return conn
}

// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command scops-statusd serves the read-only status API and the
// Prometheus metrics endpoint. It owns no processing logic: every
// line and order status it reports was written by a scops-submit or
// scops-pipeline process sharing the same status database.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/gops/agent"

	"github.com/nerc-arf/scops/internal/metrics"
	"github.com/nerc-arf/scops/internal/runtimeenv"
	"github.com/nerc-arf/scops/internal/scopsconfig"
	"github.com/nerc-arf/scops/internal/secrets"
	"github.com/nerc-arf/scops/internal/statusapi"
	"github.com/nerc-arf/scops/internal/statusstore"
	"github.com/nerc-arf/scops/pkg/log"
)

func main() {
	var flagConfigFile, flagSecretsFile string
	var flagGops bool
	flag.StringVar(&flagConfigFile, "config", "./config.json", "Overwrite the default configuration with the one in `config.json`")
	flag.StringVar(&flagSecretsFile, "secrets", "", "Path to a bcrypt credentials file protecting the status API with HTTP Basic Auth; empty leaves it open")
	flag.BoolVar(&flagGops, "gops", false, "Listen via github.com/google/gops/agent (for debugging)")
	flag.Parse()

	if flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			log.Fatalf("gops/agent.Listen failed: %s", err.Error())
		}
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

	var secretsStore *secrets.Store
	if flagSecretsFile != "" {
		secretsStore, err = secrets.Load(flagSecretsFile)
		if err != nil {
			log.Fatalf("loading secrets file: %s", err.Error())
		}
	}

	router := statusapi.NewRouter(store, secretsStore)
	statusServer := &http.Server{
		Addr:         scopsconfig.Keys.StatusAPIAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	metricsServer := metrics.NewServer(scopsconfig.Keys.MetricsAddr)
	metricsServer.Start()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("status API listening at %s...", scopsconfig.Keys.StatusAPIAddr)
		if err := statusServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("status API failed: %s", err.Error())
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	runtimeenv.SystemdNotify(true, "running")
	<-sigs
	runtimeenv.SystemdNotify(false, "shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	statusServer.Shutdown(ctx)
	metricsServer.Shutdown(ctx)

	wg.Wait()
	log.Print("scops-statusd shutdown complete")
}

// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package scopsconfig loads and validates the one configuration record
// shared by every SCOPS binary: the status database path, the order
// directory, scratch/tmp root, delivery root, SMTP target, cluster
// backend selection and the various tuning knobs described in spec
// section 6 ("environment overrides").
package scopsconfig

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"reflect"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*
var schemaFiles embed.FS

func loadSchema(s string) (io.ReadCloser, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}
	return schemaFiles.Open(path.Join(u.Host, u.Path))
}

func init() {
	// url.Parse lower-cases the scheme, so the loader key is lower-case.
	jsonschema.Loaders["embedfs"] = loadSchema
}

// ProgramConfig is the fully resolved configuration for a SCOPS binary.
// Every field can be overridden by an environment variable named
// SCOPS_ followed by its upper-cased json tag, e.g.
// SCOPS_CLUSTER_BACKEND (see ApplyEnvOverrides).
type ProgramConfig struct {
	StatusDB       string   `json:"status_db"`
	OrderDir       string   `json:"order_dir"`
	TmpRoot        string   `json:"tmp_root"`
	DeliveryRoot   string   `json:"delivery_root"`
	PluginDir      string   `json:"plugin_dir"`
	SMTPHost       string   `json:"smtp_host"`
	ErrorEmail     string   `json:"error_email"`
	ErrorBCC       []string `json:"error_bcc"`
	ServerBaseURL  string   `json:"server_base_url"`
	OSNGSeparationFile string `json:"osng_separation_file"`
	JWTSecret      string   `json:"jwt_secret"`
	S3Bucket       string   `json:"s3_bucket"`
	S3Region       string   `json:"s3_region"`
	ClusterBackend string   `json:"cluster_backend"`
	SGEQueue       string   `json:"sge_queue"`
	SGEProject     string   `json:"sge_project"`
	LSFQueue       string   `json:"lsf_queue"`
	SubmitRatePerSec float64 `json:"submit_rate_per_sec"`
	IntakeInterval string   `json:"intake_interval"`
	MetricsAddr    string   `json:"metrics_addr"`
	StatusAPIAddr  string   `json:"status_api_addr"`
	NatsURL        string   `json:"nats_url"`
	LogLevel       string   `json:"loglevel"`
}

// Keys holds the process-wide configuration after Init runs. Every
// package that previously would have read a global constant reads
// this struct instead, threaded in by the caller, not imported as an
// implicit global (see design note on global mutable configuration).
var Keys = ProgramConfig{
	StatusDB:         "./var/status.db",
	OrderDir:         "./var/orders",
	TmpRoot:          "/tmp/scops",
	DeliveryRoot:     "./var/delivery",
	PluginDir:        "./var/plugins",
	SMTPHost:         "localhost:25",
	ClusterBackend:   "local",
	SubmitRatePerSec: 2,
	IntakeInterval:   "1m",
	MetricsAddr:      ":9091",
	StatusAPIAddr:    ":8082",
	LogLevel:         "info",
}

// Init reads flagConfigFile (if it exists), validates it against the
// embedded JSON schema, decodes it on top of the defaults above, then
// applies environment overrides. A missing config file is not an
// error: binaries may run purely off defaults + environment.
func Init(flagConfigFile string) error {
	raw, err := os.ReadFile(flagConfigFile)
	if err != nil {
		if os.IsNotExist(err) {
			return ApplyEnvOverrides(&Keys)
		}
		return fmt.Errorf("scopsconfig: reading %s: %w", flagConfigFile, err)
	}

	s, err := jsonschema.Compile("embedFS://schemas/config.schema.json")
	if err != nil {
		return fmt.Errorf("scopsconfig: compiling schema: %w", err)
	}

	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("scopsconfig: decoding %s: %w", flagConfigFile, err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("scopsconfig: validating %s: %w", flagConfigFile, err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&Keys); err != nil {
		return fmt.Errorf("scopsconfig: unmarshalling %s: %w", flagConfigFile, err)
	}

	return ApplyEnvOverrides(&Keys)
}

// ApplyEnvOverrides walks the exported fields of cfg and, for each one
// whose json tag upper-cased and prefixed with "SCOPS_" matches a set
// environment variable, overwrites the field with the variable's value. Evaluated once at
// start-up.
func ApplyEnvOverrides(cfg *ProgramConfig) error {
	v := reflect.ValueOf(cfg).Elem()
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("json")
		name, _, _ := strings.Cut(tag, ",")
		if name == "" {
			name = field.Name
		}
		envName := "SCOPS_" + strings.ToUpper(name)

		val, ok := os.LookupEnv(envName)
		if !ok {
			continue
		}

		fv := v.Field(i)
		switch fv.Kind() {
		case reflect.String:
			fv.SetString(val)
		case reflect.Float64:
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return fmt.Errorf("scopsconfig: env %s: %w", envName, err)
			}
			fv.SetFloat(f)
		case reflect.Slice:
			fv.Set(reflect.ValueOf(strings.Split(val, ",")))
		default:
			return fmt.Errorf("scopsconfig: env %s: unsupported field kind %s", envName, fv.Kind())
		}
	}

	return nil
}

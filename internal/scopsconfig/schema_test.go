// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package scopsconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitMissingFileUsesDefaults(t *testing.T) {
	Keys = ProgramConfig{StatusDB: "./var/status.db", ClusterBackend: "local"}
	err := Init(filepath.Join(t.TempDir(), "nonexistent.json"))
	require.NoError(t, err)
	require.Equal(t, "local", Keys.ClusterBackend)
}

func TestInitFromFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")
	content := `{"status_db":"./var/status.db","order_dir":"./var/orders","tmp_root":"/tmp/scops","delivery_root":"./var/delivery","cluster_backend":"sge"}`
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o644))

	Keys = ProgramConfig{}
	err := Init(cfgPath)
	require.NoError(t, err)
	require.Equal(t, "sge", Keys.ClusterBackend)
	require.Equal(t, "./var/orders", Keys.OrderDir)
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := ProgramConfig{ClusterBackend: "local", SubmitRatePerSec: 2}
	t.Setenv("SCOPS_CLUSTER_BACKEND", "lsf")
	t.Setenv("SCOPS_SUBMIT_RATE_PER_SEC", "5.5")

	require.NoError(t, ApplyEnvOverrides(&cfg))
	require.Equal(t, "lsf", cfg.ClusterBackend)
	require.Equal(t, 5.5, cfg.SubmitRatePerSec)
}

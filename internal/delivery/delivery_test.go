// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package delivery

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nerc-arf/scops/internal/scopsconfig"
)

func TestFsBackendDeliverCopiesIntoRoot(t *testing.T) {
	srcDir := t.TempDir()
	root := filepath.Join(t.TempDir(), "delivery")

	src := filepath.Join(srcDir, "fl001.zip")
	require.NoError(t, os.WriteFile(src, []byte("zip bytes"), 0o644))

	b := &FsBackend{Root: root}
	dest, err := b.Deliver(context.Background(), src)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "fl001.zip"), dest)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "zip bytes", string(got))
}

func TestFsBackendDeliverCreatesMissingRoot(t *testing.T) {
	srcDir := t.TempDir()
	root := filepath.Join(t.TempDir(), "nested", "delivery")

	src := filepath.Join(srcDir, "fl002.zip")
	require.NoError(t, os.WriteFile(src, []byte("more bytes"), 0o644))

	b := &FsBackend{Root: root}
	_, err := b.Deliver(context.Background(), src)
	require.NoError(t, err)

	info, err := os.Stat(root)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestNewSelectsFsBackendWhenNoBucketConfigured(t *testing.T) {
	cfg := scopsconfig.ProgramConfig{DeliveryRoot: t.TempDir()}
	b, err := New(cfg)
	require.NoError(t, err)
	_, ok := b.(*FsBackend)
	require.True(t, ok)
}

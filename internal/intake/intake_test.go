// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package intake

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingSubmitter struct {
	submitted []string
}

func (r *recordingSubmitter) Submit(ctx context.Context, orderPath string, local bool) error {
	r.submitted = append(r.submitted, orderPath)
	return nil
}

func writeOrder(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestScanSkipsAlreadySubmittedWithoutRestart(t *testing.T) {
	dir := t.TempDir()
	writeOrder(t, dir, "a.cfg", "[DEFAULT]\nsubmitted = true\nconfirmed = true\n")

	sub := &recordingSubmitter{}
	d := &Daemon{OrderDir: dir, Submitter: sub}
	d.scanOnce()

	require.Empty(t, sub.submitted)
}

func TestScanSkipsUnconfirmed(t *testing.T) {
	dir := t.TempDir()
	writeOrder(t, dir, "a.cfg", "[DEFAULT]\nconfirmed = false\n")

	sub := &recordingSubmitter{}
	d := &Daemon{OrderDir: dir, Submitter: sub}
	d.scanOnce()

	require.Empty(t, sub.submitted)
}

func TestScanSkipsUnconfirmedFTPDem(t *testing.T) {
	dir := t.TempDir()
	writeOrder(t, dir, "a.cfg", "[DEFAULT]\nconfirmed = true\nftp_dem = true\nftp_dem_confirmed = false\n")

	sub := &recordingSubmitter{}
	d := &Daemon{OrderDir: dir, Submitter: sub}
	d.scanOnce()

	require.Empty(t, sub.submitted)
}

func TestScanSkipsUnreadyBandRatio(t *testing.T) {
	dir := t.TempDir()
	writeOrder(t, dir, "a.cfg", "[DEFAULT]\nconfirmed = true\nbandratio = true\nbandratioset = false\nbandratiomappedset = false\n")

	sub := &recordingSubmitter{}
	d := &Daemon{OrderDir: dir, Submitter: sub}
	d.scanOnce()

	require.Empty(t, sub.submitted)
}

func TestScanSkipsErroredOrder(t *testing.T) {
	dir := t.TempDir()
	writeOrder(t, dir, "a.cfg", "[DEFAULT]\nconfirmed = true\nhas_error = true\n")

	sub := &recordingSubmitter{}
	d := &Daemon{OrderDir: dir, Submitter: sub}
	d.scanOnce()

	require.Empty(t, sub.submitted)
}

func TestScanDispatchesEligibleOrder(t *testing.T) {
	dir := t.TempDir()
	path := writeOrder(t, dir, "a.cfg", "[DEFAULT]\nconfirmed = true\n")

	sub := &recordingSubmitter{}
	d := &Daemon{OrderDir: dir, Submitter: sub}
	d.scanOnce()

	require.Equal(t, []string{path}, sub.submitted)
}

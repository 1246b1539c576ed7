// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package pipeline

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nerc-arf/scops/internal/statusstore"
	"github.com/nerc-arf/scops/pkg/log"
)

// BuildMasterZip scans mappedDir for every "*.bil.zip" per-line zip,
// writes a zip_contents.txt manifest alongside, and stores them all
// uncompressed into <mappedDir>/<project>_<year><jday>.zip under a
// "<project>_<year><jday>/" prefix.
func BuildMasterZip(mappedDir, project, year, jday string) (string, error) {
	perLineZips, err := filepath.Glob(filepath.Join(mappedDir, "*.bil.zip"))
	if err != nil {
		return "", fmt.Errorf("pipeline: globbing %s: %w", mappedDir, err)
	}

	manifestPath := filepath.Join(mappedDir, "zip_contents.txt")
	manifest, err := os.OpenFile(manifestPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", fmt.Errorf("pipeline: opening manifest %s: %w", manifestPath, err)
	}
	defer manifest.Close()

	archiveName := fmt.Sprintf("%s_%s%s.zip", project, year, jday)
	masterPath := filepath.Join(mappedDir, archiveName)
	prefix := fmt.Sprintf("%s_%s%s", project, year, jday)

	out, err := os.Create(masterPath)
	if err != nil {
		return "", fmt.Errorf("pipeline: creating master zip %s: %w", masterPath, err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	for _, path := range perLineZips {
		if _, err := fmt.Fprintln(manifest, path); err != nil {
			return "", err
		}

		log.Infof("pipeline: adding %s to master zip", path)
		if err := addStored(zw, path, prefix+"/"+filepath.Base(path)); err != nil {
			return "", fmt.Errorf("pipeline: adding %s to master zip: %w", path, err)
		}
	}

	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("pipeline: closing master zip %s: %w", masterPath, err)
	}

	return masterPath, nil
}

func addStored(zw *zip.Writer, srcPath, nameInArchive string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	w, err := zw.CreateHeader(&zip.FileHeader{Name: nameInArchive, Method: zip.Store})
	if err != nil {
		return err
	}

	_, err = io.Copy(w, src)
	return err
}

// MaybeBuildMasterZip implements the full aggregate-completion step:
// if every status file under layout is "complete" or "not
// processing", atomically claim the zip_aggregated flag for
// processingID and, only if this call won the claim, build the master
// zip. Returns the master zip path, or "" if this invocation didn't
// win the race or the order wasn't ready yet.
func MaybeBuildMasterZip(store *statusstore.StatusStore, processingID, statusDir, mappedDir, project, year, jday string) (string, error) {
	done, err := AllStatusFilesDone(statusDir)
	if err != nil {
		return "", err
	}
	if !done {
		return "", nil
	}

	if err := store.EnsureOrder(processingID); err != nil {
		return "", err
	}

	masterPath := filepath.Join(mappedDir, fmt.Sprintf("%s_%s%s.zip", project, year, jday))

	won, err := store.ClaimZipAggregation(processingID, masterPath)
	if err != nil {
		return "", err
	}
	if !won {
		return "", nil
	}

	if _, err := BuildMasterZip(mappedDir, project, year, jday); err != nil {
		return "", err
	}

	return masterPath, nil
}

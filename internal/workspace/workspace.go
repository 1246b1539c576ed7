// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package workspace builds the on-disk layout for a new order and
// resolves the processing id naming scheme.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Layout holds the absolute paths of a workspace's subdirectories.
type Layout struct {
	Root    string
	Level1b string
	IGM     string
	Mapped  string
	DEM     string
	Status  string
	Logs    string
}

// NewLayout derives a Layout from a workspace root.
func NewLayout(root string) Layout {
	return Layout{
		Root:    root,
		Level1b: filepath.Join(root, "level1b"),
		IGM:     filepath.Join(root, "igm"),
		Mapped:  filepath.Join(root, "mapped"),
		DEM:     filepath.Join(root, "dem"),
		Status:  filepath.Join(root, "status"),
		Logs:    filepath.Join(root, "logs"),
	}
}

// ProcessingID builds the synthetic order identifier
// <project>_<year>_<jday>[sortie]_<timestamp>.
func ProcessingID(project, year, jday, sortie string, now time.Time) string {
	stamp := now.Format("20060102150405")
	if sortie != "" {
		return fmt.Sprintf("%s_%s_%s%s_%s", project, year, jday, sortie, stamp)
	}
	return fmt.Sprintf("%s_%s_%s_%s", project, year, jday, stamp)
}

// Build creates the workspace directory tree under root, failing fast
// if root's parent is not writable rather than discovering it partway
// through processing.
func Build(root string) (Layout, error) {
	parent := filepath.Dir(root)
	if err := checkWritable(parent); err != nil {
		return Layout{}, fmt.Errorf("workspace: %s not writable: %w", parent, err)
	}

	layout := NewLayout(root)
	for _, dir := range []string{layout.Root, layout.Level1b, layout.IGM, layout.Mapped, layout.DEM, layout.Status, layout.Logs} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Layout{}, fmt.Errorf("workspace: mkdir %s: %w", dir, err)
		}
	}

	return layout, nil
}

func checkWritable(dir string) error {
	probe := filepath.Join(dir, ".scops-write-check")
	f, err := os.Create(probe)
	if err != nil {
		return err
	}
	f.Close()
	return os.Remove(probe)
}

// SymlinkOrderFile links the order config into the workspace root
// under its original base name, matching
// os.symlink(config, output_location + '/' + basename(config)).
func SymlinkOrderFile(layout Layout, orderPath string) error {
	dest := filepath.Join(layout.Root, filepath.Base(orderPath))
	if _, err := os.Lstat(dest); err == nil {
		return nil
	}
	abs, err := filepath.Abs(orderPath)
	if err != nil {
		return fmt.Errorf("workspace: abs(%s): %w", orderPath, err)
	}
	if err := os.Symlink(abs, dest); err != nil {
		return fmt.Errorf("workspace: symlink %s -> %s: %w", abs, dest, err)
	}
	return nil
}

// SensorFolderKey maps a line name's leading sensor letter to its
// delivery folder key, per original_source's sensor_folder_lookup.
func SensorFolderKey(lineName string) (string, error) {
	if lineName == "" {
		return "", fmt.Errorf("workspace: empty line name")
	}
	switch lineName[0] {
	case 'f', 'h', 'e':
		return "hyperspectral", nil
	case 'o':
		return "owl", nil
	default:
		return "", fmt.Errorf("workspace: no compatible sensor for line %q, must begin with f, e, o or h", lineName)
	}
}

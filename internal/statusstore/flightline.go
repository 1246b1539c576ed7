// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package statusstore

import (
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// StageWaiting is the initial stage every flightline record starts
// in.
const StageWaiting = "Waiting to process"

// Flightline mirrors one row of the flightlines table.
type Flightline struct {
	ID            int64   `db:"id"`
	ProcessingID  string  `db:"processing_id"`
	Name          string  `db:"name"`
	Stage         string  `db:"stage"`
	Progress      int     `db:"progress"`
	FileSize      float64 `db:"filesize"`
	ByteSize      string  `db:"bytesize"`
	Flag          int     `db:"flag"`
	Link          string  `db:"link"`
	ZipSize       float64 `db:"zipsize"`
	ZipByte       string  `db:"zipbyte"`
}

var builder = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// Insert creates a new flightline row in the initial "Waiting to
// process" stage. Idempotent-by-intent, not enforced: callers should
// tolerate and ignore a UNIQUE constraint failure.
func (s *StatusStore) Insert(processingID, name, link string) error {
	_, err := builder.Insert("flightlines").
		Columns("processing_id", "name", "stage", "progress", "filesize", "bytesize", "flag", "link", "zipsize", "zipbyte").
		Values(processingID, name, StageWaiting, 0, 0, "MB", 0, link, 0, "MB").
		RunWith(s.DB).Exec()
	if err != nil {
		return fmt.Errorf("statusstore: insert %s/%s: %w", processingID, name, err)
	}
	return nil
}

// GetStage returns the current stage for a line.
func (s *StatusStore) GetStage(processingID, name string) (string, error) {
	var stage string
	err := builder.Select("stage").From("flightlines").
		Where(sq.Eq{"processing_id": processingID, "name": name}).
		RunWith(s.DB).QueryRow().Scan(&stage)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("statusstore: no record for %s/%s", processingID, name)
	}
	if err != nil {
		return "", fmt.Errorf("statusstore: get_stage %s/%s: %w", processingID, name, err)
	}
	return stage, nil
}

// List returns every flightline row for an order.
func (s *StatusStore) List(processingID string) ([]Flightline, error) {
	query, args, err := builder.Select("id", "processing_id", "name", "stage", "progress", "filesize", "bytesize", "flag", "link", "zipsize", "zipbyte").
		From("flightlines").
		Where(sq.Eq{"processing_id": processingID}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var rows []Flightline
	if err := s.DB.Select(&rows, s.DB.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("statusstore: list %s: %w", processingID, err)
	}
	return rows, nil
}

// UpdateStage sets a line's stage. If stage contains the substring
// "ERROR", the error flag is also set.
func (s *StatusStore) UpdateStage(processingID, name, stage string) error {
	q := builder.Update("flightlines").Set("stage", stage)
	if strings.Contains(stage, "ERROR") {
		q = q.Set("flag", 1)
	}
	_, err := q.Where(sq.Eq{"processing_id": processingID, "name": name}).RunWith(s.DB).Exec()
	if err != nil {
		return fmt.Errorf("statusstore: update_stage %s/%s -> %s: %w", processingID, name, stage, err)
	}
	return nil
}

// UpdateProgress records a line's overall percent and output sizes.
func (s *StatusStore) UpdateProgress(processingID, name string, progress int, fileSize float64, byteSize string, zipSize float64, zipByte string) error {
	_, err := builder.Update("flightlines").
		Set("progress", progress).
		Set("filesize", fileSize).
		Set("bytesize", byteSize).
		Set("zipsize", zipSize).
		Set("zipbyte", zipByte).
		Where(sq.Eq{"processing_id": processingID, "name": name}).
		RunWith(s.DB).Exec()
	if err != nil {
		return fmt.Errorf("statusstore: update_progress %s/%s: %w", processingID, name, err)
	}
	return nil
}

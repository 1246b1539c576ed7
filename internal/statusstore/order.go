// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package statusstore

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// EnsureOrder inserts a zip_aggregated=0 row for processingID if one
// doesn't already exist. Safe to call from every line's pipeline
// process.
func (s *StatusStore) EnsureOrder(processingID string) error {
	_, err := builder.Insert("orders").
		Columns("processing_id", "zip_aggregated", "master_zip_path").
		Values(processingID, 0, "").
		Suffix("ON CONFLICT(processing_id) DO NOTHING").
		RunWith(s.DB).Exec()
	if err != nil {
		return fmt.Errorf("statusstore: ensure_order %s: %w", processingID, err)
	}
	return nil
}

// ClaimZipAggregation atomically flips zip_aggregated from 0 to 1 for
// processingID and reports whether this call was the one that made
// the transition. Every finishing line may independently decide "all
// status files are complete", but only the call whose UPDATE affects
// exactly one row proceeds to build the master zip and send the
// completion e-mail.
func (s *StatusStore) ClaimZipAggregation(processingID, masterZipPath string) (bool, error) {
	query, args, err := builder.Update("orders").
		Set("zip_aggregated", 1).
		Set("master_zip_path", masterZipPath).
		Where(sq.Eq{"processing_id": processingID, "zip_aggregated": 0}).
		ToSql()
	if err != nil {
		return false, err
	}

	res, err := s.DB.Exec(s.DB.Rebind(query), args...)
	if err != nil {
		return false, fmt.Errorf("statusstore: claim_zip_aggregation %s: %w", processingID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("statusstore: claim_zip_aggregation %s: %w", processingID, err)
	}

	return n == 1, nil
}

// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package statusstore is the embedded single-file relational status
// store: one flightlines table holding per-line stage/progress/size
// records, plus an orders table carrying the zip-aggregation
// compare-and-set flag that resolves the completion race between
// concurrently finishing lines.
package statusstore

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/qustavo/sqlhooks/v2"

	"github.com/nerc-arf/scops/pkg/log"
)

var (
	connOnce     sync.Once
	connInstance *StatusStore
	hooksRegistered sync.Once
)

// StatusStore wraps the shared *sqlx.DB handle. Every call opens no
// long-lived transaction of its own: writers may be separate
// processes, each statement commits immediately.
type StatusStore struct {
	DB *sqlx.DB
}

// Connect opens (and migrates) the sqlite database at path, memoized
// for the life of the process.
func Connect(path string) (*StatusStore, error) {
	var err error

	connOnce.Do(func() {
		hooksRegistered.Do(func() {
			sql.Register("sqlite3WithHooks", sqlhooks.Wrap(&sqlite3.SQLiteDriver{}, &queryLogHooks{}))
		})

		var handle *sqlx.DB
		handle, err = sqlx.Open("sqlite3WithHooks", fmt.Sprintf("%s?_foreign_keys=on", path))
		if err != nil {
			return
		}

		// sqlite does not multithread; one connection avoids waiting on
		// its own locks.
		handle.SetMaxOpenConns(1)

		if migErr := migrateUp(path); migErr != nil {
			err = migErr
			return
		}

		connInstance = &StatusStore{DB: handle}
	})

	if err != nil {
		return nil, err
	}
	if connInstance == nil {
		return nil, fmt.Errorf("statusstore: connection not initialized")
	}
	return connInstance, nil
}

// GetStore returns the memoized store, aborting the process if
// Connect was never called successfully.
func GetStore() *StatusStore {
	if connInstance == nil {
		log.Abort("statusstore: GetStore called before Connect")
	}
	return connInstance
}

// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package statusapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nerc-arf/scops/internal/secrets"
	"github.com/nerc-arf/scops/internal/statusstore"
)

// setup connects the process-wide memoized store. Its database lives in
// a directory that is not tied to one test, since every later test
// reuses the connection the first one opened.
func setup(t *testing.T) *statusstore.StatusStore {
	t.Helper()
	dir, err := os.MkdirTemp("", "scops-statusapi-test-")
	require.NoError(t, err)
	s, err := statusstore.Connect(filepath.Join(dir, "status.db"))
	require.NoError(t, err)
	return s
}

func TestGetOrderStatusReturnsAllLines(t *testing.T) {
	store := setup(t)
	require.NoError(t, store.Insert("proj_2024_100_ord1", "fl001", ""))
	require.NoError(t, store.Insert("proj_2024_100_ord1", "fl002", ""))

	handler := NewRouter(store, nil)
	req := httptest.NewRequest(http.MethodGet, "/status/proj_2024_100_ord1", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var lines []statusstore.Flightline
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &lines))
	require.Len(t, lines, 2)
}

func TestGetOrderStatusUnknownOrderIsNotFound(t *testing.T) {
	store := setup(t)

	handler := NewRouter(store, nil)
	req := httptest.NewRequest(http.MethodGet, "/status/does-not-exist", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGetLineStatusReturnsOneLine(t *testing.T) {
	store := setup(t)
	require.NoError(t, store.Insert("proj_2024_100_ord2", "fl010", ""))
	require.NoError(t, store.UpdateStage("proj_2024_100_ord2", "fl010", "aplmask"))

	handler := NewRouter(store, nil)
	req := httptest.NewRequest(http.MethodGet, "/status/proj_2024_100_ord2/fl010", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var fl statusstore.Flightline
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &fl))
	require.Equal(t, "fl010", fl.Name)
	require.Equal(t, "aplmask", fl.Stage)
}

func TestGetLineStatusUnknownLineIsNotFound(t *testing.T) {
	store := setup(t)
	require.NoError(t, store.Insert("proj_2024_100_ord3", "fl020", ""))

	handler := NewRouter(store, nil)
	req := httptest.NewRequest(http.MethodGet, "/status/proj_2024_100_ord3/missing", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRequireAuthRejectsMissingCredentials(t *testing.T) {
	store := setup(t)
	require.NoError(t, store.Insert("proj_2024_100_ord4", "fl030", ""))

	secretsStore, err := secrets.Load(filepath.Join(t.TempDir(), "secrets.json"))
	require.NoError(t, err)
	require.NoError(t, secretsStore.SetPassword("ops", "hunter2"))

	handler := NewRouter(store, secretsStore)
	req := httptest.NewRequest(http.MethodGet, "/status/proj_2024_100_ord4", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/status/proj_2024_100_ord4", nil)
	req.SetBasicAuth("ops", "hunter2")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
}

// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package statusapi is a read-only status query surface: GET
// endpoints over the status store for an order or a single line,
// routed with gorilla/mux.
package statusapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/nerc-arf/scops/internal/secrets"
	"github.com/nerc-arf/scops/internal/statusstore"
	"github.com/nerc-arf/scops/pkg/log"
)

var errNotFound = errors.New("not found")

// API ties a status store to a set of read-only HTTP handlers. Secrets
// is optional: a nil store leaves the endpoints unauthenticated, for
// deployments that put this behind their own reverse-proxy auth.
type API struct {
	Store   *statusstore.StatusStore
	Secrets *secrets.Store
}

func (a *API) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	if a.Secrets == nil {
		return next
	}
	return func(rw http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok || !a.Secrets.Verify(username, password) {
			rw.Header().Set("WWW-Authenticate", `Basic realm="scops status"`)
			writeError(rw, http.StatusUnauthorized, errUnauthorized)
			return
		}
		next(rw, r)
	}
}

var errUnauthorized = errors.New("unauthorized")

// MountRoutes registers the status endpoints on r, one method per
// route.
func (a *API) MountRoutes(r *mux.Router) {
	r.HandleFunc("/status/{processing_id}", a.requireAuth(a.getOrderStatus)).Methods(http.MethodGet)
	r.HandleFunc("/status/{processing_id}/{line}", a.requireAuth(a.getLineStatus)).Methods(http.MethodGet)
}

// NewRouter builds a standalone router for statusapi, wrapped with
// compression and CORS middleware. secretsStore may be nil to leave
// the endpoints open.
func NewRouter(store *statusstore.StatusStore, secretsStore *secrets.Store) http.Handler {
	api := &API{Store: store, Secrets: secretsStore}
	r := mux.NewRouter()
	api.MountRoutes(r)
	r.Use(handlers.CompressHandler)
	r.Use(handlers.CORS(
		handlers.AllowedMethods([]string{http.MethodGet}),
		handlers.AllowedOrigins([]string{"*"})))
	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(rw http.ResponseWriter, status int, err error) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	json.NewEncoder(rw).Encode(errorResponse{Error: err.Error()})
}

func writeJSON(rw http.ResponseWriter, payload interface{}) {
	rw.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(rw).Encode(payload); err != nil {
		log.Errorf("statusapi: encoding response: %v", err)
	}
}

// getOrderStatus returns every line's status for one processing ID.
func (a *API) getOrderStatus(rw http.ResponseWriter, r *http.Request) {
	processingID := mux.Vars(r)["processing_id"]

	lines, err := a.Store.List(processingID)
	if err != nil {
		writeError(rw, http.StatusInternalServerError, err)
		return
	}
	if len(lines) == 0 {
		writeError(rw, http.StatusNotFound, errNotFound)
		return
	}

	writeJSON(rw, lines)
}

// getLineStatus returns one line's status within an order.
func (a *API) getLineStatus(rw http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	processingID, line := vars["processing_id"], vars["line"]

	lines, err := a.Store.List(processingID)
	if err != nil {
		writeError(rw, http.StatusInternalServerError, err)
		return
	}

	for _, fl := range lines {
		if fl.Name == line {
			writeJSON(rw, fl)
			return
		}
	}

	writeError(rw, http.StatusNotFound, errNotFound)
}

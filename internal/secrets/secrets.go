// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package secrets externalizes status API credentials to a
// workspace-level JSON file of bcrypt hashes, checked by comparing a
// submitted password against a stored hash.
package secrets

import (
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"
)

// Store is a username -> bcrypt hash map, persisted as JSON.
type Store struct {
	path   string
	hashes map[string]string
}

// Load reads path, a JSON object of username to bcrypt hash. A
// missing file yields an empty store so a fresh deployment can set
// its first password with SetPassword.
func Load(path string) (*Store, error) {
	s := &Store{path: path, hashes: map[string]string{}}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("secrets: reading %s: %w", path, err)
	}

	if err := json.Unmarshal(raw, &s.hashes); err != nil {
		return nil, fmt.Errorf("secrets: decoding %s: %w", path, err)
	}
	return s, nil
}

// Verify reports whether password matches the stored hash for
// username. A missing username never matches.
func (s *Store) Verify(username, password string) bool {
	hash, ok := s.hashes[username]
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// SetPassword hashes password with bcrypt's default cost and writes
// the store back to disk.
func (s *Store) SetPassword(username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("secrets: hashing password for %s: %w", username, err)
	}

	s.hashes[username] = string(hash)
	return s.save()
}

// DeleteUser removes username from the store, if present.
func (s *Store) DeleteUser(username string) error {
	delete(s.hashes, username)
	return s.save()
}

func (s *Store) save() error {
	raw, err := json.MarshalIndent(s.hashes, "", "  ")
	if err != nil {
		return fmt.Errorf("secrets: encoding %s: %w", s.path, err)
	}
	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		return fmt.Errorf("secrets: writing %s: %w", s.path, err)
	}
	return nil
}

// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestSignedLinkContainsVerifiableToken(t *testing.T) {
	m := New("localhost:25", "https://scops.example.org", "s3cret", "ops@example.org", nil)

	link, err := m.SignedLink("/status/abc123", time.Hour, map[string]interface{}{"processing_id": "abc123"})
	require.NoError(t, err)
	require.Contains(t, link, "https://scops.example.org/status/abc123?token=")

	token := link[strings.Index(link, "token=")+len("token="):]
	parsed, err := jwt.Parse(token, func(*jwt.Token) (interface{}, error) { return m.JWTSecret, nil })
	require.NoError(t, err)
	claims := parsed.Claims.(jwt.MapClaims)
	require.Equal(t, "abc123", claims["processing_id"])
}

func TestSignedLinkAppendsQueryWithAmpersand(t *testing.T) {
	m := New("localhost:25", "https://scops.example.org", "s3cret", "ops@example.org", nil)

	link, err := m.SignedLink("/x?already=1", 0, nil)
	require.NoError(t, err)
	require.Contains(t, link, "?already=1&token=")
}

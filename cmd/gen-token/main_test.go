package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/require"

	"breakdown-api/api"
)

func TestSignTokenIsAcceptedByAuth(t *testing.T) {
	tok, err := signToken("s3cret", "dev-user", "api://aud", "", time.Hour)
	require.NoError(t, err)

	auth, err := api.NewAuth(api.AuthConfig{Audience: "api://aud", TestSecret: []byte("s3cret")})
	require.NoError(t, err)
	userID, err := auth.UserIDFromAuthHeader("Bearer " + tok)
	require.NoError(t, err)
	require.Equal(t, "dev-user", userID)
}

func TestSignTokenRequiresSecret(t *testing.T) {
	_, err := signToken("", "dev-user", "", "", time.Hour)
	require.Error(t, err)
}

func TestSignTokenOmitsEmptyClaims(t *testing.T) {
	tok, err := signToken("s3cret", "dev-user", "", "", time.Hour)
	require.NoError(t, err)

	claims := jwt.MapClaims{}
	_, _, err = jwt.NewParser().ParseUnverified(tok, claims)
	require.NoError(t, err)
	require.NotContains(t, claims, "aud")
	require.NotContains(t, claims, "iss")
}

func TestWriteTokensCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tokens.json")
	require.NoError(t, writeTokens(path, []string{"a", "b"}))
	require.FileExists(t, path)
}

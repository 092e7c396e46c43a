// internal/auth/session_test.go
package auth

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jason-s-yu/arena/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyIssuedToken(t *testing.T) {
	keys, err := GenerateKeys()
	require.NoError(t, err)

	id := uuid.New()
	token, err := NewIssuer(keys.Private, time.Hour).CreateJWT(id)
	require.NoError(t, err)

	got, err := NewVerifier(keys.Public).VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestVerifyRejects(t *testing.T) {
	keys, err := GenerateKeys()
	require.NoError(t, err)
	other, err := GenerateKeys()
	require.NoError(t, err)
	v := NewVerifier(keys.Public)

	foreign, _ := NewIssuer(other.Private, 0).CreateJWT(uuid.New())
	expired, _ := NewIssuer(keys.Private, -time.Minute).CreateJWT(uuid.New())
	hmac, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": uuid.NewString()}).SignedString([]byte("secret"))
	notUUID, _ := jwt.NewWithClaims(jwt.SigningMethodEdDSA, jwt.MapClaims{"sub": "bob"}).SignedString(keys.Private)
	noSub, _ := jwt.NewWithClaims(jwt.SigningMethodEdDSA, jwt.MapClaims{}).SignedString(keys.Private)

	tests := map[string]string{
		"empty":        "",
		"garbage":      "not.a.token",
		"foreign key":  foreign,
		"expired":      expired,
		"hmac":         hmac,
		"non uuid sub": notUUID,
		"missing sub":  noSub,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := v.VerifyToken(token)
			assert.ErrorIs(t, err, models.ErrUnauthenticated)
		})
	}
}

func TestLoadKeys(t *testing.T) {
	keys, err := GenerateKeys()
	require.NoError(t, err)

	dir := t.TempDir()
	privPath := filepath.Join(dir, "key")
	pubPath := filepath.Join(dir, "key.pub")
	require.NoError(t, os.WriteFile(privPath, keys.Private, 0o600))
	require.NoError(t, os.WriteFile(pubPath, keys.Public, 0o644))

	loaded, err := LoadKeys(privPath, pubPath)
	require.NoError(t, err)
	assert.Equal(t, keys.Public, loaded.Public)
	assert.Equal(t, keys.Private, loaded.Private)

	verifyOnly, err := LoadKeys("", pubPath)
	require.NoError(t, err)
	assert.Nil(t, verifyOnly.Private)

	generated, err := LoadKeys("", "")
	require.NoError(t, err)
	assert.Len(t, generated.Public, 32)

	_, err = LoadKeys(privPath, "")
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(pubPath, []byte("short"), 0o644))
	_, err = LoadKeys("", pubPath)
	assert.Error(t, err)
}

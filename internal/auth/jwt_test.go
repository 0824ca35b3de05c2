package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func sign(t *testing.T, key *rsa.PrivateKey, claims AccessClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func validClaims(now time.Time) AccessClaims {
	return AccessClaims{
		StandardClaims: jwt.StandardClaims{
			Subject:   "42",
			Issuer:    "auth",
			Audience:  "cwrk",
			IssuedAt:  now.Unix(),
			NotBefore: now.Unix(),
			ExpiresAt: now.Add(15 * time.Minute).Unix(),
		},
		Name: "Alice",
	}
}

func TestJWTResolver_Valid(t *testing.T) {
	key := newKey(t)
	r := NewJWTResolver(&key.PublicKey, "auth", "cwrk", 30*time.Second)

	id, err := r.ResolveIdentity(context.Background(), Credentials{Token: sign(t, key, validClaims(time.Now()))})
	require.NoError(t, err)
	assert.Equal(t, "42", id.ID)
	assert.Equal(t, "Alice", id.DisplayName)
}

func TestJWTResolver_Rejects(t *testing.T) {
	key := newKey(t)
	other := newKey(t)
	now := time.Now()
	r := NewJWTResolver(&key.PublicKey, "auth", "cwrk", 30*time.Second)

	expired := validClaims(now.Add(-time.Hour))
	wrongIssuer := validClaims(now)
	wrongIssuer.Issuer = "evil"

	cases := map[string]Credentials{
		"anonymous":        {},
		"garbage":          {Token: "not-a-jwt"},
		"foreign key":      {Token: sign(t, other, validClaims(now))},
		"expired":          {Token: sign(t, key, expired)},
		"wrong issuer":     {Token: sign(t, key, wrongIssuer)},
		"subject mismatch": {Token: sign(t, key, validClaims(now)), UserID: "7"},
	}
	for name, creds := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := r.ResolveIdentity(context.Background(), creds)
			assert.True(t, errors.Is(err, ErrUnauthenticated), "got %v", err)
		})
	}
}

func TestJWTResolver_ClockSkew(t *testing.T) {
	key := newKey(t)
	r := NewJWTResolver(&key.PublicKey, "auth", "", 30*time.Second)

	// истёк 10 секунд назад, но в пределах допуска
	c := validClaims(time.Now().Add(-15 * time.Minute).Add(-10 * time.Second))
	_, err := r.ResolveIdentity(context.Background(), Credentials{Token: sign(t, key, c)})
	assert.NoError(t, err)
}

func TestTrustResolver(t *testing.T) {
	var r TrustResolver

	id, err := r.ResolveIdentity(context.Background(), Credentials{Token: "x", UserID: " 7 "})
	require.NoError(t, err)
	assert.Equal(t, "7", id.ID)
	assert.Equal(t, "7", id.DisplayName)

	_, err = r.ResolveIdentity(context.Background(), Credentials{UserID: "7"})
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = r.ResolveIdentity(context.Background(), Credentials{Token: "x"})
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

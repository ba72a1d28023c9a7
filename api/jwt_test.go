package api

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"productcatalog/models"
)

func encodePKCS8(t *testing.T, key any) string {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

func TestNewTokenIssuer(t *testing.T) {
	_, edKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tests := []struct {
		name       string
		config     AuthConfig
		wantExpiry time.Duration
		wantErr    string
	}{
		{name: "ephemeral key", config: AuthConfig{}, wantExpiry: 3 * time.Hour},
		{name: "ed25519 pem", config: AuthConfig{PrivateKeyPEM: encodePKCS8(t, edKey), ExpireDuration: time.Hour}, wantExpiry: time.Hour},
		{name: "rsa pem", config: AuthConfig{PrivateKeyPEM: encodePKCS8(t, rsaKey)}, wantErr: "Fail to parse signing key"},
		{name: "garbage", config: AuthConfig{PrivateKeyPEM: "not a key"}, wantErr: "Fail to parse signing key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issuer, err := NewTokenIssuer(tt.config)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantExpiry, issuer.expiry)
			assert.Equal(t, int(tt.wantExpiry/time.Second), issuer.MaxAge())
		})
	}
}

func TestTokenIssuer_IssueAndParse(t *testing.T) {
	issuer, err := NewTokenIssuer(AuthConfig{Issuer: "catalog", Audience: "web"})
	require.NoError(t, err)
	user := &models.User{ID: uuid.New(), Username: "alice"}

	token, err := issuer.Issue(user)
	require.NoError(t, err)
	claims, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)
	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, user.ID, id)
	assert.Equal(t, "catalog", claims.Issuer)
}

func TestTokenIssuer_ParseRejects(t *testing.T) {
	issuer, err := NewTokenIssuer(AuthConfig{Issuer: "catalog", Audience: "web"})
	require.NoError(t, err)
	other, err := NewTokenIssuer(AuthConfig{Issuer: "catalog", Audience: "web"})
	require.NoError(t, err)
	wrongAudience, err := NewTokenIssuer(AuthConfig{Issuer: "catalog", Audience: "mobile"})
	require.NoError(t, err)
	wrongAudience.key = issuer.key
	user := &models.User{ID: uuid.New(), Username: "alice"}

	expired := *issuer
	expired.now = func() time.Time { return time.Now().Add(-4 * time.Hour) }

	sign := func(t *testing.T, tk *TokenIssuer) string {
		t.Helper()
		token, err := tk.Issue(user)
		require.NoError(t, err)
		return token
	}
	hmacToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "catalog",
		Subject:   user.ID.String(),
		Audience:  jwt.ClaimStrings{"web"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "other key", token: sign(t, other)},
		{name: "wrong audience", token: sign(t, wrongAudience)},
		{name: "expired", token: sign(t, &expired)},
		{name: "hmac", token: hmacToken},
		{name: "garbage", token: "a.b.c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := issuer.Parse(tt.token)
			assert.Error(t, err)
		})
	}
}

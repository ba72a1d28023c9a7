package api

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"productcatalog/models"
)

type AccessClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// UserID 回傳 subject 中的使用者 ID
func (c *AccessClaims) UserID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// TokenIssuer 簽發與驗證 EdDSA 的 access token
type TokenIssuer struct {
	key      ed25519.PrivateKey
	issuer   string
	audience string
	expiry   time.Duration
	now      func() time.Time
}

func NewTokenIssuer(config AuthConfig) (*TokenIssuer, error) {
	const op = "NewTokenIssuer"
	var key ed25519.PrivateKey
	if config.PrivateKeyPEM == "" {
		_, generated, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to generate signing key, err=%w", op, err)
		}
		key = generated
	} else {
		parsed, err := jwt.ParseEdPrivateKeyFromPEM([]byte(config.PrivateKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to parse signing key, err=%w", op, err)
		}
		var ok bool
		if key, ok = parsed.(ed25519.PrivateKey); !ok {
			return nil, fmt.Errorf("[%s] Signing key is not an Ed25519 key", op)
		}
	}
	expiry := config.ExpireDuration
	if expiry <= 0 {
		expiry = 3 * time.Hour
	}
	return &TokenIssuer{
		key:      key,
		issuer:   config.Issuer,
		audience: config.Audience,
		expiry:   expiry,
		now:      time.Now,
	}, nil
}

func (t *TokenIssuer) Issue(user *models.User) (string, error) {
	const op = "TokenIssuer.Issue"
	now := t.now()
	claims := AccessClaims{
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(t.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    t.issuer,
			Subject:   user.ID.String(),
			ID:        uuid.NewString(),
		},
	}
	if t.audience != "" {
		claims.Audience = jwt.ClaimStrings{t.audience}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(t.key)
	if err != nil {
		return "", fmt.Errorf("[%s] Fail to sign token, err=%w", op, err)
	}
	return signed, nil
}

func (t *TokenIssuer) Parse(tokenString string) (*AccessClaims, error) {
	const op = "TokenIssuer.Parse"
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}
	if t.audience != "" {
		opts = append(opts, jwt.WithAudience(t.audience))
	}
	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(*jwt.Token) (any, error) {
		return t.key.Public(), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("[%s] err=%w", op, err)
	}
	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("[%s] err=%w", op, errors.New("token claims are invalid"))
	}
	return claims, nil
}

// MaxAge 是 access token cookie 的秒數
func (t *TokenIssuer) MaxAge() int {
	return int(t.expiry / time.Second)
}

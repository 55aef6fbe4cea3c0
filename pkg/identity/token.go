package identity

import (
	"errors"
	"time"

	tokenstore "ChatPane/pkg/token"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrRevoked      = errors.New("token has been revoked (logout)")
)

// Claims is what an access token asserts.
type Claims struct {
	Subject   string
	JTI       string
	ExpiresAt time.Time
}

// Issuer signs and verifies HS256 access tokens.
type Issuer struct {
	key     []byte
	ttl     time.Duration
	revoked *tokenstore.Revocations
}

func NewIssuer(key []byte, ttl time.Duration, revoked *tokenstore.Revocations) *Issuer {
	return &Issuer{key: key, ttl: ttl, revoked: revoked}
}

func (i *Issuer) Issue(subject string) (string, Claims, error) {
	c := Claims{
		Subject:   subject,
		JTI:       uuid.NewString(),
		ExpiresAt: time.Now().Add(i.ttl),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   c.Subject,
		ID:        c.JTI,
		ExpiresAt: jwt.NewNumericDate(c.ExpiresAt),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	})
	signed, err := token.SignedString(i.key)
	if err != nil {
		return "", Claims{}, err
	}
	return signed, c, nil
}

// Parse verifies signature, expiry and revocation.
func (i *Issuer) Parse(tokenStr string) (Claims, error) {
	var rc jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenStr, &rc, func(t *jwt.Token) (interface{}, error) {
		return i.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid || rc.Subject == "" {
		return Claims{}, ErrInvalidToken
	}
	if i.revoked.IsRevoked(rc.ID) {
		return Claims{}, ErrRevoked
	}
	c := Claims{Subject: rc.Subject, JTI: rc.ID}
	if rc.ExpiresAt != nil {
		c.ExpiresAt = rc.ExpiresAt.Time
	}
	return c, nil
}

func (i *Issuer) Revoke(c Claims) {
	i.revoked.Revoke(c.JTI, c.ExpiresAt)
}

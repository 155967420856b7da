package devserver

import (
	"crypto/rand"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var errInvalidToken = errors.New("invalid token")

const tokenLifetime = 24 * time.Hour

// sessionClaims is what the dev server packs into a bearer token. Clients
// treat the token as opaque; only the server ever parses it.
type sessionClaims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}

// tokenIssuer signs and validates HS256 session tokens.
type tokenIssuer struct {
	secret []byte
}

func newTokenIssuer() *tokenIssuer {
	secret := make([]byte, 32)
	rand.Read(secret)
	return &tokenIssuer{secret: secret}
}

// issue returns a signed token for the user. The jti claim identifies the
// session for logout revocation.
func (ti *tokenIssuer) issue(userID int64) (token string, jti string, err error) {
	jti = uuid.NewString()
	claims := sessionClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenLifetime)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.secret)
	if err != nil {
		return "", "", err
	}
	return token, jti, nil
}

func (ti *tokenIssuer) validate(token string) (*sessionClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &sessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errInvalidToken
		}
		return ti.secret, nil
	})
	if err != nil {
		return nil, errInvalidToken
	}
	claims, ok := parsed.Claims.(*sessionClaims)
	if !ok || !parsed.Valid {
		return nil, errInvalidToken
	}
	return claims, nil
}

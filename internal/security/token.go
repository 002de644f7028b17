package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// SessionClaims are carried by tokens the identity provider mints for the
// web session. This service only verifies them.
type SessionClaims struct {
	DisplayName string `json:"name"`
	jwt.RegisteredClaims
}

// RTMClaims are carried by the short-lived credential this service mints for
// the broadcast channel handshake.
type RTMClaims struct {
	DisplayName string `json:"name"`
	Scope       string `json:"scope"`
	jwt.RegisteredClaims
}

const rtmScope = "rtm"

type Tokens struct {
	secret []byte
	rtmTTL time.Duration
}

func NewTokens(secret string, rtmTTL time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), rtmTTL: rtmTTL}
}

func (t *Tokens) ParseSession(tokenStr string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	tok, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return t.secret, nil
	})
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// MintRTM issues the broadcast-channel credential: same user identity,
// narrow scope, short expiry.
func (t *Tokens) MintRTM(userID, displayName string) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(t.rtmTTL)
	claims := RTMClaims{
		DisplayName: displayName,
		Scope:       rtmScope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(t.secret)
	return signed, exp, err
}

func (t *Tokens) ParseRTM(tokenStr string) (*RTMClaims, error) {
	claims := &RTMClaims{}
	tok, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return t.secret, nil
	})
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || claims.Scope != rtmScope {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

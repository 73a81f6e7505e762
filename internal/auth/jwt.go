// Package auth issues and validates device JWT tokens.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DeviceRole is the role claim carried by device tokens.
const DeviceRole = "device"

// defaultTokenTTL is how long a device token stays valid.
const defaultTokenTTL = 24 * time.Hour

var ErrInvalidToken = errors.New("auth: invalid token")

// Claims represents the claims in a bridge JWT token.
type Claims struct {
	DeviceID string `json:"device_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator signs and validates tokens with a shared HMAC secret.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
}

// New creates an authenticator. A zero ttl selects the default.
func New(secret string, ttl time.Duration) *Authenticator {
	if ttl == 0 {
		ttl = defaultTokenTTL
	}
	return &Authenticator{secret: []byte(secret), ttl: ttl}
}

// GenerateDeviceToken generates a JWT token for device authentication.
func (a *Authenticator) GenerateDeviceToken(deviceID string) (string, time.Time, error) {
	expiresAt := time.Now().Add(a.ttl)
	claims := &Claims{
		DeviceID: deviceID,
		Role:     DeviceRole,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateToken validates a token and returns its claims.
func (a *Authenticator) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

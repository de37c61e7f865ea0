package utils // package utils provides helper functions for token creation and hashing

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
)

// SessionClaims is the payload of a session token.  ID carries the user id
// the token was issued for; expiry and issue time use the registered claims.
type SessionClaims struct {
	ID uint64 `json:"id"`
	jwt.RegisteredClaims
}

// SessionToken is a signed token along with its expiry.
type SessionToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// ErrMissingSubject is returned when a verified token carries no user id.
var ErrMissingSubject = fmt.Errorf("%w: token has no user id", jwt.ErrTokenInvalidClaims)

// SignToken builds and signs an HS256 session token for userID valid for
// ttl.  It is a pure function of its inputs and the current time.
func SignToken(secret string, userID uint64, ttl time.Duration) (SessionToken, error) {
	if secret == "" {
		return SessionToken{}, errors.New("empty signing secret")
	}
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := SessionClaims{
		ID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return SessionToken{}, err
	}
	return SessionToken{Token: signed, Exp: exp}, nil
}

// ParseToken verifies signature, algorithm and expiry of raw and returns the
// user id it was issued for.  Errors wrap the jwt package sentinels so
// callers can tell expired tokens from tampered ones.
func ParseToken(secret, raw string) (uint64, error) {
	var claims SessionClaims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		// Reject anything but HMAC so a token cannot pick its own algorithm.
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: unexpected signing method %v", jwt.ErrTokenSignatureInvalid, t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return 0, err
	}
	if !tok.Valid {
		return 0, jwt.ErrTokenUnverifiable
	}
	if claims.ID == 0 {
		return 0, ErrMissingSubject
	}
	return claims.ID, nil
}

// ParseExpiry parses a token lifetime.  Besides Go durations ("12h",
// "30m") it accepts whole days ("90d") and a bare number of seconds.
func ParseExpiry(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty duration")
	}
	var d time.Duration
	switch {
	case strings.HasSuffix(s, "d"):
		n, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, fmt.Errorf("invalid day count %q", s)
		}
		d = time.Duration(n) * 24 * time.Hour
	default:
		if n, err := strconv.Atoi(s); err == nil {
			d = time.Duration(n) * time.Second
			break
		}
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return 0, err
		}
		d = parsed
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", s)
	}
	return d, nil
}

package qrtoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"qrattend/internal/attendance"
)

// JWTCodec signs tokens with HS256 so a QR code cannot be forged from a
// guessed session id.
type JWTCodec struct {
	key    []byte
	issuer string
}

// NewJWTCodec creates a signing codec.
func NewJWTCodec(key, issuer string) *JWTCodec {
	return &JWTCodec{key: []byte(key), issuer: issuer}
}

// tokenClaims keeps issuedAt and expiresAt at full precision; the
// registered numeric dates only carry whole seconds.
type tokenClaims struct {
	CourseID  string `json:"courseId"`
	SessionID string `json:"sessionId"`
	Issued    string `json:"issuedAt"`
	Expires   string `json:"expiresAt"`
	jwt.RegisteredClaims
}

// Encode signs the token.
func (c *JWTCodec) Encode(tok attendance.Token) (string, error) {
	claims := tokenClaims{
		CourseID:  tok.CourseID,
		SessionID: tok.SessionID,
		Issued:    tok.IssuedAt.UTC().Format(time.RFC3339Nano),
		Expires:   tok.ExpiresAt.UTC().Format(time.RFC3339Nano),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:  c.issuer,
			Subject: tok.SessionID,
			// Rounded up so the library never rejects a token the engine
			// still considers valid.
			ExpiresAt: jwt.NewNumericDate(tok.ExpiresAt.Truncate(time.Second).Add(time.Second)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
}

// Decode verifies the signature and returns the token. A token past its
// registered expiry yields attendance.ErrExpired.
func (c *JWTCodec) Decode(text string) (attendance.Token, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}
	var claims tokenClaims
	_, err := jwt.ParseWithClaims(text, &claims, func(*jwt.Token) (interface{}, error) {
		return c.key, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return attendance.Token{}, attendance.ErrExpired
		}
		return attendance.Token{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	p := payload{CourseID: claims.CourseID, SessionID: claims.SessionID}
	if p.IssuedAt, err = parseTime(claims.Issued); err != nil {
		return attendance.Token{}, err
	}
	if p.ExpiresAt, err = parseTime(claims.Expires); err != nil {
		return attendance.Token{}, err
	}
	return p.token()
}

func parseTime(v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return t, nil
}

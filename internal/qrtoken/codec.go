// Package qrtoken turns attendance tokens into the text carried by a QR
// code and back.
package qrtoken

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"qrattend/internal/attendance"
)

// ErrMalformed is returned when scanned text is not a usable token.
var ErrMalformed = errors.New("malformed token")

var validate = validator.New()

// Codec encodes a token for display and decodes a scanned one.
type Codec interface {
	Encode(tok attendance.Token) (string, error)
	Decode(text string) (attendance.Token, error)
}

// payload mirrors attendance.Token with the constraints a scanned token
// must satisfy before the engine sees it.
type payload struct {
	CourseID  string    `json:"courseId" validate:"required"`
	SessionID string    `json:"sessionId" validate:"required"`
	IssuedAt  time.Time `json:"issuedAt" validate:"required"`
	ExpiresAt time.Time `json:"expiresAt" validate:"required,gtfield=IssuedAt"`
}

func (p payload) token() (attendance.Token, error) {
	if err := validate.Struct(p); err != nil {
		return attendance.Token{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return attendance.Token{
		CourseID:  p.CourseID,
		SessionID: p.SessionID,
		IssuedAt:  p.IssuedAt,
		ExpiresAt: p.ExpiresAt,
	}, nil
}

// JSONCodec is the plain, unsigned encoding: the token's JSON object.
type JSONCodec struct{}

// Encode marshals the token.
func (JSONCodec) Encode(tok attendance.Token) (string, error) {
	b, err := json.Marshal(tok)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Decode parses and validates a JSON token.
func (JSONCodec) Decode(text string) (attendance.Token, error) {
	var p payload
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		return attendance.Token{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return p.token()
}

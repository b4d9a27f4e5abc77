// Package qrcode encodes and decodes the payment QR payload exchanged between
// clients. A payload is a small JSON document tagged with a literal type so
// that foreign QR codes are never mistaken for payment codes.
package qrcode

import (
	"encoding/json"
	"errors"
)

// PayloadType is the literal tag every valid payment payload carries.
const PayloadType = "send_money"

var (
	// ErrMalformed means the raw string is not valid JSON at all.
	ErrMalformed = errors.New("qrcode: malformed payload")
	// ErrWrongSchema means the JSON parsed but is not a payment payload:
	// a required field is missing or the type tag is foreign.
	ErrWrongSchema = errors.New("qrcode: not a payment code")
)

// Payload is the decoded content of a payment QR code.
type Payload struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	UserID   string `json:"userId"`
}

// Encode produces the payload string rendered into a QR image. Stable for
// equal inputs.
func Encode(username, userID string) string {
	b, _ := json.Marshal(Payload{
		Type:     PayloadType,
		Username: username,
		UserID:   userID,
	})
	return string(b)
}

// Decode parses and validates a scanned payload. All failure paths return an
// error value; Decode never panics on hostile input.
func Decode(raw string) (Payload, error) {
	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		// Valid JSON that is not an object (a bare string, a number) is a
		// schema problem, not a parse problem.
		if json.Valid([]byte(raw)) {
			return Payload{}, ErrWrongSchema
		}
		return Payload{}, ErrMalformed
	}
	if p.Type != PayloadType || p.Username == "" || p.UserID == "" {
		return Payload{}, ErrWrongSchema
	}
	return p, nil
}

// Package recipient resolves an ambiguous identifier, a typed username or a
// scanned QR payload, into a concrete payment target.
package recipient

import (
	"errors"
	"fmt"
	"strings"

	"bankpay/internal/domain/models"
	"bankpay/internal/qrcode"
)

// Source records which entry point produced a candidate.
type Source string

const (
	SourceManual Source = "manual"
	SourceQR     Source = "qr"
)

// ErrNotFound means zero users matched, or more than one did. Ambiguity is
// never silently resolved.
var ErrNotFound = errors.New("recipient: user not found")

// Candidate is an unconfirmed, client-held reference to a prospective payment
// target. It lives from resolution to confirmation and is never persisted.
type Candidate struct {
	Username string
	UserID   string
	Source   Source
}

// ResolveByUsername matches the typed username against the known-users list.
// Matching is case-insensitive and exact.
func ResolveByUsername(username string, known []models.User) (*Candidate, error) {
	name := strings.TrimSpace(username)
	if name == "" {
		return nil, ErrNotFound
	}

	var match *models.User
	for i := range known {
		if strings.EqualFold(known[i].Username, name) {
			if match != nil {
				return nil, ErrNotFound
			}
			match = &known[i]
		}
	}
	if match == nil {
		return nil, ErrNotFound
	}

	return &Candidate{
		Username: match.Username,
		UserID:   match.ID,
		Source:   SourceManual,
	}, nil
}

// ResolveFromQR builds a candidate from a scanned payload. The decoded fields
// are trusted as-is; the remote validates the target at submission time.
func ResolveFromQR(raw string) (*Candidate, error) {
	p, err := qrcode.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("recipient: %w", err)
	}
	return &Candidate{
		Username: p.Username,
		UserID:   p.UserID,
		Source:   SourceQR,
	}, nil
}

// Filter returns the users whose username contains the query,
// case-insensitively. An empty query returns the full list.
func Filter(query string, users []models.User) []models.User {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return users
	}
	var out []models.User
	for _, u := range users {
		if strings.Contains(strings.ToLower(u.Username), q) {
			out = append(out, u)
		}
	}
	return out
}

// Package token interprets scan payloads that carry access tokens. The gate
// does not hold signing keys; validation happens upstream, so claims are
// extracted without signature verification and used for logging and
// actuation decisions only.
package token

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNotToken indicates the payload is not a parseable JWT. Ordinary
// barcodes hit this path; it is not a fault.
var ErrNotToken = errors.New("payload is not a token")

// Claims is the decoded JWT claim set
type Claims map[string]any

// Decode parses a scan payload as a JWT without verifying its signature and
// returns the claim set.
func Decode(payload string) (Claims, error) {
	parser := jwt.NewParser()

	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(payload, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotToken, err)
	}

	return Claims(claims), nil
}

// Subject returns the sub claim, if present
func (c Claims) Subject() (string, bool) {
	s, ok := c["sub"].(string)
	return s, ok
}

package session

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// AccessClaims decodes the registered claims of a JWT access token without
// verifying its signature. The backend is the only party that validates
// tokens; the client reads them for display and logging.
func AccessClaims(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}
	return claims, nil
}

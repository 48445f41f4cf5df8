package auth

import (
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"

	"github.com/satriahrh/casava/domain/entities"
)

// The client never holds the signing key, so the signature is not checked.
var parser = jwt.NewParser()

// DecodeIdentity reads a display identity from the token payload.
// A malformed token yields ok=false, never an error past this boundary.
func DecodeIdentity(token string) (*entities.Identity, bool) {
	if token == "" {
		return nil, false
	}

	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, false
	}

	identity := &entities.Identity{
		ID:       stringClaim(claims, "sub"),
		Username: stringClaim(claims, "username"),
		Email:    stringClaim(claims, "email"),
	}
	if identity.ID == "" {
		identity.ID = stringClaim(claims, "user_id")
	}

	if identity.ID == "" && identity.Username == "" && identity.Email == "" {
		return nil, false
	}
	return identity, true
}

func stringClaim(claims jwt.MapClaims, key string) string {
	switch v := claims[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

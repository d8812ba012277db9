package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims holds the claims bb displays for a token that happens to be a JWT.
type TokenClaims struct {
	Subject           string
	PreferredUsername string
	Username          string
	Issuer            string
	Scopes            []string
	ExpiresAt         time.Time
	IssuedAt          time.Time
}

// ParseJWT parses a JWT WITHOUT verifying it. It is only used to show claims in
// status output and never decides whether a credential is usable.
// Returns error only for malformed tokens.
func ParseJWT(tokenString string) (*TokenClaims, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	token, _, err := parser.ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWT: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("failed to extract claims from token")
	}

	tc := &TokenClaims{}
	tc.Subject, _ = claims["sub"].(string)
	tc.PreferredUsername, _ = claims["preferred_username"].(string)
	tc.Username, _ = claims["username"].(string)
	tc.Issuer, _ = claims["iss"].(string)

	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		tc.ExpiresAt = exp.Time
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		tc.IssuedAt = iat.Time
	}

	switch scopes := claims["scopes"].(type) {
	case string:
		tc.Scopes = strings.Fields(scopes)
	case []interface{}:
		for _, s := range scopes {
			if str, ok := s.(string); ok {
				tc.Scopes = append(tc.Scopes, str)
			}
		}
	}

	return tc, nil
}

// ExtractUsername returns preferred_username, falling back to username.
func ExtractUsername(tokenString string) (string, error) {
	claims, err := ParseJWT(tokenString)
	if err != nil {
		return "", err
	}

	if claims.PreferredUsername != "" {
		return claims.PreferredUsername, nil
	}
	if claims.Username != "" {
		return claims.Username, nil
	}

	return "", fmt.Errorf("no username found in token claims")
}

// DisplayExpiry returns the expiry to show for cred: the recorded ExpiresAt, or
// the exp claim when the bearer token is a JWT. ok is false when neither is known.
func DisplayExpiry(cred *Credential) (expiresAt time.Time, ok bool) {
	if cred == nil {
		return time.Time{}, false
	}
	if cred.Kind == KindOAuth && !cred.ExpiresAt.IsZero() {
		return cred.ExpiresAt, true
	}
	if cred.Kind != KindOAuth && cred.Kind != KindPAT {
		return time.Time{}, false
	}

	claims, err := ParseJWT(cred.Secret())
	if err != nil || claims.ExpiresAt.IsZero() {
		return time.Time{}, false
	}
	return claims.ExpiresAt, true
}

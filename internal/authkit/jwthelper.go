package authkit

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenClaims are embedded in the access token. Validity is proven by
// signature and expiry alone; nothing here is looked up in a store.
type AccessTokenClaims struct {
	UserID    string `json:"user_id"`
	UserEmail string `json:"user_email"`
	UserRole  Role   `json:"user_role"`
	jwt.RegisteredClaims
}

// MintAccessToken creates a signed HS256 access token for the identity.
func MintAccessToken(clock Clock, identity Identity, issuer string, signingKey []byte, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(identity.ID) == "" {
		return "", time.Time{}, errors.New("jwt.mint.failure: subject must be non-empty")
	}
	issuedAt := clock.Now().UTC()
	expiresAt := issuedAt.Add(ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessTokenClaims{
		UserID:    identity.ID,
		UserEmail: identity.Email,
		UserRole:  identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   identity.ID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt.Add(-30 * time.Second)),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("jwt.mint.failure: %w", err)
	}
	return signed, expiresAt, nil
}

// ParseAccessToken verifies signature, issuer, and time bounds, returning the
// embedded claims. All failures surface as ErrInvalidToken.
func ParseAccessToken(clock Clock, tokenString string, issuer string, signingKey []byte) (*AccessTokenClaims, error) {
	parsedToken, parseErr := jwt.ParseWithClaims(tokenString, &AccessTokenClaims{}, func(parsed *jwt.Token) (interface{}, error) {
		return signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(func() time.Time {
		return clock.Now()
	}))
	if parseErr != nil || parsedToken == nil || !parsedToken.Valid {
		return nil, fmt.Errorf("jwt.parse.failure: %w", ErrInvalidToken)
	}
	claims, ok := parsedToken.Claims.(*AccessTokenClaims)
	if !ok || claims.Issuer != issuer {
		return nil, fmt.Errorf("jwt.parse.failure: %w", ErrInvalidToken)
	}
	return claims, nil
}

// ExtractBearerToken pulls the token out of an Authorization header value.
// Any shape other than "Bearer <token>" fails identically to an absent header.
func ExtractBearerToken(headerValue string) (string, error) {
	fields := strings.Fields(headerValue)
	if len(fields) != 2 || !strings.EqualFold(fields[0], "Bearer") || fields[1] == "" {
		return "", fmt.Errorf("jwt.bearer.failure: %w", ErrMissingToken)
	}
	return fields[1], nil
}

package authsvc

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mkrupp/homecase-filevault/internal/domain"
)

// ValidateToken validates an authentication token by:
// - Parsing the compact JWT and verifying its RS256 signature
// - Checking issuer and expiration
// - Checking that the subject matches the user id claim
// Returns domain.ErrInvalidAuthToken for any validation failure.
func ValidateToken(_ context.Context, tokenString string, publicKey *rsa.PublicKey) (domain.AuthToken, error) {
	if tokenString == "" {
		return domain.AuthToken{}, domain.ErrInvalidAuthToken
	}

	var claims domain.AuthToken

	_, err := jwt.ParseWithClaims(tokenString, &claims,
		func(*jwt.Token) (any, error) { return publicKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return domain.AuthToken{}, errors.Join(domain.ErrInvalidAuthToken, fmt.Errorf("parse token: %w", err))
	}

	if claims.UserID <= 0 || claims.Subject != strconv.FormatInt(int64(claims.UserID), 10) {
		return domain.AuthToken{}, domain.ErrInvalidAuthToken
	}

	return claims, nil
}

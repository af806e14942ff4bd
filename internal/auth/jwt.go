// Package auth issues and verifies the HS256 tokens that identify admin
// operators.
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/logicaldelete/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims identifies an operator and the rights the admin actions check.
type Claims struct {
	jwt.RegisteredClaims
	UserID    string `json:"uid"`
	Staff     bool   `json:"staff,omitempty"`
	Superuser bool   `json:"superuser,omitempty"`
}

// CanRestore: staff or superuser.
func (c *Claims) CanRestore() bool { return c != nil && (c.Staff || c.Superuser) }

// CanErase: superuser only.
func (c *Claims) CanErase() bool { return c != nil && c.Superuser }

func GenerateToken(c Claims, secretKey []byte, validityDuration time.Duration) (string, error) {
	c.RegisteredClaims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(validityDuration))
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ParseToken verifies tokenString and returns its claims. Every failure
// wraps common.ErrInvalidToken.
func ParseToken(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidToken, err)
	}

	if !token.Valid || claims.UserID == "" {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}

type operatorKey struct{}

// WithOperator stores the authenticated operator in ctx.
func WithOperator(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, operatorKey{}, c)
}

// OperatorFromContext returns the operator stored by WithOperator.
func OperatorFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(operatorKey{}).(*Claims)
	return c, ok && c != nil
}

// Package auth verifies Supabase-issued bearer tokens.
package auth

import "goalbreaker/internal/domain/models"

// JWTVerifier verifies bearer tokens.
type JWTVerifier interface {
	// VerifyToken validates a JWT and returns its claims.
	// Invalid, expired or anonymous tokens yield domain.ErrUnauthorized.
	VerifyToken(tokenString string) (*models.SupabaseClaims, error)

	// Close releases resources held by the verifier.
	Close() error
}

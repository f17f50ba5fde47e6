package auth

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Resolver turns request credentials into an account identity. It accepts
// either a gateway API key or a session token in the Authorization header.
type Resolver struct {
	repo   Repository
	jwt    *JWTManager
	logger *zap.Logger
}

// NewResolver creates a new credential resolver.
func NewResolver(repo Repository, jwtManager *JWTManager, logger *zap.Logger) *Resolver {
	return &Resolver{
		repo:   repo,
		jwt:    jwtManager,
		logger: logger,
	}
}

// Resolve extracts the account identity from an Authorization header value.
// API keys are looked up by hash so the raw key never touches storage.
func (r *Resolver) Resolve(ctx context.Context, authorization string) (string, error) {
	token := strings.TrimSpace(strings.TrimPrefix(authorization, "Bearer "))
	if token == "" {
		return "", ErrMissingCredentials
	}

	if strings.HasPrefix(token, APIKeyPrefix) {
		return r.resolveAPIKey(ctx, token)
	}
	return r.resolveSessionToken(token)
}

func (r *Resolver) resolveAPIKey(ctx context.Context, key string) (string, error) {
	if !IsValidAPIKeyFormat(key) {
		return "", ErrCredentialNotFound
	}

	cred, err := r.repo.FindByKeyHash(ctx, HashAPIKey(key))
	if err != nil {
		return "", err
	}
	if !cred.IsActive {
		return "", ErrCredentialInactive
	}

	// Best effort only. A failed touch must not fail the request.
	if err := r.repo.TouchLastUsed(ctx, cred.ID.String(), time.Now()); err != nil {
		r.logger.Warn("failed to update credential last used",
			zap.String("credential_id", cred.ID.String()),
			zap.Error(err),
		)
	}

	return cred.AccountID, nil
}

func (r *Resolver) resolveSessionToken(token string) (string, error) {
	claims, err := r.jwt.ValidateToken(token)
	if err != nil {
		return "", err
	}
	if claims.AccountID == "" {
		return "", ErrInvalidTokenClaims
	}
	return claims.AccountID, nil
}

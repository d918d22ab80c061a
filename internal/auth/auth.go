// Package auth resolves client access tokens into identity claims.
package auth

import "interview-speech-relay/internal/models"

// Verifier resolves an access token into claims. Implementations decide how
// much (if any) verification happens.
type Verifier interface {
	Verify(accessToken string) (*models.Claims, error)
}

// Insecure trusts any token and resolves it to fixed development claims.
// TODO verify the token and pull real claims out of it.
type Insecure struct{}

func (Insecure) Verify(accessToken string) (*models.Claims, error) {
	return &models.Claims{
		UserID:      "1234",
		Email:       "dev@example.com",
		WorkspaceID: "1234",
		Role:        "member",
	}, nil
}

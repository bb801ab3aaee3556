package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/recipe-finder/internal/auth"
)

// AuthService turns a verified GitHub identity into an application session.
//
//	AuthHandler (HTTP) → AuthService → TokenService (JWT)
//
// There is no user table. The user ID is derived from the GitHub account ID,
// so the same person always lands on the same saved-recipe list.
type AuthService struct {
	tokens *auth.TokenService
	logger *slog.Logger
}

func NewAuthService(tokens *auth.TokenService, logger *slog.Logger) *AuthService {
	return &AuthService{
		tokens: tokens,
		logger: logger,
	}
}

// AuthResult bundles the identity and the issued JWT so the handler can set
// the cookie and respond in one step.
type AuthResult struct {
	UserID string
	Login  string
	Token  string
}

// LoginGitHub issues a token for a GitHub user whose profile was already
// fetched with a valid OAuth code.
func (s *AuthService) LoginGitHub(_ context.Context, ghUser *auth.GitHubUser) (*AuthResult, error) {
	if ghUser == nil || ghUser.ID == 0 {
		return nil, fmt.Errorf("service/auth: GitHub user must not be empty")
	}

	userID := ghUser.UserID()
	token, err := s.tokens.Generate(userID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", userID, err)
	}

	s.logger.Info("user authenticated via GitHub",
		slog.String("userID", userID),
		slog.String("login", ghUser.Login),
	)

	return &AuthResult{
		UserID: userID,
		Login:  ghUser.Login,
		Token:  token,
	}, nil
}

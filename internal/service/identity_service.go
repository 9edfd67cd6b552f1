package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/classhub-api/internal/authz"
	"github.com/noah-isme/classhub-api/internal/models"
	appErrors "github.com/noah-isme/classhub-api/pkg/errors"
)

type tokenValidator interface {
	ValidateToken(tokenString string) (*models.JWTClaims, error)
}

type identityUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// IdentityService resolves bearer tokens into identities. It keeps no
// session state: the account row is re-read on every call so role changes
// and deactivation take effect immediately.
type IdentityService struct {
	tokens tokenValidator
	users  identityUserReader
	logger *zap.Logger
}

// NewIdentityService constructs the resolver.
func NewIdentityService(tokens tokenValidator, users identityUserReader, logger *zap.Logger) *IdentityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdentityService{tokens: tokens, users: users, logger: logger}
}

// Resolve maps a token onto the caller's identity.
func (s *IdentityService) Resolve(ctx context.Context, token string) (*models.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, appErrors.ErrUnauthenticated
	}
	claims, err := s.tokens.ValidateToken(token)
	if err != nil {
		return nil, err
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthenticated, "account no longer exists")
		}
		return nil, appErrors.Storage(err, "failed to resolve identity")
	}
	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrUnauthenticated, "account is inactive")
	}
	if !user.Role.Valid() {
		s.logger.Warn("account has unknown role", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
		return nil, appErrors.Clone(appErrors.ErrUnauthenticated, "account has no usable role")
	}

	identity := user.Identity()
	return &identity, nil
}

// RequireRole fails with Forbidden unless identity holds one of allowed.
func (s *IdentityService) RequireRole(identity *models.Identity, allowed ...models.Role) error {
	return RequireRole(identity, allowed...)
}

// RequireRole is the stateless form used by middleware and services.
func RequireRole(identity *models.Identity, allowed ...models.Role) error {
	if identity == nil {
		return appErrors.ErrUnauthenticated
	}
	if !authz.HasRole(*identity, allowed...) {
		return appErrors.ErrForbidden
	}
	return nil
}

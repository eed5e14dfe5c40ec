package authkit

import (
	"context"
	"errors"
	"time"

	"github.com/tyemirov/humanrecord/internal/identity"
	"github.com/tyemirov/humanrecord/internal/metrics"
	"github.com/tyemirov/humanrecord/internal/users"
	"go.uber.org/zap"
)

var (
	errMissingFrontendCallback = errors.New("authkit.missing_frontend_callback_url")
	errMissingCodec            = errors.New("authkit.missing_token_codec")
	errMissingVerifier         = errors.New("authkit.missing_identity_verifier")
	errMissingDirectory        = errors.New("authkit.missing_user_directory")
)

// ServerConfig configures the login flow.
type ServerConfig struct {
	FrontendCallbackURL string
}

// TokenCodec issues and decodes bearer credentials.
type TokenCodec interface {
	Issue(subjectID string) (string, time.Time, error)
	Decode(token string) (string, error)
}

// IdentityVerifier runs the Google authorization-code exchange.
type IdentityVerifier interface {
	AuthorizationURL() string
	ExchangeCode(ctx context.Context, code string) (identity.ProviderProfile, error)
}

// Dependencies are the collaborators shared by the auth routes and middleware.
type Dependencies struct {
	Codec     TokenCodec
	Verifier  IdentityVerifier
	Directory users.Directory
	Logger    *zap.Logger
	Metrics   metrics.Recorder
}

func (dependencies Dependencies) validate(requireVerifier bool) error {
	if dependencies.Codec == nil {
		return errMissingCodec
	}
	if requireVerifier && dependencies.Verifier == nil {
		return errMissingVerifier
	}
	if dependencies.Directory == nil {
		return errMissingDirectory
	}
	return nil
}

func (dependencies Dependencies) withDefaults() Dependencies {
	if dependencies.Logger == nil {
		dependencies.Logger = zap.NewNop()
	}
	if dependencies.Metrics == nil {
		dependencies.Metrics = metrics.Nop{}
	}
	return dependencies
}

package authkit

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/humanrecord/internal/metrics"
	"github.com/tyemirov/humanrecord/internal/users"
	"go.uber.org/zap"
)

const loginFailedDetail = "authentication failed"

// MountAuthRoutes registers /auth/google, /auth/google/callback, and /auth/me.
func MountAuthRoutes(router gin.IRouter, configuration ServerConfig, dependencies Dependencies) error {
	if configuration.FrontendCallbackURL == "" {
		return errMissingFrontendCallback
	}
	if _, parseErr := url.Parse(configuration.FrontendCallbackURL); parseErr != nil {
		return fmt.Errorf("authkit.frontend_callback_url: %w", parseErr)
	}
	if err := dependencies.validate(true); err != nil {
		return err
	}
	dependencies = dependencies.withDefaults()
	logger := dependencies.Logger

	router.GET("/auth/google", func(contextGin *gin.Context) {
		contextGin.JSON(http.StatusOK, gin.H{"auth_url": dependencies.Verifier.AuthorizationURL()})
	})

	router.GET("/auth/google/callback", func(contextGin *gin.Context) {
		code := contextGin.Query("code")
		profile, exchangeErr := dependencies.Verifier.ExchangeCode(contextGin.Request.Context(), code)
		if exchangeErr != nil {
			rejectLogin(contextGin, dependencies, "auth.callback.exchange_failed", exchangeErr)
			return
		}

		user, resolveErr := users.Resolve(contextGin.Request.Context(), dependencies.Directory, profile)
		if resolveErr != nil {
			rejectLogin(contextGin, dependencies, "auth.callback.resolve_failed", resolveErr)
			return
		}

		token, _, issueErr := dependencies.Codec.Issue(user.ID)
		if issueErr != nil {
			rejectLogin(contextGin, dependencies, "auth.callback.issue_failed", issueErr)
			return
		}

		dependencies.Metrics.Increment(metrics.EventLoginSuccess)
		logger.Info("login completed",
			zap.String("code", "auth.callback.success"),
			zap.String("user_id", user.ID))
		contextGin.Redirect(http.StatusTemporaryRedirect, frontendRedirect(configuration.FrontendCallbackURL, token))
	})

	router.GET("/auth/me", RequireBearer(dependencies), func(contextGin *gin.Context) {
		user, ok := CurrentUser(contextGin)
		if !ok {
			logger.Warn("missing user on context",
				zap.String("code", "auth.me.missing_user"))
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": ErrMissingCredential.Message})
			return
		}
		contextGin.JSON(http.StatusOK, user)
	})

	return nil
}

func rejectLogin(contextGin *gin.Context, dependencies Dependencies, code string, err error) {
	dependencies.Metrics.Increment(metrics.EventLoginFailure)
	dependencies.Logger.Warn("login failed",
		zap.String("code", code),
		zap.Error(err))
	contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": loginFailedDetail})
}

func frontendRedirect(callbackURL string, token string) string {
	parsed, parseErr := url.Parse(callbackURL)
	if parseErr != nil {
		return callbackURL + "?token=" + url.QueryEscape(token)
	}
	query := parsed.Query()
	query.Set("token", token)
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

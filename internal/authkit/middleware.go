package authkit

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/humanrecord/internal/apperr"
	"github.com/tyemirov/humanrecord/internal/metrics"
	"github.com/tyemirov/humanrecord/internal/users"
	"go.uber.org/zap"
)

const currentUserContextKey = "auth_user"

var (
	// ErrMissingCredential reports a request without a bearer credential.
	ErrMissingCredential = apperr.New(apperr.CodeMissingCredential, "Not authenticated")
	// ErrUnknownUser reports a valid credential whose subject no longer exists.
	ErrUnknownUser = apperr.New(apperr.CodeUnknownUser, "User not found")
)

// Authenticate resolves an Authorization header value to a user.
func Authenticate(ctx context.Context, authorizationHeader string, codec TokenCodec, directory users.Directory) (*users.User, error) {
	token, ok := bearerToken(authorizationHeader)
	if !ok {
		return nil, ErrMissingCredential
	}
	subjectID, decodeErr := codec.Decode(token)
	if decodeErr != nil {
		return nil, decodeErr
	}
	user, lookupErr := directory.FindByID(ctx, subjectID)
	if lookupErr != nil {
		return nil, lookupErr
	}
	if user == nil {
		return nil, ErrUnknownUser
	}
	return user, nil
}

// RequireBearer rejects requests without a valid bearer credential and stores
// the resolved user on the context.
func RequireBearer(dependencies Dependencies) gin.HandlerFunc {
	if err := dependencies.validate(false); err != nil {
		panic(err)
	}
	dependencies = dependencies.withDefaults()
	logger := dependencies.Logger

	return func(contextGin *gin.Context) {
		user, authErr := Authenticate(contextGin.Request.Context(), contextGin.GetHeader("Authorization"), dependencies.Codec, dependencies.Directory)
		if authErr != nil {
			code := apperr.CodeOf(authErr)
			if code == "" {
				logger.Error("user lookup failed",
					zap.String("code", "auth.bearer.lookup_error"),
					zap.Error(authErr))
				contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": apperr.MessageOf(authErr)})
				return
			}
			dependencies.Metrics.Increment(rejectionEvent(code))
			logger.Debug("bearer credential rejected",
				zap.String("code", "auth.bearer."+string(code)))
			contextGin.Header("WWW-Authenticate", "Bearer")
			contextGin.AbortWithStatusJSON(apperr.HTTPStatus(authErr), gin.H{"detail": apperr.MessageOf(authErr)})
			return
		}
		contextGin.Set(currentUserContextKey, user)
		contextGin.Next()
	}
}

// CurrentUser returns the user stored by RequireBearer.
func CurrentUser(contextGin *gin.Context) (*users.User, bool) {
	value, found := contextGin.Get(currentUserContextKey)
	if !found {
		return nil, false
	}
	user, ok := value.(*users.User)
	return user, ok && user != nil
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func rejectionEvent(code apperr.Code) string {
	switch code {
	case apperr.CodeMissingCredential:
		return metrics.EventRejectMissing
	case apperr.CodeExpired:
		return metrics.EventRejectExpired
	case apperr.CodeUnknownUser:
		return metrics.EventRejectUnknownUser
	default:
		return metrics.EventRejectInvalid
	}
}

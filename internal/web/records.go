package web

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/humanrecord/internal/apperr"
	"github.com/tyemirov/humanrecord/internal/authkit"
	"github.com/tyemirov/humanrecord/internal/records"
	"go.uber.org/zap"
)

// DefaultMaxAudioBytes caps an upload request body.
const DefaultMaxAudioBytes int64 = 50 << 20

const audioFormField = "audio_file"

var (
	errInvalidBody   = apperr.New(apperr.CodeValidation, "invalid request body")
	errMissingAudio  = apperr.New(apperr.CodeValidation, audioFormField+" is required")
	errAudioTooLarge = apperr.New(apperr.CodeTooLarge, "audio file too large")
)

// RecordService is the record behaviour the HTTP layer depends on.
type RecordService interface {
	Create(ctx context.Context, userID string, input records.CreateInput) (*records.Record, error)
	List(ctx context.Context, userID string) ([]records.Record, error)
	Get(ctx context.Context, userID string, recordID string) (*records.Record, error)
	Update(ctx context.Context, userID string, recordID string, input records.UpdateInput) (*records.Record, error)
	Delete(ctx context.Context, userID string, recordID string) error
	UploadAudio(ctx context.Context, userID string, recordID string, filename string, contentType string, body io.Reader) (*records.Record, error)
	AudioURL(ctx context.Context, userID string, recordID string) (string, error)
}

// RecordRoutesConfig configures MountRecordRoutes.
type RecordRoutesConfig struct {
	Service       RecordService
	Authenticate  gin.HandlerFunc
	Logger        *zap.Logger
	MaxAudioBytes int64
}

type recordHandlers struct {
	service       RecordService
	logger        *zap.Logger
	maxAudioBytes int64
}

// MountRecordRoutes registers the /records endpoints behind Authenticate.
func MountRecordRoutes(router gin.IRouter, configuration RecordRoutesConfig) {
	if configuration.Service == nil {
		panic("record service is required")
	}
	if configuration.Authenticate == nil {
		panic("authentication middleware is required")
	}
	handlers := recordHandlers{
		service:       configuration.Service,
		logger:        configuration.Logger,
		maxAudioBytes: configuration.MaxAudioBytes,
	}
	if handlers.logger == nil {
		handlers.logger = zap.NewNop()
	}
	if handlers.maxAudioBytes <= 0 {
		handlers.maxAudioBytes = DefaultMaxAudioBytes
	}

	group := router.Group("/records", configuration.Authenticate)
	group.POST("", handlers.create)
	group.GET("", handlers.list)
	group.GET("/:id", handlers.get)
	group.PUT("/:id", handlers.update)
	group.DELETE("/:id", handlers.delete)
	group.POST("/:id/upload-audio", handlers.uploadAudio)
	group.GET("/:id/audio", handlers.audio)
}

func (handlers recordHandlers) create(contextGin *gin.Context) {
	userID, ok := handlers.userID(contextGin)
	if !ok {
		return
	}
	var input records.CreateInput
	if err := contextGin.ShouldBindJSON(&input); err != nil {
		handlers.fail(contextGin, "records.create", errInvalidBody)
		return
	}
	record, err := handlers.service.Create(contextGin.Request.Context(), userID, input)
	if err != nil {
		handlers.fail(contextGin, "records.create", err)
		return
	}
	contextGin.JSON(http.StatusOK, record)
}

func (handlers recordHandlers) list(contextGin *gin.Context) {
	userID, ok := handlers.userID(contextGin)
	if !ok {
		return
	}
	listed, err := handlers.service.List(contextGin.Request.Context(), userID)
	if err != nil {
		handlers.fail(contextGin, "records.list", err)
		return
	}
	contextGin.JSON(http.StatusOK, listed)
}

func (handlers recordHandlers) get(contextGin *gin.Context) {
	userID, ok := handlers.userID(contextGin)
	if !ok {
		return
	}
	record, err := handlers.service.Get(contextGin.Request.Context(), userID, contextGin.Param("id"))
	if err != nil {
		handlers.fail(contextGin, "records.get", err)
		return
	}
	contextGin.JSON(http.StatusOK, record)
}

func (handlers recordHandlers) update(contextGin *gin.Context) {
	userID, ok := handlers.userID(contextGin)
	if !ok {
		return
	}
	var input records.UpdateInput
	if err := contextGin.ShouldBindJSON(&input); err != nil {
		handlers.fail(contextGin, "records.update", errInvalidBody)
		return
	}
	record, err := handlers.service.Update(contextGin.Request.Context(), userID, contextGin.Param("id"), input)
	if err != nil {
		handlers.fail(contextGin, "records.update", err)
		return
	}
	contextGin.JSON(http.StatusOK, record)
}

func (handlers recordHandlers) delete(contextGin *gin.Context) {
	userID, ok := handlers.userID(contextGin)
	if !ok {
		return
	}
	if err := handlers.service.Delete(contextGin.Request.Context(), userID, contextGin.Param("id")); err != nil {
		handlers.fail(contextGin, "records.delete", err)
		return
	}
	contextGin.JSON(http.StatusOK, gin.H{"message": "Record deleted successfully"})
}

func (handlers recordHandlers) uploadAudio(contextGin *gin.Context) {
	userID, ok := handlers.userID(contextGin)
	if !ok {
		return
	}
	if contextGin.Request.ContentLength > handlers.maxAudioBytes {
		handlers.fail(contextGin, "records.upload_audio", errAudioTooLarge)
		return
	}
	contextGin.Request.Body = http.MaxBytesReader(contextGin.Writer, contextGin.Request.Body, handlers.maxAudioBytes)

	fileHeader, formErr := contextGin.FormFile(audioFormField)
	if formErr != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(formErr, &tooLarge) {
			handlers.fail(contextGin, "records.upload_audio", errAudioTooLarge)
			return
		}
		handlers.fail(contextGin, "records.upload_audio", errMissingAudio)
		return
	}
	file, openErr := fileHeader.Open()
	if openErr != nil {
		handlers.fail(contextGin, "records.upload_audio", openErr)
		return
	}
	defer func() { _ = file.Close() }()

	record, err := handlers.service.UploadAudio(
		contextGin.Request.Context(),
		userID,
		contextGin.Param("id"),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		file,
	)
	if err != nil {
		handlers.fail(contextGin, "records.upload_audio", err)
		return
	}
	contextGin.JSON(http.StatusOK, gin.H{
		"message":   "Audio file uploaded successfully",
		"audio_url": record.AudioFilePath,
		"record":    record,
	})
}

func (handlers recordHandlers) audio(contextGin *gin.Context) {
	userID, ok := handlers.userID(contextGin)
	if !ok {
		return
	}
	audioURL, err := handlers.service.AudioURL(contextGin.Request.Context(), userID, contextGin.Param("id"))
	if err != nil {
		handlers.fail(contextGin, "records.audio", err)
		return
	}
	contextGin.JSON(http.StatusOK, gin.H{"audio_url": audioURL})
}

func (handlers recordHandlers) userID(contextGin *gin.Context) (string, bool) {
	user, ok := authkit.CurrentUser(contextGin)
	if !ok {
		handlers.logger.Warn("missing user on context",
			zap.String("code", "records.missing_user"))
		contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": authkit.ErrMissingCredential.Message})
		return "", false
	}
	return user.ID, true
}

func (handlers recordHandlers) fail(contextGin *gin.Context, operation string, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		handlers.logger.Error("record request failed",
			zap.String("code", operation+".error"),
			zap.Error(err))
	}
	contextGin.AbortWithStatusJSON(status, gin.H{"detail": apperr.MessageOf(err)})
}

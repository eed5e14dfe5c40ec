package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tyemirov/humanrecord/internal/authkit"
	"github.com/tyemirov/humanrecord/internal/credential"
	"github.com/tyemirov/humanrecord/internal/database"
	"github.com/tyemirov/humanrecord/internal/identity"
	"github.com/tyemirov/humanrecord/internal/metrics"
	"github.com/tyemirov/humanrecord/internal/objectstore"
	"github.com/tyemirov/humanrecord/internal/records"
	"github.com/tyemirov/humanrecord/internal/users"
	"github.com/tyemirov/humanrecord/internal/web"
	"go.uber.org/zap"
)

const serviceVersion = "1.0.0"

var serveHTTP = func(server *http.Server) error {
	return server.ListenAndServe()
}

var buildObjectStore = func(ctx context.Context, configuration ServerConfig) (objectstore.Store, func() error, error) {
	switch configuration.StorageBackend {
	case storageBackendSupabase:
		store, err := objectstore.NewSupabaseStore(objectstore.SupabaseConfig{
			ProjectURL: configuration.SupabaseURL,
			ServiceKey: configuration.SupabaseServiceKey,
			Bucket:     configuration.StorageBucket,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, func() error { return nil }, nil
	case storageBackendGCS:
		store, err := objectstore.NewGCSStore(ctx, configuration.StorageBucket)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		store := objectstore.NewMemoryStore("memory://" + configuration.StorageBucket)
		return store, func() error { return nil }, nil
	}
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "humanrecord",
		Short:   "Voice recording API with Google sign-in, bearer credentials, and audio storage",
		PreRunE: prepareServerConfig,
		RunE:    runServer,
	}

	rootCmd.Flags().String("listen_addr", defaultListenAddr, "HTTP listen address")
	rootCmd.Flags().String("api_prefix", defaultAPIPrefix, "Path prefix for the auth and record routes")
	rootCmd.Flags().String("database_url", "", "Database URL (postgres:// or sqlite://)")
	rootCmd.Flags().String("google_client_id", "", "Google OAuth client ID")
	rootCmd.Flags().String("google_client_secret", "", "Google OAuth client secret")
	rootCmd.Flags().String("google_redirect_uri", "", "OAuth redirect URI registered with Google")
	rootCmd.Flags().String("frontend_callback_url", defaultFrontendCallbackURL, "Frontend URL that receives ?token= after login")
	rootCmd.Flags().String("jwt_signing_key", "", "HMAC signing secret for bearer credentials")
	rootCmd.Flags().String("jwt_algorithm", credential.DefaultAlgorithm, "HMAC algorithm (HS256, HS384, HS512)")
	rootCmd.Flags().Duration("jwt_ttl", credential.DefaultTTL, "Bearer credential lifetime")
	rootCmd.Flags().String("jwt_issuer", defaultJWTIssuer, "Issuer embedded in bearer credentials")
	rootCmd.Flags().Duration("provider_timeout", 0, "Timeout for Google token and profile calls; 0 disables")
	rootCmd.Flags().StringSlice("cors_allowed_origins", defaultCORSOrigins, "Allowed cross-origin hosts; empty disables CORS")
	rootCmd.Flags().String("storage_backend", storageBackendSupabase, "Audio storage backend (supabase, gcs, memory)")
	rootCmd.Flags().String("supabase_url", "", "Supabase project URL")
	rootCmd.Flags().String("supabase_service_key", "", "Supabase service role key")
	rootCmd.Flags().String("storage_bucket", objectstore.DefaultBucket, "Bucket holding audio recordings")
	rootCmd.Flags().Int64("max_audio_bytes", web.DefaultMaxAudioBytes, "Maximum audio upload request size in bytes")

	for _, name := range configKeys {
		_ = viper.BindPFlag(name, rootCmd.Flags().Lookup(name))
	}

	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()

	return rootCmd
}

type contextKey string

const serverConfigContextKey contextKey = "serverConfig"

func prepareServerConfig(command *cobra.Command, arguments []string) error {
	serverConfig, loadErr := LoadServerConfig()
	if loadErr != nil {
		return loadErr
	}
	existingContext := command.Context()
	if existingContext == nil {
		existingContext = context.Background()
	}
	command.SetContext(context.WithValue(existingContext, serverConfigContextKey, serverConfig))
	return nil
}

func runServer(command *cobra.Command, arguments []string) error {
	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	commandContext := command.Context()
	var contextValue any
	if commandContext != nil {
		contextValue = commandContext.Value(serverConfigContextKey)
	}
	serverConfig, ok := contextValue.(ServerConfig)
	if !ok {
		return configError(configCodeUninitializedServerConf, "server configuration not prepared; PreRunE must execute before RunE")
	}

	startupContext := commandContext
	if startupContext == nil {
		startupContext = context.Background()
	}

	store, openErr := database.Open(startupContext, serverConfig.DatabaseURL, &users.User{}, &records.Record{})
	if openErr != nil {
		return fmt.Errorf("%s: %w", configCodeDatabaseInit, openErr)
	}
	defer func() { _ = store.Close() }()
	logger.Info("database ready", zap.String("driver", store.Driver()))

	codec, codecErr := credential.New(credential.Config{
		SigningKey: serverConfig.JWTSigningKey,
		Algorithm:  serverConfig.JWTAlgorithm,
		Issuer:     serverConfig.JWTIssuer,
		TTL:        serverConfig.JWTTTL,
	})
	if codecErr != nil {
		return fmt.Errorf("%s: %w", configCodeTokenCodecInit, codecErr)
	}

	verifier, verifierErr := identity.New(identity.Config{
		ClientID:     serverConfig.GoogleClientID,
		ClientSecret: serverConfig.GoogleClientSecret,
		RedirectURI:  serverConfig.GoogleRedirectURI,
		Timeout:      serverConfig.ProviderTimeout,
	})
	if verifierErr != nil {
		return fmt.Errorf("%s: %w", configCodeVerifierInit, verifierErr)
	}

	objects, closeObjects, objectsErr := buildObjectStore(startupContext, serverConfig)
	if objectsErr != nil {
		return fmt.Errorf("%s: %w", configCodeObjectStoreInit, objectsErr)
	}
	defer func() { _ = closeObjects() }()
	logger.Info("object storage ready",
		zap.String("backend", serverConfig.StorageBackend),
		zap.String("bucket", serverConfig.StorageBucket))

	metricsRecorder := metrics.NewPrometheusMetrics()
	directory := users.NewGormDirectory(store.DB)

	recordService, recordsErr := records.NewService(records.Config{
		DB:      store.DB,
		Objects: objects,
		Logger:  logger,
		Metrics: metricsRecorder,
	})
	if recordsErr != nil {
		return recordsErr
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(zapLoggerMiddleware(logger))

	if len(serverConfig.CORSAllowedOrigins) > 0 {
		corsMiddleware, corsErr := web.ConfigureCORS(logger, serverConfig.CORSAllowedOrigins)
		if corsErr != nil {
			return fmt.Errorf("%s: %w", configCodeInvalidCORSOrigins, corsErr)
		}
		router.Use(corsMiddleware)
	}

	web.MountServiceRoutes(router, web.ServiceInfo{
		Message: "Human Record API",
		Version: serviceVersion,
		Docs:    "/docs",
	}, store, logger)
	router.GET("/metrics", gin.WrapH(metricsRecorder.Handler()))

	authDependencies := authkit.Dependencies{
		Codec:     codec,
		Verifier:  verifier,
		Directory: directory,
		Logger:    logger,
		Metrics:   metricsRecorder,
	}
	api := router.Group(serverConfig.APIPrefix)
	if mountErr := authkit.MountAuthRoutes(api, authkit.ServerConfig{FrontendCallbackURL: serverConfig.FrontendCallbackURL}, authDependencies); mountErr != nil {
		return mountErr
	}
	web.MountRecordRoutes(api, web.RecordRoutesConfig{
		Service:       recordService,
		Authenticate:  authkit.RequireBearer(authDependencies),
		Logger:        logger,
		MaxAudioBytes: serverConfig.MaxAudioBytes,
	})

	server := &http.Server{
		Addr:              serverConfig.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	go func() {
		stopSignals := make(chan os.Signal, 1)
		signal.Notify(stopSignals, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(stopSignals)
		select {
		case <-stopSignals:
		case <-shutdownCtx.Done():
			return
		}
		graceCtx, graceCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		defer graceCancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logger.Error("server shutdown error", zap.String("code", "server.shutdown"), zap.Error(err))
		}
	}()

	logger.Info("listening",
		zap.String("addr", serverConfig.ListenAddr),
		zap.String("api_prefix", serverConfig.APIPrefix))
	if err := serveHTTP(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen error: %w", err)
	}
	return nil
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		startTime := time.Now()
		contextGin.Next()
		duration := time.Since(startTime)
		logger.Info("http",
			zap.String("method", contextGin.Request.Method),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Int("status", contextGin.Writer.Status()),
			zap.String("ip", contextGin.ClientIP()),
			zap.Duration("elapsed", duration),
		)
	}
}

func normalizeAPIPrefix(prefix string) string {
	trimmed := strings.Trim(strings.TrimSpace(prefix), "/")
	if trimmed == "" {
		return ""
	}
	return "/" + trimmed
}

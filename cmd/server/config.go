package main

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/tyemirov/humanrecord/internal/credential"
	"github.com/tyemirov/humanrecord/internal/objectstore"
	"github.com/tyemirov/humanrecord/internal/web"
)

const (
	defaultListenAddr          = ":8000"
	defaultAPIPrefix           = "/api/v1"
	defaultFrontendCallbackURL = "http://localhost:3000/auth/callback"
	defaultJWTIssuer           = "humanrecord"

	storageBackendSupabase = "supabase"
	storageBackendGCS      = "gcs"
	storageBackendMemory   = "memory"

	configCodeMissingDatabaseURL       = "config.missing_database_url"
	configCodeMissingGoogleClientID    = "config.missing_google_client_id"
	configCodeMissingGoogleRedirectURI = "config.missing_google_redirect_uri"
	configCodeInvalidFrontendCallback  = "config.invalid_frontend_callback_url"
	configCodeMissingJWTSigningKey     = "config.missing_jwt_signing_key"
	configCodeInvalidJWTAlgorithm      = "config.invalid_jwt_algorithm"
	configCodeInvalidJWTTTL            = "config.invalid_jwt_ttl"
	configCodeInvalidProviderTimeout   = "config.invalid_provider_timeout"
	configCodeInvalidStorageBackend    = "config.invalid_storage_backend"
	configCodeMissingSupabaseURL       = "config.missing_supabase_url"
	configCodeMissingSupabaseKey       = "config.missing_supabase_service_key"
	configCodeInvalidMaxAudioBytes     = "config.invalid_max_audio_bytes"
	configCodeInvalidCORSOrigins       = "config.invalid_cors_allowed_origins"
	configCodeUninitializedServerConf  = "config.uninitialized_server_config"
	configCodeDatabaseInit             = "config.database_init"
	configCodeTokenCodecInit           = "config.token_codec_init"
	configCodeVerifierInit             = "config.identity_verifier_init"
	configCodeObjectStoreInit          = "config.object_store_init"
)

var defaultCORSOrigins = []string{"http://localhost:3000", "http://localhost:5173"}

var configKeys = []string{
	"listen_addr",
	"api_prefix",
	"database_url",
	"google_client_id",
	"google_client_secret",
	"google_redirect_uri",
	"frontend_callback_url",
	"jwt_signing_key",
	"jwt_algorithm",
	"jwt_ttl",
	"jwt_issuer",
	"provider_timeout",
	"cors_allowed_origins",
	"storage_backend",
	"supabase_url",
	"supabase_service_key",
	"storage_bucket",
	"max_audio_bytes",
}

// ServerConfig is the validated process configuration.
type ServerConfig struct {
	ListenAddr          string
	APIPrefix           string
	DatabaseURL         string
	GoogleClientID      string
	GoogleClientSecret  string
	GoogleRedirectURI   string
	FrontendCallbackURL string
	JWTSigningKey       []byte
	JWTAlgorithm        string
	JWTTTL              time.Duration
	JWTIssuer           string
	ProviderTimeout     time.Duration
	CORSAllowedOrigins  []string
	StorageBackend      string
	SupabaseURL         string
	SupabaseServiceKey  string
	StorageBucket       string
	MaxAudioBytes       int64
}

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

// LoadServerConfig reads settings from viper and validates them.
func LoadServerConfig() (ServerConfig, error) {
	databaseURL := strings.TrimSpace(viper.GetString("database_url"))
	if databaseURL == "" {
		return ServerConfig{}, configError(configCodeMissingDatabaseURL, "database_url must be provided")
	}

	googleClientID := strings.TrimSpace(viper.GetString("google_client_id"))
	if googleClientID == "" {
		return ServerConfig{}, configError(configCodeMissingGoogleClientID, "google_client_id must be provided")
	}

	googleRedirectURI := strings.TrimSpace(viper.GetString("google_redirect_uri"))
	if googleRedirectURI == "" {
		return ServerConfig{}, configError(configCodeMissingGoogleRedirectURI, "google_redirect_uri must be provided")
	}

	frontendCallbackURL := stringOrDefault(viper.GetString("frontend_callback_url"), defaultFrontendCallbackURL)
	if parsed, parseErr := url.Parse(frontendCallbackURL); parseErr != nil || parsed.Scheme == "" || parsed.Host == "" {
		return ServerConfig{}, configError(configCodeInvalidFrontendCallback, "frontend_callback_url must be an absolute URL")
	}

	jwtSigningKey := viper.GetString("jwt_signing_key")
	if jwtSigningKey == "" {
		return ServerConfig{}, configError(configCodeMissingJWTSigningKey, "jwt_signing_key must be provided")
	}

	jwtAlgorithm := strings.ToUpper(stringOrDefault(viper.GetString("jwt_algorithm"), credential.DefaultAlgorithm))
	switch jwtAlgorithm {
	case "HS256", "HS384", "HS512":
	default:
		return ServerConfig{}, configError(configCodeInvalidJWTAlgorithm, "jwt_algorithm must be one of HS256, HS384, HS512")
	}

	jwtTTL := viper.GetDuration("jwt_ttl")
	if jwtTTL < 0 {
		return ServerConfig{}, configError(configCodeInvalidJWTTTL, "jwt_ttl must be greater than zero")
	}
	if jwtTTL == 0 {
		jwtTTL = credential.DefaultTTL
	}

	providerTimeout := viper.GetDuration("provider_timeout")
	if providerTimeout < 0 {
		return ServerConfig{}, configError(configCodeInvalidProviderTimeout, "provider_timeout must not be negative")
	}

	storageBackend := strings.ToLower(stringOrDefault(viper.GetString("storage_backend"), storageBackendSupabase))
	supabaseURL := strings.TrimSpace(viper.GetString("supabase_url"))
	supabaseServiceKey := strings.TrimSpace(viper.GetString("supabase_service_key"))
	switch storageBackend {
	case storageBackendSupabase:
		if supabaseURL == "" {
			return ServerConfig{}, configError(configCodeMissingSupabaseURL, "supabase_url must be provided for the supabase storage backend")
		}
		if supabaseServiceKey == "" {
			return ServerConfig{}, configError(configCodeMissingSupabaseKey, "supabase_service_key must be provided for the supabase storage backend")
		}
	case storageBackendGCS, storageBackendMemory:
	default:
		return ServerConfig{}, configError(configCodeInvalidStorageBackend, "storage_backend must be one of supabase, gcs, memory")
	}

	maxAudioBytes := viper.GetInt64("max_audio_bytes")
	if maxAudioBytes < 0 {
		return ServerConfig{}, configError(configCodeInvalidMaxAudioBytes, "max_audio_bytes must not be negative")
	}
	if maxAudioBytes == 0 {
		maxAudioBytes = web.DefaultMaxAudioBytes
	}

	return ServerConfig{
		ListenAddr:          stringOrDefault(viper.GetString("listen_addr"), defaultListenAddr),
		APIPrefix:           normalizeAPIPrefix(apiPrefixSetting()),
		DatabaseURL:         databaseURL,
		GoogleClientID:      googleClientID,
		GoogleClientSecret:  viper.GetString("google_client_secret"),
		GoogleRedirectURI:   googleRedirectURI,
		FrontendCallbackURL: frontendCallbackURL,
		JWTSigningKey:       []byte(jwtSigningKey),
		JWTAlgorithm:        jwtAlgorithm,
		JWTTTL:              jwtTTL,
		JWTIssuer:           stringOrDefault(viper.GetString("jwt_issuer"), defaultJWTIssuer),
		ProviderTimeout:     providerTimeout,
		CORSAllowedOrigins:  splitOrigins(viper.GetStringSlice("cors_allowed_origins")),
		StorageBackend:      storageBackend,
		SupabaseURL:         supabaseURL,
		SupabaseServiceKey:  supabaseServiceKey,
		StorageBucket:       stringOrDefault(viper.GetString("storage_bucket"), objectstore.DefaultBucket),
		MaxAudioBytes:       maxAudioBytes,
	}, nil
}

// apiPrefixSetting keeps an explicitly empty prefix distinct from an unset one.
func apiPrefixSetting() string {
	if viper.IsSet("api_prefix") {
		return viper.GetString("api_prefix")
	}
	return defaultAPIPrefix
}

func stringOrDefault(value string, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}

// splitOrigins accepts both repeated flags and comma-separated environment values.
func splitOrigins(values []string) []string {
	origins := make([]string, 0, len(values))
	for _, value := range values {
		for _, origin := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
	}
	return origins
}

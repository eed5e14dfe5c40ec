package web

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const corsPreflightMaxAge = 12 * time.Hour

var (
	errNoCORSOrigins   = errors.New("cors.no_origins")
	errWildcardOrigin  = errors.New("cors.wildcard_origin")
	errMalformedOrigin = errors.New("cors.malformed_origin")
)

// Browser clients send the bearer credential in Authorization and read the
// challenge from WWW-Authenticate on 401 responses.
var (
	corsAllowedMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}
	corsAllowedHeaders = []string{"Authorization", "Content-Type", "X-Requested-With"}
	corsExposedHeaders = []string{"WWW-Authenticate", "Content-Type"}
)

// ConfigureCORS admits cross-origin API calls from the listed frontend origins.
func ConfigureCORS(logger *zap.Logger, origins []string) (gin.HandlerFunc, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	allowed, err := normalizeOrigins(origins)
	if err != nil {
		return nil, err
	}
	for _, origin := range allowed {
		if parsed, _ := url.Parse(origin); parsed.Scheme == "http" && !isLoopbackHost(parsed.Hostname()) {
			logger.Warn("plaintext cors origin exposes bearer credentials",
				zap.String("code", "cors.origin.plaintext"),
				zap.String("origin", origin))
		}
	}
	return cors.New(cors.Config{
		AllowOrigins:     allowed,
		AllowMethods:     corsAllowedMethods,
		AllowHeaders:     corsAllowedHeaders,
		ExposeHeaders:    corsExposedHeaders,
		AllowCredentials: true,
		MaxAge:           corsPreflightMaxAge,
	}), nil
}

// normalizeOrigins keeps configuration order and drops duplicates.
func normalizeOrigins(origins []string) ([]string, error) {
	seen := make(map[string]struct{}, len(origins))
	normalized := make([]string, 0, len(origins))
	for _, raw := range origins {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		origin, err := parseOrigin(trimmed)
		if err != nil {
			return nil, err
		}
		if _, duplicate := seen[origin]; duplicate {
			continue
		}
		seen[origin] = struct{}{}
		normalized = append(normalized, origin)
	}
	if len(normalized) == 0 {
		return nil, errNoCORSOrigins
	}
	return normalized, nil
}

// parseOrigin reduces raw to scheme://host[:port], the form browsers send in Origin.
func parseOrigin(raw string) (string, error) {
	if strings.Contains(raw, "*") {
		return "", fmt.Errorf("%w: %s", errWildcardOrigin, raw)
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return "", fmt.Errorf("%w: %s", errMalformedOrigin, raw)
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("%w: %s: scheme must be http or https", errMalformedOrigin, raw)
	}
	if parsed.User != nil || (parsed.Path != "" && parsed.Path != "/") || parsed.RawQuery != "" || parsed.Fragment != "" {
		return "", fmt.Errorf("%w: %s: only scheme, host, and port are allowed", errMalformedOrigin, raw)
	}
	return scheme + "://" + strings.ToLower(parsed.Host), nil
}

func isLoopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

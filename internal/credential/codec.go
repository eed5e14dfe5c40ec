package credential

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tyemirov/humanrecord/internal/apperr"
)

// DefaultTTL is the credential lifetime when Config.TTL is zero.
const DefaultTTL = 30 * time.Minute

// DefaultAlgorithm is used when Config.Algorithm is empty.
const DefaultAlgorithm = "HS256"

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// Now returns the current UTC timestamp.
func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// NewSystemClock returns a Clock backed by time.Now.
func NewSystemClock() Clock {
	return systemClock{}
}

// Config configures the Codec.
type Config struct {
	SigningKey []byte
	Algorithm  string
	Issuer     string
	TTL        time.Duration
	Clock      Clock
}

// Sentinel errors exposed by the codec.
var (
	ErrMissingSigningKey    = errors.New("credential.codec.missing_signing_key")
	ErrUnsupportedAlgorithm = errors.New("credential.codec.unsupported_algorithm")
	ErrEmptySubject         = errors.New("credential.codec.empty_subject")

	ErrInvalidCredential = apperr.New(apperr.CodeInvalidCredential, "invalid credential")
	ErrExpired           = apperr.New(apperr.CodeExpired, "credential expired")
)

// Claims is the payload embedded in every credential.
type Claims struct {
	jwt.RegisteredClaims
}

// Codec issues and decodes signed, time-limited credentials.
type Codec struct {
	signingKey []byte
	method     jwt.SigningMethod
	issuer     string
	ttl        time.Duration
	clock      Clock
}

// New constructs a Codec after validating the supplied configuration.
func New(configuration Config) (*Codec, error) {
	if len(configuration.SigningKey) == 0 {
		return nil, fmt.Errorf("credential.codec.new: %w", ErrMissingSigningKey)
	}
	algorithm := strings.ToUpper(strings.TrimSpace(configuration.Algorithm))
	if algorithm == "" {
		algorithm = DefaultAlgorithm
	}
	method, ok := jwt.GetSigningMethod(algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("credential.codec.new: %s: %w", algorithm, ErrUnsupportedAlgorithm)
	}
	ttl := configuration.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	clock := configuration.Clock
	if clock == nil {
		clock = systemClock{}
	}
	return &Codec{
		signingKey: configuration.SigningKey,
		method:     method,
		issuer:     strings.TrimSpace(configuration.Issuer),
		ttl:        ttl,
		clock:      clock,
	}, nil
}

// TTL reports the configured credential lifetime.
func (codec *Codec) TTL() time.Duration {
	return codec.ttl
}

// Issue signs a credential for subjectID that expires TTL after issuance.
func (codec *Codec) Issue(subjectID string) (string, time.Time, error) {
	if strings.TrimSpace(subjectID) == "" {
		return "", time.Time{}, fmt.Errorf("credential.codec.issue: %w", ErrEmptySubject)
	}
	// NumericDate has second precision; truncating keeps exp-iat equal to the TTL.
	issuedAt := codec.clock.Now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(codec.ttl)
	token := jwt.NewWithClaims(codec.method, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    codec.issuer,
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, signErr := token.SignedString(codec.signingKey)
	if signErr != nil {
		return "", time.Time{}, fmt.Errorf("credential.codec.issue: %w", signErr)
	}
	return signed, expiresAt, nil
}

// Decode verifies tokenString and returns its subject identifier.
func (codec *Codec) Decode(tokenString string) (string, error) {
	if strings.TrimSpace(tokenString) == "" {
		return "", fmt.Errorf("credential.codec.decode: %w", ErrInvalidCredential)
	}
	parsedToken, parseErr := jwt.ParseWithClaims(tokenString, &Claims{}, func(parsed *jwt.Token) (interface{}, error) {
		return codec.signingKey, nil
	}, jwt.WithValidMethods([]string{codec.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time {
			return codec.clock.Now().UTC()
		}))
	if parseErr != nil {
		if errors.Is(parseErr, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("credential.codec.decode: %w", ErrExpired)
		}
		return "", fmt.Errorf("credential.codec.decode: %w", ErrInvalidCredential)
	}
	if parsedToken == nil || !parsedToken.Valid {
		return "", fmt.Errorf("credential.codec.decode: %w", ErrInvalidCredential)
	}
	claims, ok := parsedToken.Claims.(*Claims)
	if !ok || strings.TrimSpace(claims.Subject) == "" {
		return "", fmt.Errorf("credential.codec.decode: %w", ErrInvalidCredential)
	}
	if codec.issuer != "" && claims.Issuer != codec.issuer {
		return "", fmt.Errorf("credential.codec.decode: %w", ErrInvalidCredential)
	}
	return claims.Subject, nil
}

package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tyemirov/humanrecord/internal/apperr"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

const (
	// DefaultAuthURL is Google's v2 authorization endpoint.
	DefaultAuthURL = "https://accounts.google.com/o/oauth2/v2/auth"
	// DefaultUserInfoEndpoint is the base path the userinfo service resolves oauth2/v2/userinfo against.
	DefaultUserInfoEndpoint = "https://www.googleapis.com/"
)

// DefaultScopes are requested on every authorization URL.
var DefaultScopes = []string{"openid", "email", "profile"}

var (
	errMissingClientID    = errors.New("identity.verifier.missing_client_id")
	errMissingRedirectURI = errors.New("identity.verifier.missing_redirect_uri")

	// ErrUpstream marks any failure talking to the identity provider.
	ErrUpstream = apperr.New(apperr.CodeUpstream, "identity provider request failed")
)

// ProviderProfile is the identity data returned by the provider after a code exchange.
type ProviderProfile struct {
	ProviderID string
	Email      string
	Name       string
	Picture    string
}

// Config configures the Verifier. Zero endpoints fall back to Google's.
type Config struct {
	ClientID         string
	ClientSecret     string
	RedirectURI      string
	Scopes           []string
	AuthURL          string
	TokenURL         string
	UserInfoEndpoint string
	// Timeout bounds each exchange; zero leaves outbound calls unbounded.
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Verifier builds authorization URLs and turns authorization codes into provider profiles.
type Verifier struct {
	oauthConfig      *oauth2.Config
	userInfoEndpoint string
	timeout          time.Duration
	httpClient       *http.Client
}

// New validates configuration and constructs a Verifier.
func New(configuration Config) (*Verifier, error) {
	if strings.TrimSpace(configuration.ClientID) == "" {
		return nil, fmt.Errorf("identity.verifier.new: %w", errMissingClientID)
	}
	if strings.TrimSpace(configuration.RedirectURI) == "" {
		return nil, fmt.Errorf("identity.verifier.new: %w", errMissingRedirectURI)
	}
	endpoint := google.Endpoint
	endpoint.AuthURL = DefaultAuthURL
	if configuration.AuthURL != "" {
		endpoint.AuthURL = configuration.AuthURL
	}
	if configuration.TokenURL != "" {
		endpoint.TokenURL = configuration.TokenURL
	}
	// Credentials travel in the form body so the token endpoint is called exactly once.
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	scopes := configuration.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	userInfoEndpoint := configuration.UserInfoEndpoint
	if userInfoEndpoint == "" {
		userInfoEndpoint = DefaultUserInfoEndpoint
	}
	httpClient := configuration.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Verifier{
		oauthConfig: &oauth2.Config{
			ClientID:     configuration.ClientID,
			ClientSecret: configuration.ClientSecret,
			RedirectURL:  configuration.RedirectURI,
			Endpoint:     endpoint,
			Scopes:       scopes,
		},
		userInfoEndpoint: userInfoEndpoint,
		timeout:          configuration.Timeout,
		httpClient:       httpClient,
	}, nil
}

// AuthorizationURL returns the provider consent URL. It performs no network call.
func (verifier *Verifier) AuthorizationURL() string {
	return verifier.oauthConfig.AuthCodeURL("", oauth2.AccessTypeOffline)
}

// ExchangeCode trades code for an access token, then fetches the user's profile with it.
// Each call is attempted once; client disconnects do not cancel them.
func (verifier *Verifier) ExchangeCode(ctx context.Context, code string) (ProviderProfile, error) {
	if strings.TrimSpace(code) == "" {
		return ProviderProfile{}, apperr.New(apperr.CodeValidation, "authorization code is required")
	}
	exchangeCtx := context.WithoutCancel(ctx)
	if verifier.timeout > 0 {
		var cancel context.CancelFunc
		exchangeCtx, cancel = context.WithTimeout(exchangeCtx, verifier.timeout)
		defer cancel()
	}
	exchangeCtx = context.WithValue(exchangeCtx, oauth2.HTTPClient, verifier.httpClient)

	token, exchangeErr := verifier.oauthConfig.Exchange(exchangeCtx, code)
	if exchangeErr != nil {
		return ProviderProfile{}, apperr.Wrap(apperr.CodeUpstream, "token exchange failed", exchangeErr)
	}

	profileClient := oauth2.NewClient(exchangeCtx, oauth2.StaticTokenSource(token))
	service, serviceErr := oauth2api.NewService(exchangeCtx,
		option.WithHTTPClient(profileClient),
		option.WithEndpoint(verifier.userInfoEndpoint))
	if serviceErr != nil {
		return ProviderProfile{}, apperr.Wrap(apperr.CodeUpstream, "profile client setup failed", serviceErr)
	}
	userInfo, profileErr := service.Userinfo.Get().Context(exchangeCtx).Do()
	if profileErr != nil {
		return ProviderProfile{}, apperr.Wrap(apperr.CodeUpstream, "profile fetch failed", profileErr)
	}
	if userInfo == nil || strings.TrimSpace(userInfo.Id) == "" || strings.TrimSpace(userInfo.Email) == "" {
		return ProviderProfile{}, apperr.New(apperr.CodeUpstream, "profile is missing id or email")
	}
	return ProviderProfile{
		ProviderID: userInfo.Id,
		Email:      userInfo.Email,
		Name:       userInfo.Name,
		Picture:    userInfo.Picture,
	}, nil
}

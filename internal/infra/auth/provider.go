// Package auth provides Spotify credentials: the PKCE authorization flow,
// token persistence and authenticated HTTP clients.
package auth

import (
	"context"
	"net/http"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

// ErrNoCredentials is returned when neither a token file nor a refresh token is available.
var ErrNoCredentials = errors.New("no spotify credentials: run the auth command or set a refresh token")

// Scopes are the permissions required to read playlists and control the queue.
var Scopes = []string{
	spotifyauth.ScopePlaylistReadPrivate,
	spotifyauth.ScopePlaylistReadCollaborative,
	spotifyauth.ScopeUserReadPlaybackState,
	spotifyauth.ScopeUserModifyPlaybackState,
	spotifyauth.ScopeUserReadCurrentlyPlaying,
}

// Config represents credential configuration.
type Config struct {
	ClientID     string
	ClientSecret string // Optional with PKCE
	RefreshToken string // Used when the token file is missing
	TokenPath    string
	RedirectURL  string

	// Endpoint overrides, for tests.
	AuthURL  string
	TokenURL string
}

// Provider vends authenticated HTTP clients.
type Provider struct {
	oauth *oauth2.Config
	store *TokenStore
	cfg   Config
}

// NewProvider creates a credential provider.
func NewProvider(cfg Config) *Provider {
	authURL := cfg.AuthURL
	if authURL == "" {
		authURL = spotifyauth.AuthURL
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = spotifyauth.TokenURL
	}

	style := oauth2.AuthStyleInParams
	if cfg.ClientSecret != "" {
		style = oauth2.AuthStyleInHeader
	}

	return &Provider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   authURL,
				TokenURL:  tokenURL,
				AuthStyle: style,
			},
		},
		store: NewTokenStore(cfg.TokenPath),
		cfg:   cfg,
	}
}

// Client returns an HTTP client that refreshes its token automatically and
// persists refreshed tokens to the token file.
func (p *Provider) Client(ctx context.Context) (*http.Client, error) {
	if p.cfg.ClientID == "" {
		return nil, errors.New("spotify client_id is required")
	}

	token, err := p.store.Load()
	switch {
	case err == nil:
		zlog.Info().Msgf("auth: using saved token: path=%s", p.store.Path())
	case errors.Is(err, ErrNoToken) && p.cfg.RefreshToken != "":
		zlog.Info().Msg("auth: using configured refresh token")
		token = &oauth2.Token{RefreshToken: p.cfg.RefreshToken}
	case errors.Is(err, ErrNoToken):
		return nil, ErrNoCredentials
	default:
		return nil, err
	}

	src := &persistingTokenSource{
		base:  p.oauth.TokenSource(ctx, token),
		store: p.store,
		last:  token.AccessToken,
	}
	return oauth2.NewClient(ctx, src), nil
}

// Authorization is a started PKCE authorization.
type Authorization struct {
	URL      string
	State    string
	Verifier string
}

// BeginAuthorization creates the URL the user opens to grant access.
func (p *Provider) BeginAuthorization() Authorization {
	verifier := oauth2.GenerateVerifier()
	state := uuid.New().String()
	return Authorization{
		URL:      p.oauth.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier)),
		State:    state,
		Verifier: verifier,
	}
}

// CompleteAuthorization exchanges the authorization code and saves the token.
func (p *Provider) CompleteAuthorization(ctx context.Context, a Authorization, state, code string) (*oauth2.Token, error) {
	if state != a.State {
		return nil, errors.New("state mismatch")
	}
	if code == "" {
		return nil, errors.New("authorization code is missing")
	}

	token, err := p.oauth.Exchange(ctx, code, oauth2.VerifierOption(a.Verifier))
	if err != nil {
		return nil, errors.Wrap(err, "failed to exchange authorization code")
	}
	if err := p.store.Save(token); err != nil {
		return nil, err
	}
	zlog.Info().Msgf("auth: token saved: path=%s", p.store.Path())
	return token, nil
}

// persistingTokenSource saves the token whenever the access token changes.
type persistingTokenSource struct {
	base  oauth2.TokenSource
	store *TokenStore

	mu   sync.Mutex
	last string
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.base.Token()
	if err != nil {
		return nil, errors.Wrap(err, "failed to refresh token")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if token.AccessToken == s.last {
		return token, nil
	}
	s.last = token.AccessToken

	if err := s.store.Save(token); err != nil {
		zlog.Warn().Msgf("auth: failed to persist refreshed token: error=%v", err)
	} else {
		zlog.Debug().Msgf("auth: refreshed token persisted: expiry=%v", token.Expiry)
	}
	return token, nil
}

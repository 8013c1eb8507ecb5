// Package auth manages the host account's Spotify credentials.
//
// The token blob lives in the settings store so it survives restarts and can
// be rotated by re-running the login flow.
package auth

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

// TokenData is the persisted shape of the host credential.
type TokenData struct {
	AccessToken  string `json:"access_token"`
	ExpiresAt    int64  `json:"access_token_expires"` // epoch milliseconds
	RefreshToken string `json:"refresh_token"`
}

// SettingsStore persists the token blob under a named setting.
type SettingsStore interface {
	JSON(ctx context.Context, name string, dest any) (bool, error)
	SetJSON(ctx context.Context, name string, value any) error
}

// settingName is the settings row holding the token blob.
const settingName = "spotify_access"

// Provider loads the host access token, refreshing it through the Spotify
// accounts service when expired.
type Provider struct {
	cfg    *oauth2.Config
	store  SettingsStore
	logger *log.Logger
	now    func() time.Time
}

// NewProvider creates a Provider for the given OAuth application.
func NewProvider(clientID, clientSecret, redirectURI string, store SettingsStore, logger *log.Logger) *Provider {
	cfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes: []string{
			spotifyauth.ScopeUserReadCurrentlyPlaying,
			spotifyauth.ScopeUserReadPlaybackState,
			spotifyauth.ScopeUserModifyPlaybackState,
		},
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyauth.AuthURL,
			TokenURL: spotifyauth.TokenURL,
		},
	}
	return &Provider{
		cfg:    cfg,
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Token returns a usable access token, or "" when the host account has not
// completed the login flow. An expired token is refreshed first; if the
// refresh fails the stale values are kept and returned, leaving the next
// cycle to try again.
func (p *Provider) Token(ctx context.Context) (string, error) {
	var td TokenData
	ok, err := p.store.JSON(ctx, settingName, &td)
	if err != nil {
		return "", err
	}
	if !ok || td.AccessToken == "" {
		return "", nil
	}

	if p.now().UnixMilli() >= td.ExpiresAt {
		if refreshed := p.refresh(ctx, td); refreshed != nil {
			td = *refreshed
		}
	}
	return td.AccessToken, nil
}

// refresh exchanges the refresh token for new credentials and persists them.
// Fields missing from the response fall back to the previous values. Returns
// nil when the exchange fails.
func (p *Provider) refresh(ctx context.Context, old TokenData) *TokenData {
	src := p.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: old.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		p.logger.Error("refreshing access token", "err", err)
		return nil
	}

	td := TokenData{
		AccessToken:  tok.AccessToken,
		ExpiresAt:    tok.Expiry.UnixMilli(),
		RefreshToken: tok.RefreshToken,
	}
	if td.AccessToken == "" {
		td.AccessToken = old.AccessToken
	}
	if tok.Expiry.IsZero() {
		td.ExpiresAt = old.ExpiresAt
	}
	if td.RefreshToken == "" {
		td.RefreshToken = old.RefreshToken
	}

	if err := p.store.SetJSON(ctx, settingName, td); err != nil {
		p.logger.Error("persisting refreshed token", "err", err)
	}
	return &td
}

// AuthURL returns the authorization URL for the host login flow.
func (p *Provider) AuthURL(state string) string {
	return p.cfg.AuthCodeURL(state)
}

// Exchange trades an authorization code for tokens and persists them.
func (p *Provider) Exchange(ctx context.Context, code string) error {
	tok, err := p.cfg.Exchange(ctx, code)
	if err != nil {
		return err
	}
	td := TokenData{
		AccessToken:  tok.AccessToken,
		ExpiresAt:    tok.Expiry.UnixMilli(),
		RefreshToken: tok.RefreshToken,
	}
	return p.store.SetJSON(ctx, settingName, td)
}

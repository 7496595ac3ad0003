package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"evalgo.org/realmgate/internal/config"
	"evalgo.org/realmgate/models"
)

const discordCDN = "https://cdn.discordapp.com"

// Profile is the identity returned by a provider after a successful login.
type Profile struct {
	ID          string
	Username    string
	GlobalName  string
	AvatarHash  string
	AccessToken string
}

// DisplayName is the global name when set, the username otherwise.
func (p *Profile) DisplayName() string {
	if p.GlobalName != "" {
		return p.GlobalName
	}
	return p.Username
}

// AvatarURL is the CDN URL of the avatar, empty when the user has none.
func (p *Profile) AvatarURL() string {
	if p.AvatarHash == "" {
		return ""
	}
	ext := "png"
	if strings.HasPrefix(p.AvatarHash, "a_") {
		ext = "gif"
	}
	return fmt.Sprintf("%s/avatars/%s/%s.%s", discordCDN, p.ID, p.AvatarHash, ext)
}

// Player normalizes the profile into the stored player shape.
func (p *Profile) Player() *models.Player {
	return &models.Player{
		ID:          p.ID,
		Name:        p.DisplayName(),
		Avatar:      p.AvatarURL(),
		AccessToken: p.AccessToken,
	}
}

// Provider is an OAuth2 identity provider.
type Provider interface {
	Name() string

	// AuthCodeURL is the authorize page the user is redirected to.
	AuthCodeURL(state string) string

	// Exchange trades an authorization code for the user's profile.
	Exchange(ctx context.Context, code string) (*Profile, error)
}

// DiscordProvider logs users in with Discord.
type DiscordProvider struct {
	oauth  *oauth2.Config
	apiURL string
	client *http.Client
}

// NewDiscordProvider creates the provider from the application settings.
func NewDiscordProvider(cfg config.DiscordConfig) *DiscordProvider {
	apiURL := strings.TrimRight(cfg.APIBaseURL, "/")
	return &DiscordProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  apiURL + "/oauth2/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		apiURL: apiURL,
		client: http.DefaultClient,
	}
}

func (d *DiscordProvider) Name() string {
	return "discord"
}

func (d *DiscordProvider) AuthCodeURL(state string) string {
	return d.oauth.AuthCodeURL(state)
}

func (d *DiscordProvider) Exchange(ctx context.Context, code string) (*Profile, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, d.client)

	token, err := d.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.apiURL+"/users/@me", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.oauth.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("profile request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("profile request failed with status %d", resp.StatusCode)
	}

	var payload struct {
		ID         string `json:"id"`
		Username   string `json:"username"`
		GlobalName string `json:"global_name"`
		Avatar     string `json:"avatar"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	if payload.ID == "" {
		return nil, errors.New("profile has no id")
	}

	return &Profile{
		ID:          payload.ID,
		Username:    payload.Username,
		GlobalName:  payload.GlobalName,
		AvatarHash:  payload.Avatar,
		AccessToken: token.AccessToken,
	}, nil
}

var _ Provider = (*DiscordProvider)(nil)

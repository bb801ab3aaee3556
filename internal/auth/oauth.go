package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// UserIDPrefix namespaces user IDs derived from GitHub accounts.
const UserIDPrefix = "github_"

const gitHubUserURL = "https://api.github.com/user"

// GitHubUser is the part of the GitHub /user response we use.
type GitHubUser struct {
	ID        int64  `json:"id"` // stable, never changes
	Login     string `json:"login"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

// UserID is the application user ID for this GitHub account. Saved recipes
// are keyed by it.
func (u *GitHubUser) UserID() string {
	return UserIDPrefix + strconv.FormatInt(u.ID, 10)
}

// GitHubProvider runs the OAuth 2.0 authorization code flow against GitHub.
// The code-for-token exchange happens server to server with the client
// secret, so the GitHub access token never reaches the browser.
type GitHubProvider struct {
	config  *oauth2.Config
	userURL string
}

// NewGitHubProvider creates a provider for an OAuth App registered at
// https://github.com/settings/developers. callbackURL must match the
// app's "Authorization callback URL" exactly.
func NewGitHubProvider(clientID, clientSecret, callbackURL string) *GitHubProvider {
	return &GitHubProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"read:user"},
			Endpoint:     github.Endpoint,
		},
		userURL: gitHubUserURL,
	}
}

// WithEndpoints points the provider at another GitHub installation, such as
// GitHub Enterprise Server or a local stub.
func (p *GitHubProvider) WithEndpoints(authURL, tokenURL, userURL string) *GitHubProvider {
	p.config.Endpoint = oauth2.Endpoint{
		AuthURL:   authURL,
		TokenURL:  tokenURL,
		AuthStyle: oauth2.AuthStyleInParams,
	}
	p.userURL = userURL
	return p
}

// AuthURL returns the GitHub authorization URL. state must be an unguessable
// value that the callback checks against the copy stored in a cookie.
func (p *GitHubProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades the authorization code for an access token and fetches the
// GitHub profile with it.
func (p *GitHubProvider) Exchange(ctx context.Context, code string) (*GitHubUser, error) {
	oauthToken, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}

	// The returned client adds "Authorization: Bearer <token>" to every call.
	client := p.config.Client(ctx, oauthToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userURL, nil)
	if err != nil {
		return nil, fmt.Errorf("auth: building GitHub /user request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: calling GitHub /user API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: GitHub /user API returned status %d", resp.StatusCode)
	}

	var ghUser GitHubUser
	if err := json.NewDecoder(resp.Body).Decode(&ghUser); err != nil {
		return nil, fmt.Errorf("auth: decoding GitHub /user response: %w", err)
	}
	if ghUser.ID == 0 {
		return nil, fmt.Errorf("auth: GitHub returned an invalid user (ID = 0)")
	}
	return &ghUser, nil
}

package auth

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Token is the OAuth credential bundle stored on a connected account.
type Token struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// GoogleApp holds the OAuth application credentials used to mint and
// refresh access tokens for connected Google accounts.
type GoogleApp struct {
	ClientID     string
	ClientSecret string
	Scopes       []string

	endpoint oauth2.Endpoint // zero value selects Google's endpoint
}

// HTTPClient returns an http.Client that attaches the account's access
// token and refreshes it transparently via the refresh token.
func (a GoogleApp) HTTPClient(ctx context.Context, tok Token) *http.Client {
	endpoint := a.endpoint
	if endpoint.TokenURL == "" {
		endpoint = google.Endpoint
	}

	// The store keeps no expiry alongside the access token. A zero expiry
	// would make oauth2 send the stored token forever, so treat it as
	// already stale and let the transport refresh before the first call.
	expiry := tok.Expiry
	if expiry.IsZero() {
		expiry = time.Now().Add(-time.Minute)
	}

	config := &oauth2.Config{
		ClientID:     a.ClientID,
		ClientSecret: a.ClientSecret,
		Endpoint:     endpoint,
		Scopes:       a.Scopes,
	}

	return config.Client(ctx, &oauth2.Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       expiry,
	})
}

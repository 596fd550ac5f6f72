package oauth

import (
	"golang.org/x/oauth2"

	"github.com/GamerLionLeo/CGM-Trakr/internal/config"
)

const (
	authPath  = "/v2/oauth2/login"
	tokenPath = "/v2/oauth2/token" //nolint:gosec // not credentials, just endpoint path
)

var scopes = []string{"offline_access", "egv", "device"}

func NewConfig(dexcom config.Dexcom) *oauth2.Config {
	base := dexcom.BaseURL
	if base == "" {
		base = "https://api.dexcom.com"
	}

	return &oauth2.Config{
		ClientID:     dexcom.ClientID,
		ClientSecret: dexcom.ClientSecret,
		RedirectURL:  dexcom.RedirectURL,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  base + authPath,
			TokenURL: base + tokenPath,
			// Dexcom wants client credentials in the form body, not basic auth.
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

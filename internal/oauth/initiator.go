package oauth

import (
	"golang.org/x/oauth2"

	"github.com/sellerdesk/seller-front/internal/config"
)

// NewConfig builds the oauth2 client configuration for the marketplace
// authorization server
func NewConfig(m config.MarketplaceConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     string(m.ClientID),
		ClientSecret: string(m.ClientSecret),
		RedirectURL:  m.RedirectURI,
		Scopes:       m.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  m.AuthURL,
			TokenURL: m.TokenURL,
		},
	}
}

// Initiator builds the authorization redirect for the PKCE flow. It is
// pure computation over local randomness; the caller persists the
// fallback verifier cookie and issues the HTTP redirect.
type Initiator struct {
	cfg   *oauth2.Config
	codec *StateCodec
}

// Authorization is the result of starting a flow
type Authorization struct {
	URL      string // authorization server redirect target
	State    string // opaque state carried through the redirect
	Verifier string // PKCE verifier, to stash in the fallback cookie
}

// NewInitiator creates an authorization initiator
func NewInitiator(cfg *oauth2.Config, codec *StateCodec) *Initiator {
	return &Initiator{cfg: cfg, codec: codec}
}

// Begin generates a PKCE verifier, encodes it into the state, and builds
// the authorization URL with the S256 challenge
func (i *Initiator) Begin() (*Authorization, error) {
	verifier := oauth2.GenerateVerifier()

	state, err := i.codec.Encode(verifier)
	if err != nil {
		return nil, err
	}

	url := i.cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(verifier),
	)

	return &Authorization{URL: url, State: state, Verifier: verifier}, nil
}

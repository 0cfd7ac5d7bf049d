package gmail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
)

// ErrNoToken is returned when no cached token exists and the consent flow is not allowed
var ErrNoToken = errors.New("no saved OAuth token")

// Authenticator runs the installed-app OAuth flow and keeps token.json up to date
type Authenticator struct {
	CredentialsPath string
	TokenPath       string
	// In and Out are used for the consent prompt
	In  io.Reader
	Out io.Writer
}

// OAuthConfig reads credentials.json
func (a *Authenticator) OAuthConfig() (*oauth2.Config, error) {
	b, err := os.ReadFile(a.CredentialsPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, gmailapi.GmailModifyScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}
	return config, nil
}

// Client returns an HTTP client authorised for the Gmail API.
// A saved token is reused and refreshed; otherwise the consent flow runs when interactive is set.
func (a *Authenticator) Client(ctx context.Context, interactive bool) (*http.Client, error) {
	config, err := a.OAuthConfig()
	if err != nil {
		return nil, err
	}

	tok, err := tokenFromFile(a.TokenPath)
	if err != nil {
		if !interactive {
			return nil, fmt.Errorf("%w at %s: %v", ErrNoToken, a.TokenPath, err)
		}
		tok, err = a.tokenFromWeb(ctx, config)
		if err != nil {
			return nil, err
		}
		if err := saveToken(a.TokenPath, tok); err != nil {
			return nil, err
		}
		fmt.Fprintf(a.Out, "Saving credential file to: %s\n", a.TokenPath)
	}

	src := &savingTokenSource{
		base: config.TokenSource(ctx, tok),
		path: a.TokenPath,
		last: tok.AccessToken,
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(tok, src)), nil
}

// Authorize always runs the consent flow and overwrites the saved token
func (a *Authenticator) Authorize(ctx context.Context) error {
	config, err := a.OAuthConfig()
	if err != nil {
		return err
	}
	tok, err := a.tokenFromWeb(ctx, config)
	if err != nil {
		return err
	}
	if err := saveToken(a.TokenPath, tok); err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "Saving credential file to: %s\n", a.TokenPath)
	return nil
}

// tokenFromWeb requests a token from the web
func (a *Authenticator) tokenFromWeb(ctx context.Context, config *oauth2.Config) (*oauth2.Token, error) {
	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Fprintf(a.Out, "Go to the following link in your browser then type the authorization code: \n%v\n", authURL)

	var authCode string
	if _, err := fmt.Fscan(a.In, &authCode); err != nil {
		return nil, fmt.Errorf("unable to read authorization code: %w", err)
	}

	tok, err := config.Exchange(ctx, authCode)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve token from web: %w", err)
	}
	return tok, nil
}

// savingTokenSource persists refreshed tokens so the next run skips the consent flow
type savingTokenSource struct {
	base oauth2.TokenSource
	path string

	mu   sync.Mutex
	last string
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, fmt.Errorf("token refresh failed, run the auth command again: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if err := saveToken(s.path, tok); err != nil {
			log.Warn().Err(err).Msg("Unable to cache refreshed OAuth token")
		} else {
			log.Debug().Str("path", s.path).Msg("Saved refreshed OAuth token")
		}
	}
	return tok, nil
}

// tokenFromFile retrieves a token from a local file
func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

// saveToken saves a token to a file path
func saveToken(path string, token *oauth2.Token) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("unable to create token directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("unable to cache oauth token: %w", err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(token); err != nil {
		return fmt.Errorf("unable to encode oauth token: %w", err)
	}
	return nil
}

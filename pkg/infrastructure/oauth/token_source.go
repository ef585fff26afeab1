// Package oauth carries bearer-token plumbing for wearable APIs: token
// sources with an explicit force-refresh hook and a transport that
// retries once on 401 after refreshing.
package oauth

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// Token is the credential handed to the transport.
type Token struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// TokenSource returns a valid token. ForceRefresh discards any cached
// token first; sources without refresh capability return an error and
// the caller treats the credential as dead.
//
// Safe for concurrent use.
type TokenSource interface {
	Token(ctx context.Context) (*Token, error)
	ForceRefresh(ctx context.Context) (*Token, error)
}

// ErrNotRefreshable marks a token source whose credential cannot be
// renewed without user intervention.
var ErrNotRefreshable = errors.New("token cannot be refreshed")

type staticSource struct {
	token Token
}

// StaticTokenSource wraps a fixed access token. ForceRefresh fails with
// ErrNotRefreshable.
func StaticTokenSource(accessToken string) TokenSource {
	return &staticSource{token: Token{AccessToken: accessToken}}
}

func (s *staticSource) Token(ctx context.Context) (*Token, error) {
	return &s.token, nil
}

func (s *staticSource) ForceRefresh(ctx context.Context) (*Token, error) {
	return nil, ErrNotRefreshable
}

// OAuth2Source adapts an oauth2.Config plus a stored token into a
// TokenSource. Proactive refresh near expiry is delegated to the oauth2
// package; ForceRefresh expires the cached token so the next exchange
// hits the token endpoint.
type OAuth2Source struct {
	cfg *oauth2.Config

	mu      sync.Mutex
	current *oauth2.Token

	// OnToken is called after every refresh that rotated the access
	// token, so callers can persist the new credential. Optional.
	OnToken func(tok *oauth2.Token)
}

func NewOAuth2Source(cfg *oauth2.Config, tok *oauth2.Token) *OAuth2Source {
	return &OAuth2Source{cfg: cfg, current: tok}
}

func (s *OAuth2Source) Token(ctx context.Context) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokenLocked(ctx)
}

func (s *OAuth2Source) ForceRefresh(ctx context.Context) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current.RefreshToken == "" {
		return nil, ErrNotRefreshable
	}
	s.current.Expiry = time.Now().Add(-time.Minute)
	return s.tokenLocked(ctx)
}

// tokenLocked exchanges through the oauth2 machinery, which refreshes
// only when the current token is expired. Caller holds s.mu.
func (s *OAuth2Source) tokenLocked(ctx context.Context) (*Token, error) {
	tok, err := s.cfg.TokenSource(ctx, s.current).Token()
	if err != nil {
		return nil, err
	}
	rotated := tok.AccessToken != s.current.AccessToken
	if tok.RefreshToken == "" {
		tok.RefreshToken = s.current.RefreshToken
	}
	s.current = tok
	if rotated && s.OnToken != nil {
		s.OnToken(tok)
	}
	return &Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}, nil
}

package oauth

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
)

// Transport is an http.RoundTripper that authenticates every request
// from Source. A 401 triggers one forced refresh and one retry; a
// source that cannot refresh surfaces the 401 to the caller.
type Transport struct {
	Source TokenSource

	// Base makes the actual requests. Defaults to http.DefaultTransport.
	Base http.RoundTripper
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	ctx := req.Context()
	token, err := t.Source.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("oauth: get token: %w", err)
	}

	req2 := cloneRequest(req)
	req2.Header.Set("Authorization", "Bearer "+token.AccessToken)

	resp, err := base.RoundTrip(req2)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	slog.Warn("401 from API, forcing token refresh", "url", req.URL.String())
	token, err = t.Source.ForceRefresh(ctx)
	if err != nil {
		// Surface the 401 so the adapter's auth policy takes over.
		if errors.Is(err, ErrNotRefreshable) {
			return resp, nil
		}
		resp.Body.Close()
		return nil, fmt.Errorf("oauth: force refresh: %w", err)
	}
	resp.Body.Close()
	req2.Header.Set("Authorization", "Bearer "+token.AccessToken)
	return base.RoundTrip(req2)
}

// NewHTTPClient builds an http.Client authenticating through source.
func NewHTTPClient(source TokenSource) *http.Client {
	return &http.Client{Transport: &Transport{Source: source}}
}

func cloneRequest(r *http.Request) *http.Request {
	r2 := new(http.Request)
	*r2 = *r
	r2.Header = make(http.Header, len(r.Header))
	for k, s := range r.Header {
		r2.Header[k] = append([]string(nil), s...)
	}
	return r2
}

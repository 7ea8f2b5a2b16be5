package client

import (
	"net/http"
)

// Transport attaches a fresh bearer token to every request. A request is
// never sent with a token known to be expired. Responses, 401 included,
// are returned unchanged.
type Transport struct {
	client *Client
	base   http.RoundTripper
}

var _ http.RoundTripper = (*Transport)(nil)

// Transport wraps base, or http.DefaultTransport when base is nil
func (c *Client) Transport(base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{client: c, base: base}
}

// HTTPClient returns an http.Client for authenticated API calls
func (c *Client) HTTPClient() *http.Client {
	return &http.Client{
		Transport: c.Transport(nil),
		Timeout:   c.authClient.Timeout,
	}
}

// RoundTrip implements http.RoundTripper
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	tok, err := t.client.Token(req.Context())
	if err != nil {
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, err
	}

	authed := req.Clone(req.Context())
	authed.Header.Set("Authorization", "Bearer "+tok)
	return t.base.RoundTrip(authed)
}

package client

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
)

// Session is the local authentication state of a client: the current access
// token and a cookie jar carrying the httpOnly refresh cookie.
// It implements http.CookieJar so it can be plugged into an http.Client.
type Session struct {
	mu          sync.RWMutex
	accessToken string
	jar         *cookiejar.Jar
}

var _ http.CookieJar = (*Session)(nil)

// NewSession creates an empty, unauthenticated session
func NewSession() *Session {
	return &Session{jar: newJar()}
}

func newJar() *cookiejar.Jar {
	// cookiejar.New only fails on a broken PublicSuffixList, and none is passed.
	jar, _ := cookiejar.New(nil)
	return jar
}

// AccessToken returns the stored access token, or "" when signed out
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// SetAccessToken replaces the stored access token
func (s *Session) SetAccessToken(token string) {
	s.mu.Lock()
	s.accessToken = token
	s.mu.Unlock()
}

// Authenticated reports whether an access token is held
func (s *Session) Authenticated() bool {
	return s.AccessToken() != ""
}

// Clear drops the access token and every stored cookie
func (s *Session) Clear() {
	s.mu.Lock()
	s.accessToken = ""
	s.jar = newJar()
	s.mu.Unlock()
}

// SetCookies implements http.CookieJar
func (s *Session) SetCookies(u *url.URL, cookies []*http.Cookie) {
	s.mu.RLock()
	jar := s.jar
	s.mu.RUnlock()
	jar.SetCookies(u, cookies)
}

// Cookies implements http.CookieJar
func (s *Session) Cookies(u *url.URL) []*http.Cookie {
	s.mu.RLock()
	jar := s.jar
	s.mu.RUnlock()
	return jar.Cookies(u)
}

package apiclient

import "sync"

// TokenStore holds the bearer token of the current login. It is set by
// Login, cleared by Logout and session expiry, and read by every request.
type TokenStore struct {
	mu    sync.RWMutex
	token string
}

// NewTokenStore returns a store holding token, which may be empty.
func NewTokenStore(token string) *TokenStore {
	return &TokenStore{token: token}
}

func (s *TokenStore) Set(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

func (s *TokenStore) Clear() {
	s.Set("")
}

func (s *TokenStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *TokenStore) Present() bool {
	return s.Token() != ""
}

package authclient

import "sync"

// TokenStore abstracts where the client keeps its token pair so
// platform-appropriate secure storage (keychain, encrypted file) can
// be substituted. Implementations must be safe for concurrent use.
type TokenStore interface {
	Get() (access, refresh string)
	Set(access, refresh string)
	Clear()
}

// MemoryTokenStore keeps the pair in process memory. It is the
// default store and the right choice for tests and short-lived tools.
type MemoryTokenStore struct {
	mu      sync.Mutex
	access  string
	refresh string
}

func NewMemoryTokenStore() *MemoryTokenStore { return &MemoryTokenStore{} }

func (s *MemoryTokenStore) Get() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.access, s.refresh
}

func (s *MemoryTokenStore) Set(access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access, s.refresh = access, refresh
}

func (s *MemoryTokenStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access, s.refresh = "", ""
}

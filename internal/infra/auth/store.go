package auth

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
	"golang.org/x/oauth2"
)

// FilePermission is the mode of the token file.
const FilePermission = 0600

// ErrNoToken is returned when the token file does not exist.
var ErrNoToken = errors.New("no saved token")

// TokenData is the token file content.
type TokenData struct {
	Token *oauth2.Token `json:"token"`
}

// TokenStore persists the OAuth token as JSON.
type TokenStore struct {
	path string
	mu   sync.Mutex
}

// NewTokenStore creates a store backed by the given file.
func NewTokenStore(path string) *TokenStore {
	return &TokenStore{path: path}
}

// Path returns the token file path.
func (s *TokenStore) Path() string {
	return s.path
}

// Load reads the saved token.
func (s *TokenStore) Load() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoToken
		}
		return nil, errors.Wrapf(err, "failed to read token file %s", s.path)
	}

	var tokenData TokenData
	if err := json.Unmarshal(data, &tokenData); err != nil {
		return nil, errors.Wrapf(err, "failed to parse token file %s", s.path)
	}
	if tokenData.Token == nil || tokenData.Token.RefreshToken == "" {
		return nil, errors.Newf("token file %s has no refresh token", s.path)
	}
	return tokenData.Token, nil
}

// Save writes the token, replacing the file atomically.
func (s *TokenStore) Save(token *oauth2.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(TokenData{Token: token}, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode token")
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".token-*")
	if err != nil {
		return errors.Wrap(err, "failed to create temp token file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to write token")
	}
	if err := tmp.Chmod(FilePermission); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to set token file mode")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close token file")
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return errors.Wrap(err, "failed to replace token file")
	}
	return nil
}

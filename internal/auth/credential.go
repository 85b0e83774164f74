package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	rterrors "github.com/wpwwhimself/rabbittt/internal/errors"
	"golang.org/x/oauth2"
)

const (
	// tokenDirPerm is the permission mode for the token file's directory.
	tokenDirPerm = fs.FileMode(0o700)

	// tokenFilePerm is the permission mode for the token file itself.
	tokenFilePerm = fs.FileMode(0o600)
)

// Credential is the persisted token bundle as returned by the provider.
// The field set mirrors the token response: access token, refresh token
// when offline access was granted, expiry, and the scope set the user
// consented to.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry,omitzero"`
	Scopes       []string  `json:"scopes,omitempty"`
}

// NewCredential builds a Credential from an exchanged token and the scope
// set that was requested for it.
func NewCredential(tok *oauth2.Token, scopes []string) *Credential {
	return &Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
		Scopes:       scopes,
	}
}

// Token converts the credential back into an oauth2 token usable for
// building an authorized client.
func (c *Credential) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    c.TokenType,
		Expiry:       c.Expiry,
	}
}

// TokenStore reads and writes the persisted credential as a single JSON
// file at a well-known path. It assumes a single writer: only one
// authorization attempt exists per process at a time.
type TokenStore struct {
	path string
}

// NewTokenStore creates a store backed by the given file path.
func NewTokenStore(path string) *TokenStore {
	return &TokenStore{path: path}
}

// Path returns the token file path.
func (s *TokenStore) Path() string {
	return s.path
}

// Load reads the stored credential. A missing file or a file without an
// access token yields rterrors.ErrTokenNotFound; an unreadable or corrupt
// file yields a descriptive error the caller may treat the same way.
func (s *TokenStore) Load() (*Credential, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, rterrors.ErrTokenNotFound
		}

		return nil, fmt.Errorf("reading token file: %w", err)
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("parsing token file: %w", err)
	}

	if cred.AccessToken == "" {
		return nil, fmt.Errorf("token file has no access token: %w", rterrors.ErrTokenNotFound)
	}

	return &cred, nil
}

// Save writes the credential atomically: the JSON is written to a temp
// file in the same directory and renamed over the destination, so a crash
// mid-write never leaves a partially written file to be read as valid.
func (s *TokenStore) Save(cred *Credential) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, tokenDirPerm); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}

	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".token-*")
	if err != nil {
		return fmt.Errorf("creating temp token file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())

		return fmt.Errorf("writing temp token file: %w", err)
	}

	if err := tmp.Chmod(tokenFilePerm); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())

		return fmt.Errorf("setting token file permissions: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("closing temp token file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("replacing token file: %w", err)
	}

	return nil
}

// Delete removes the token file. Missing files are not an error.
func (s *TokenStore) Delete() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing token file: %w", err)
	}

	return nil
}

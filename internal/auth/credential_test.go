package auth

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	rterrors "github.com/wpwwhimself/rabbittt/internal/errors"
	"golang.org/x/oauth2"
)

func testStore(t *testing.T) *TokenStore {
	t.Helper()
	return NewTokenStore(filepath.Join(t.TempDir(), "token.json"))
}

func testCredential() *Credential {
	return &Credential{
		AccessToken:  "tok1",
		RefreshToken: "ref1",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour).Truncate(time.Second).UTC(),
		Scopes:       []string{"https://www.googleapis.com/auth/calendar.readonly"},
	}
}

// --- Load / Save ---

func TestTokenStore_RoundTrip(t *testing.T) {
	s := testStore(t)
	want := testCredential()

	require.NoError(t, s.Save(want))

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestTokenStore_LoadMissing(t *testing.T) {
	s := testStore(t)

	_, err := s.Load()
	assert.ErrorIs(t, err, rterrors.ErrTokenNotFound)
}

func TestTokenStore_LoadCorrupt(t *testing.T) {
	s := testStore(t)
	require.NoError(t, os.WriteFile(s.Path(), []byte("{not json"), 0o600))

	_, err := s.Load()
	require.Error(t, err)
	assert.NotErrorIs(t, err, rterrors.ErrTokenNotFound)
}

func TestTokenStore_LoadEmptyAccessToken(t *testing.T) {
	s := testStore(t)
	require.NoError(t, os.WriteFile(s.Path(), []byte(`{"refresh_token":"ref1"}`), 0o600))

	_, err := s.Load()
	assert.ErrorIs(t, err, rterrors.ErrTokenNotFound)
}

func TestTokenStore_SaveOverwrites(t *testing.T) {
	s := testStore(t)
	old := testCredential()
	require.NoError(t, s.Save(old))

	fresh := testCredential()
	fresh.AccessToken = "tok2"
	require.NoError(t, s.Save(fresh))

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, "tok2", got.AccessToken)
}

func TestTokenStore_SaveCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "token.json")
	s := NewTokenStore(path)

	require.NoError(t, s.Save(testCredential()))

	info, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestTokenStore_SaveLeavesNoTempFiles(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.Save(testCredential()))

	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, filepath.Base(s.Path()), entries[0].Name())
}

func TestTokenStore_SaveFilePermissions(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.Save(testCredential()))

	info, err := os.Stat(s.Path())
	require.NoError(t, err)
	assert.Equal(t, tokenFilePerm, info.Mode().Perm())
}

// --- Delete ---

func TestTokenStore_Delete(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.Save(testCredential()))
	require.NoError(t, s.Delete())

	_, err := s.Load()
	assert.ErrorIs(t, err, rterrors.ErrTokenNotFound)
}

func TestTokenStore_DeleteMissing(t *testing.T) {
	s := testStore(t)
	assert.NoError(t, s.Delete())
}

// --- Credential conversion ---

func TestCredential_TokenConversion(t *testing.T) {
	expiry := time.Now().Add(time.Hour)
	tok := &oauth2.Token{
		AccessToken:  "tok1",
		RefreshToken: "ref1",
		TokenType:    "Bearer",
		Expiry:       expiry,
	}

	cred := NewCredential(tok, []string{"scope-a"})
	assert.Equal(t, []string{"scope-a"}, cred.Scopes)

	back := cred.Token()
	assert.Equal(t, tok.AccessToken, back.AccessToken)
	assert.Equal(t, tok.RefreshToken, back.RefreshToken)
	assert.Equal(t, tok.TokenType, back.TokenType)
	assert.Equal(t, tok.Expiry, back.Expiry)
}

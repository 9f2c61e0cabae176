package auth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveCredentialsEmptyUsesDefault(t *testing.T) {

	opts, source := ResolveCredentials("   ")
	assert.Nil(t, opts)
	assert.Equal(t, CredentialSourceDefault, source)
}

func TestResolveCredentialsInlineJSON(t *testing.T) {

	opts, source := ResolveCredentials(`{"type":"service_account","project_id":"p"}`)
	assert.Len(t, opts, 1)
	assert.Equal(t, CredentialSourceInline, source)
}

func TestResolveCredentialsReadsFile(t *testing.T) {

	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"type":"service_account"}`), 0o600))

	opts, source := ResolveCredentials(path)
	assert.Len(t, opts, 1)
	assert.Equal(t, CredentialSourceFile, source)
}

func TestResolveCredentialsUnreadableFileFallsBack(t *testing.T) {

	opts, source := ResolveCredentials(filepath.Join(t.TempDir(), "missing.json"))
	assert.Nil(t, opts)
	assert.Equal(t, CredentialSourceDefault, source)
}

func TestInitDefaultCredentials(t *testing.T) {

	original := findDefaultCredentials
	defer func() {
		findDefaultCredentials = original
		defaultCredentialsOnce = sync.Once{}
		SetHasDefaultCredentials(false)
	}()

	t.Setenv(CredentialsEnvVar, "")
	calls := 0
	findDefaultCredentials = func(ctx context.Context) error {
		calls++
		return errors.New("no credentials")
	}

	defaultCredentialsOnce = sync.Once{}
	assert.False(t, InitDefaultCredentials(context.Background()))
	assert.False(t, InitDefaultCredentials(context.Background()))
	assert.Equal(t, 1, calls)

	t.Setenv(CredentialsEnvVar, "/etc/google/key.json")
	defaultCredentialsOnce = sync.Once{}
	assert.True(t, InitDefaultCredentials(context.Background()))
	assert.True(t, HasDefaultCredentials())
	assert.Equal(t, 1, calls)
}

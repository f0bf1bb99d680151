package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drawbridge-app/drawbridge/internal/relay"
)

func executeToken(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"token"}, args...))
	err := cmd.Execute()
	return strings.TrimSpace(out.String()), err
}

func TestTokenCommand_MintsVerifiableToken(t *testing.T) {
	token, err := executeToken(t, "user-a", "--secret", "dev-secret")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	auth := relay.NewTokenAuth("dev-secret", time.Minute)
	userID, err := auth.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-a", userID)
}

func TestTokenCommand_UsesConfigSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tokenSecret: from-file\n"), 0o644))

	token, err := executeToken(t, "user-a", "--config", path)
	require.NoError(t, err)

	auth := relay.NewTokenAuth("from-file", time.Minute)
	userID, err := auth.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-a", userID)
}

func TestTokenCommand_RequiresSecretOrConfig(t *testing.T) {
	_, err := executeToken(t, "user-a")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTokenCommand_RequiresUserArg(t *testing.T) {
	_, err := executeToken(t)
	assert.Error(t, err)
}

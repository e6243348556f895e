package app

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/thv-git-api/internal/auth"
	"github.com/stacklok/thv-git-api/internal/config"
	"github.com/stacklok/thv-git-api/internal/versions"
)

const (
	testSecret = "0123456789abcdef0123456789abcdef"
	testUserID = "6f1c2e9a-3b4d-4c5e-8f70-1a2b3c4d5e6f"
)

func writeTestConfig(t *testing.T, mode string) string {
	t.Helper()
	dir := t.TempDir()

	secretFile := filepath.Join(dir, "secret")
	require.NoError(t, os.WriteFile(secretFile, []byte(testSecret+"\n"), 0o600))

	cfg := strings.Join([]string{
		"reposRoot: " + dir,
		"auth:",
		"  mode: " + mode,
		"  secretFile: " + secretFile,
		"  tokenLifetime: 1h",
		"  users:",
		"    - id: " + testUserID,
		"      key: s3cret-key",
		"",
	}, "\n")

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd(nil)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTokenCommand(t *testing.T) {
	t.Parallel()

	path := writeTestConfig(t, config.AuthModeJWT)
	out, err := execute(t, "token", "--config", path, "--user", testUserID)
	require.NoError(t, err)

	signer, err := auth.NewSigner([]byte(testSecret), time.Hour)
	require.NoError(t, err)
	claims, err := signer.ValidateToken(context.Background(), strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, uuid.MustParse(testUserID), claims.ID)
}

func TestTokenCommand_Errors(t *testing.T) {
	t.Parallel()

	jwtConfig := writeTestConfig(t, config.AuthModeJWT)
	anonymousConfig := writeTestConfig(t, config.AuthModeAnonymous)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{
			name:    "missing user flag",
			args:    []string{"token", "--config", jwtConfig},
			wantErr: "required flag",
		},
		{
			name:    "unknown user",
			args:    []string{"token", "--config", jwtConfig, "--user", uuid.NewString()},
			wantErr: "is not configured",
		},
		{
			name:    "invalid user id",
			args:    []string{"token", "--config", jwtConfig, "--user", "alice"},
			wantErr: "invalid user id",
		},
		{
			name:    "anonymous mode",
			args:    []string{"token", "--config", anonymousConfig, "--user", testUserID},
			wantErr: "require auth mode",
		},
		{
			name:    "no configuration",
			args:    []string{"token", "--user", testUserID},
			wantErr: "failed to load configuration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			out, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Empty(t, out)
		})
	}
}

func TestVersionCommand_JSON(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "version", "--format", "json")
	require.NoError(t, err)

	var info versions.VersionInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, versions.GetVersionInfo(), info)
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	configPath := writeTestConfig(t, config.AuthModeAnonymous)

	v := viper.New()
	v.Set("repos-root", root)
	cfg, err := loadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, root, cfg.ReposRoot)

	v.Set("config", configPath)
	cfg, err = loadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, root, cfg.ReposRoot, "--repos-root overrides the file")
	assert.Equal(t, config.AuthModeAnonymous, cfg.GetAuth().GetMode())

	_, err = loadConfig(viper.New())
	require.Error(t, err)
}

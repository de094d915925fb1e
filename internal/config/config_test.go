package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validYAML = `
bitbucket:
  workspace: acme
  repository: widgets
  token: bb-token
github:
  owner: acme-gh
  repository: widgets
  token: gh-token
`

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, "acme", cfg.Bitbucket.Workspace)
	assert.Equal(t, "widgets", cfg.Bitbucket.Repository)
	assert.Equal(t, "acme-gh", cfg.GitHub.Owner)
	assert.False(t, cfg.Bitbucket.HasOAuth())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, "user_mapping.yaml", cfg.Migration.UserMapping)
	assert.Equal(t, "preview", cfg.Migration.PreviewDir)
	assert.Equal(t, "logs/closed_prs.json", cfg.Logging.ClosedPRArchive)
	assert.Equal(t, "logs/failed_prs.json", cfg.Logging.FailedPRs)
}

func TestLoad_EnvSubstitution(t *testing.T) {
	t.Setenv("TEST_GH_TOKEN", "secret-token")

	cfg, err := Load(writeConfig(t, `
bitbucket:
  workspace: acme
  repository: widgets
  token: bb
github:
  owner: acme
  repository: widgets
  token: ${TEST_GH_TOKEN}
`))
	require.NoError(t, err)
	assert.Equal(t, "secret-token", cfg.GitHub.Token)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.Validate()
	require.Error(t, err)

	assert.ErrorContains(t, err, "bitbucket.workspace")
	assert.ErrorContains(t, err, "github.token")
	assert.ErrorContains(t, err, "bitbucket auth missing")
}

func TestValidate_OAuthSatisfiesAuth(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
bitbucket:
  workspace: acme
  repository: widgets
  oauth_key: key
  oauth_secret: secret
github:
  owner: acme
  repository: widgets
  token: gh
`))
	require.NoError(t, err)
	assert.True(t, cfg.Bitbucket.HasOAuth())
	assert.NoError(t, cfg.Validate())
}

func TestApplyTestMode(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML+`
test_mode:
  enabled: true
  repo:
    owner: sandbox
    repository: widgets-test
`))
	require.NoError(t, err)

	require.NoError(t, cfg.ApplyTestMode())
	assert.Equal(t, "sandbox", cfg.GitHub.Owner)
	assert.Equal(t, "widgets-test", cfg.GitHub.Repository)
}

func TestApplyTestMode_NotEnabled(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)
	assert.Error(t, cfg.ApplyTestMode())
}

func TestApplyTestMode_IncompleteRepo(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML+`
test_mode:
  enabled: true
  repo:
    owner: sandbox
`))
	require.NoError(t, err)
	assert.Error(t, cfg.ApplyTestMode())
}

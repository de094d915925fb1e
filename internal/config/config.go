// Package config loads migration configuration from a YAML file with
// ${ENV_VAR} substitution.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the full migration configuration.
type Config struct {
	Bitbucket BitbucketConfig `yaml:"bitbucket"`
	GitHub    GitHubConfig    `yaml:"github"`
	Migration MigrationConfig `yaml:"migration"`
	Logging   LoggingConfig   `yaml:"logging"`
	TestMode  TestModeConfig  `yaml:"test_mode"`
}

// BitbucketConfig holds source-system settings. Authentication is either an
// OAuth consumer (key + secret, client-credentials flow) or a static bearer
// token.
type BitbucketConfig struct {
	Workspace   string `yaml:"workspace"`
	Repository  string `yaml:"repository"`
	OAuthKey    string `yaml:"oauth_key"`
	OAuthSecret string `yaml:"oauth_secret"`
	Token       string `yaml:"token"`
}

// HasOAuth reports whether OAuth consumer credentials are configured.
func (c BitbucketConfig) HasOAuth() bool {
	return c.OAuthKey != "" && c.OAuthSecret != ""
}

// GitHubConfig holds destination-system settings.
type GitHubConfig struct {
	Owner      string `yaml:"owner"`
	Repository string `yaml:"repository"`
	Token      string `yaml:"token"`
}

// MigrationConfig holds migration behavior toggles.
type MigrationConfig struct {
	// SkipCommitVerification bypasses the per-commit existence check.
	// Useful when the destination history was rebased or squashed.
	SkipCommitVerification bool `yaml:"skip_commit_verification"`
	// SkipMissingSourceBranches downgrades a missing source branch from a
	// failure to a skip. A missing destination branch always fails.
	SkipMissingSourceBranches bool `yaml:"skip_prs_with_missing_branches"`
	// UserMapping is the path of the YAML identity mapping table.
	UserMapping string `yaml:"user_mapping"`
	// PreviewDir receives dry-run HTML previews of transformed PR bodies.
	PreviewDir string `yaml:"preview_dir"`
}

// LoggingConfig holds the audit archive file paths.
type LoggingConfig struct {
	ClosedPRArchive string `yaml:"closed_pr_archive"`
	FailedPRs       string `yaml:"failed_prs"`
}

// TestModeConfig redirects the destination to a throwaway repository.
type TestModeConfig struct {
	Enabled bool           `yaml:"enabled"`
	Repo    TestRepoConfig `yaml:"repo"`
}

// TestRepoConfig identifies the test destination repository.
type TestRepoConfig struct {
	Owner      string `yaml:"owner"`
	Repository string `yaml:"repository"`
}

// envVarPattern matches ${VAR_NAME} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Migration: MigrationConfig{
			UserMapping: "user_mapping.yaml",
			PreviewDir:  "preview",
		},
		Logging: LoggingConfig{
			ClosedPRArchive: "logs/closed_prs.json",
			FailedPRs:       "logs/failed_prs.json",
		},
	}
}

// Load reads and parses the config file at the given path, substituting
// ${ENV_VAR} references from the environment.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	data = envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envVarPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(varName)))
	})

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// Validate checks that every required field is present, collecting all
// problems into a single error so the operator can fix them in one pass.
func (c *Config) Validate() error {
	var problems []string

	require := func(field, value string) {
		if strings.TrimSpace(value) == "" {
			problems = append(problems, field+" is required")
		}
	}

	require("bitbucket.workspace", c.Bitbucket.Workspace)
	require("bitbucket.repository", c.Bitbucket.Repository)
	require("github.owner", c.GitHub.Owner)
	require("github.repository", c.GitHub.Repository)
	require("github.token", c.GitHub.Token)

	if !c.Bitbucket.HasOAuth() && c.Bitbucket.Token == "" {
		problems = append(problems,
			"bitbucket auth missing: provide oauth_key and oauth_secret, or token")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

// ApplyTestMode overrides the destination repository with the configured
// test repository. It fails when test mode is not enabled in the config or
// the test repository is incomplete.
func (c *Config) ApplyTestMode() error {
	if !c.TestMode.Enabled {
		return fmt.Errorf("test mode requested but test_mode.enabled is false in config")
	}
	if c.TestMode.Repo.Owner == "" || c.TestMode.Repo.Repository == "" {
		return fmt.Errorf("test mode enabled but test_mode.repo is not fully configured")
	}
	c.GitHub.Owner = c.TestMode.Repo.Owner
	c.GitHub.Repository = c.TestMode.Repo.Repository
	return nil
}

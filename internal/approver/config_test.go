package approver

import (
	"os"
	"path/filepath"
	"showroom-approver/internal/scrapers/showroom"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
}

func TestLoadConfig(t *testing.T) {
	t.Setenv(CredentialEnv, "")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json5")

	writeFile(t, path, `{
		// comments are allowed
		auth_cookie: "sr_id=file",
		interval_seconds: 60,
		request_timeout_seconds: 120,
	}`)
	writeFile(t, filepath.Join(dir, "config.local.json5"), `{
		submit_delay_seconds: 5,
		listen: "127.0.0.1:9999",
		cloudflare_bypass: false,
	}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "sr_id=file", cfg.AuthCookie)
	require.Equal(t, showroom.DefaultBaseUrl, cfg.BaseUrl)
	require.Equal(t, time.Minute, cfg.Interval())
	require.Equal(t, 5*time.Second, cfg.SubmitDelay())
	require.Equal(t, "127.0.0.1:9999", cfg.Listen)
	require.Equal(t, float64(2), cfg.RequestsPerSecond)

	// the per-request timeout can never be raised past the cap
	require.Equal(t, showroom.MaxRequestTimeout, cfg.RequestTimeout())

	opts := cfg.ClientOptions()
	require.False(t, opts.CloudflareBypass)
	require.Equal(t, showroom.MaxRequestTimeout, opts.Timeout)
}

func TestLoadConfigEnvCredential(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json5")

	t.Setenv(CredentialEnv, "sr_id=env")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "sr_id=env", cfg.AuthCookie)
	require.Equal(t, DefaultConfig().Listen, cfg.Listen)
	require.True(t, cfg.ClientOptions().CloudflareBypass)
	require.Equal(t, 3*time.Second, cfg.SubmitDelay())
	require.Equal(t, 30*time.Second, cfg.Interval())

	writeFile(t, path, `{auth_cookie: "sr_id=file"}`)
	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "sr_id=env", cfg.AuthCookie)
}

func TestLoadConfigSubmitDelay(t *testing.T) {
	t.Setenv(CredentialEnv, "")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json5")

	writeFile(t, path, `{auth_cookie: "sr_id=file"}`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 3*time.Second, cfg.SubmitDelay())

	writeFile(t, path, `{auth_cookie: "sr_id=file", submit_delay_seconds: -4}`)
	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 3*time.Second, cfg.SubmitDelay())

	// an explicit 0 turns the pause off, also from the local override
	writeFile(t, path, `{auth_cookie: "sr_id=file", submit_delay_seconds: 3}`)
	writeFile(t, filepath.Join(dir, "config.local.json5"), `{submit_delay_seconds: 0}`)
	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, time.Duration(0), cfg.SubmitDelay())

	require.Equal(t, 3*time.Second, Config{}.SubmitDelay())
}

func TestLoadConfigMissingCredential(t *testing.T) {
	t.Setenv(CredentialEnv, "")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json5")

	_, err := LoadConfig(path)
	require.ErrorIs(t, err, ErrMissingCredential)

	writeFile(t, path, `{auth_cookie: "  "}`)
	_, err = LoadConfig(path)
	require.ErrorIs(t, err, ErrMissingCredential)

	writeFile(t, path, `{auth_cookie: `)
	_, err = LoadConfig(path)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrMissingCredential)
}

func TestValidateRoomId(t *testing.T) {
	for _, id := range []string{"1", "0042", " 123 "} {
		require.NoError(t, ValidateRoomId(id), id)
	}
	for _, id := range []string{"", "abc", "12a", "-1", "1.5", "１２３"} {
		require.Error(t, ValidateRoomId(id), id)
	}
}

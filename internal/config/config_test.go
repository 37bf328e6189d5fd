package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "full"
log_level = "debug"

[chain]
chain_id = 31337
block_gap = "2s"
produce_interval = "5s"

[store]
reward_bps = 5

[[store.collections]]
address = "0x00000000000000000000000000000000000000aa"
name = "Apes"
version = "2"

[server]
port = 9001
rate_limit = 10
rate_window = "30s"

[redis]
enabled = true
`), 0o600))

	t.Setenv("NFTSTORE_SERVER_PORT", "9100")
	t.Setenv("NFTSTORE_NOTIFY_EVENTS", "Buy, Claim")
	t.Setenv("NFTSTORE_CHAIN_ID", "not-a-number")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "full", cfg.Mode)
	assert.Equal(t, uint64(31337), cfg.Chain.ChainID, "unparseable env values are ignored")
	assert.Equal(t, 2*time.Second, cfg.Chain.BlockGap.Duration)
	assert.Equal(t, 5*time.Second, cfg.Chain.ProduceInterval.Duration)
	assert.True(t, cfg.Chain.AutoMine, "unset keys keep their defaults")
	assert.Equal(t, uint64(5), cfg.Store.RewardBps)
	require.Len(t, cfg.Store.Collections, 1)
	assert.Equal(t, "Apes", cfg.Store.Collections[0].Name)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.RateWindow.Duration)
	assert.Equal(t, []string{"Buy", "Claim"}, cfg.Notify.Events)
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Chain.ChainID = 0
	cfg.Store.Currency = "nope"
	cfg.Store.Collections = append(cfg.Store.Collections, cfg.Store.Collections[0])
	cfg.Server.RateLimit = 5
	cfg.Notify.Events = []string{"Teleport"}

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		`unknown mode "trade"`,
		"chain: chain_id must be positive",
		"store: currency must be a hex address",
		"duplicates address",
		"rate_limit requires redis",
		`unknown event kind "Teleport"`,
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidateNonDevnetNeedsAdmin(t *testing.T) {
	cfg := Defaults()
	cfg.Chain.Devnet = false
	assert.ErrorContains(t, cfg.Validate(), "admin: one of address")

	cfg.Admin.Address = "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"
	assert.NoError(t, cfg.Validate())
}

func TestValidateArchiveMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "archive"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: must be enabled")
	assert.Contains(t, err.Error(), "s3: must be enabled")

	cfg.Postgres.Enabled = true
	cfg.S3.Enabled = true
	assert.NoError(t, cfg.Validate())
}

func TestValidateEncryptKeyMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "encrypt-key"
	assert.ErrorContains(t, cfg.Validate(), "private_key is required")

	cfg.Admin.PrivateKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	cfg.Admin.KeyPassword = "hunter2"
	assert.NoError(t, cfg.Validate())
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Admin.PrivateKey = "secret-key"
	cfg.Postgres.Password = "pw"
	cfg.Server.APIKey = "api"
	cfg.Notify.DiscordWebhookURL = "https://discord.example/hook"

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Admin.PrivateKey)
	assert.Equal(t, "***", out.Postgres.Password)
	assert.Equal(t, "***", out.Server.APIKey)
	assert.Equal(t, "***", out.Notify.DiscordWebhookURL)
	assert.Empty(t, out.S3.SecretKey, "empty secrets stay empty")

	out.Notify.Events[0] = "changed"
	assert.Equal(t, "Buy", cfg.Notify.Events[0])
	assert.Equal(t, "secret-key", cfg.Admin.PrivateKey)
}

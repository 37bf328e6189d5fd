package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/nftstore/internal/config"
	"github.com/alanyoungcy/nftstore/internal/crypto"
	"github.com/alanyoungcy/nftstore/internal/world"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestWireDevnetDefaults(t *testing.T) {
	cfg := config.Defaults()
	deps, cleanup, err := Wire(context.Background(), &cfg, discard())
	require.NoError(t, err)
	defer cleanup()

	assert.NotNil(t, deps.Store)
	assert.Nil(t, deps.SignalBus)
	assert.Nil(t, deps.EventStore)
	assert.Nil(t, deps.Archiver)
	assert.Nil(t, deps.Notifier)
	assert.Empty(t, deps.HealthChecks)

	info := deps.Ledger.Chain()
	assert.True(t, info.Devnet)
	assert.Equal(t, uint64(1337), info.ChainID)
	assert.Equal(t, []common.Address{world.DevCollection}, deps.Ledger.Collections())
}

func TestWireWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := config.Defaults()
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = mr.Addr()
	cfg.Notify.DiscordWebhookURL = "http://127.0.0.1:1/webhook"

	deps, cleanup, err := Wire(context.Background(), &cfg, discard())
	require.NoError(t, err)
	defer cleanup()

	assert.NotNil(t, deps.SignalBus)
	assert.NotNil(t, deps.RateLimiter)
	assert.NotNil(t, deps.LockManager)
	assert.NotNil(t, deps.Notifier)
	require.Contains(t, deps.HealthChecks, "redis")
	assert.NoError(t, deps.HealthChecks["redis"](context.Background()))
}

func TestResolveAdmin(t *testing.T) {
	signer, err := crypto.GenerateSigner()
	require.NoError(t, err)

	cfg := config.Defaults()
	cfg.Admin.Address = "0x000000000000000000000000000000000000ad01"
	got, err := resolveAdmin(&cfg, discard())
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x000000000000000000000000000000000000ad01"), got)

	cfg = config.Defaults()
	cfg.Admin.PrivateKey = "0x" + signer.PrivateKeyHex()
	got, err = resolveAdmin(&cfg, discard())
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), got)

	cfg = config.Defaults()
	got, err = resolveAdmin(&cfg, discard())
	require.NoError(t, err)
	assert.NotEqual(t, common.Address{}, got)

	cfg.Chain.Devnet = false
	_, err = resolveAdmin(&cfg, discard())
	assert.Error(t, err)
}

func TestWorldConfigBeneficiaries(t *testing.T) {
	admin := common.HexToAddress("0x000000000000000000000000000000000000ad01")
	cfg := config.Defaults()
	cfg.Store.StakingBeneficiary = "0x0000000000000000000000000000000000005e11"

	wc := worldConfig(&cfg, admin)
	assert.Equal(t, admin, wc.OwnerBeneficiary)
	assert.Equal(t, common.HexToAddress("0x0000000000000000000000000000000000005e11"), wc.StakingBeneficiary)
	assert.Equal(t, world.DevStore, wc.Store)
	require.Len(t, wc.Collections, 1)
	assert.Equal(t, "Dev Collection", wc.Collections[0].Name)
}

func TestEncryptKeyMode(t *testing.T) {
	signer, err := crypto.GenerateSigner()
	require.NoError(t, err)

	cfg := config.Defaults()
	cfg.Mode = "encrypt-key"
	cfg.Admin.PrivateKey = signer.PrivateKeyHex()
	cfg.Admin.KeyPassword = "hunter2"
	cfg.Admin.EncryptedKeyPath = filepath.Join(t.TempDir(), "admin.key")

	a := New(&cfg, discard())
	require.NoError(t, a.Run(context.Background()))
	a.Close()

	data, err := os.ReadFile(cfg.Admin.EncryptedKeyPath)
	require.NoError(t, err)
	key, err := crypto.DecryptKey(data, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, signer.PrivateKeyHex(), key)
}

func TestArchiveModeNeedsBackends(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = "archive"
	a := New(&cfg, discard())
	err := a.ArchiveMode(context.Background(), &Dependencies{})
	assert.ErrorContains(t, err, "needs postgres and s3")
}

func TestRunRejectsUnknownMode(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = "trade"
	a := New(&cfg, discard())
	defer a.Close()
	assert.ErrorContains(t, a.Run(context.Background()), "unsupported mode")
}

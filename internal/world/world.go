// Package world assembles the chain, the reference ledgers and the store into
// one runnable environment.
package world

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/nftstore/internal/chain"
	"github.com/alanyoungcy/nftstore/internal/domain"
	"github.com/alanyoungcy/nftstore/internal/escrow"
	"github.com/alanyoungcy/nftstore/internal/fee"
	"github.com/alanyoungcy/nftstore/internal/ledger"
	"github.com/alanyoungcy/nftstore/internal/market"
	"github.com/alanyoungcy/nftstore/internal/permit"
)

// Collection describes one asset contract to deploy.
type Collection struct {
	Address common.Address
	Name    string
	Version string
}

// Config describes the environment to build.
type Config struct {
	ChainID  uint64
	AutoMine bool
	BlockGap time.Duration
	Genesis  time.Time

	Store common.Address // custody address
	Admin common.Address

	Currency        common.Address
	CurrencySymbol  string
	CurrencyName    string
	CurrencyVersion string

	Staker    common.Address
	RewardBps uint64

	OwnerVault         common.Address
	OwnerBeneficiary   common.Address
	StakingVault       common.Address
	StakingBeneficiary common.Address
	Collections        []Collection
}

// Vault names accepted by VaultByName.
const (
	VaultOwner   = "owner"
	VaultStaking = "staking"
)

// World is a fully wired environment.
type World struct {
	Chain        *chain.Chain
	Currency     *ledger.Token
	Staker       *ledger.Staker
	OwnerVault   *ledger.Vault
	StakingVault *ledger.Vault
	Collections  *ledger.Registry
	Escrow       *escrow.Adapter
	Router       *fee.Router
	Market       *market.Store
}

// New builds a World from cfg.
func New(cfg Config, logger *slog.Logger) (*World, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Store == (common.Address{}) {
		return nil, fmt.Errorf("world: store address is required")
	}
	if cfg.Admin == (common.Address{}) {
		return nil, fmt.Errorf("world: admin address is required")
	}

	c := chain.New(chain.Config{
		ChainID:  cfg.ChainID,
		AutoMine: cfg.AutoMine,
		BlockGap: cfg.BlockGap,
		Genesis:  cfg.Genesis,
	}, logger)

	currency := ledger.NewToken(cfg.Currency, cfg.CurrencySymbol, permit.Domain{
		Name:    cfg.CurrencyName,
		Version: cfg.CurrencyVersion,
		ChainID: cfg.ChainID,
	})
	staker := ledger.NewStaker(cfg.Staker, currency, cfg.RewardBps)
	ownerVault := ledger.NewVault(VaultOwner, cfg.OwnerVault, cfg.OwnerBeneficiary, currency, staker)
	stakingVault := ledger.NewVault(VaultStaking, cfg.StakingVault, cfg.StakingBeneficiary, currency, staker)

	nfts := make([]*ledger.NFT, 0, len(cfg.Collections))
	for _, col := range cfg.Collections {
		nfts = append(nfts, ledger.NewNFT(col.Address, permit.Domain{
			Name:    col.Name,
			Version: col.Version,
			ChainID: cfg.ChainID,
		}))
	}
	registry := ledger.NewRegistry(nfts...)

	adapter := escrow.New(cfg.Store, currency, registry)
	router := fee.NewRouter(adapter, ownerVault, stakingVault)
	store := market.New(cfg.Admin, adapter, router, logger)

	logger.Info("world assembled",
		slog.String("component", "world"),
		slog.Uint64("chain_id", cfg.ChainID),
		slog.String("store", cfg.Store.Hex()),
		slog.String("currency", cfg.Currency.Hex()),
		slog.Int("collections", len(nfts)),
	)

	return &World{
		Chain:        c,
		Currency:     currency,
		Staker:       staker,
		OwnerVault:   ownerVault,
		StakingVault: stakingVault,
		Collections:  registry,
		Escrow:       adapter,
		Router:       router,
		Market:       store,
	}, nil
}

// VaultByName returns the owner or staking vault.
func (w *World) VaultByName(name string) (*ledger.Vault, error) {
	switch name {
	case VaultOwner:
		return w.OwnerVault, nil
	case VaultStaking:
		return w.StakingVault, nil
	}
	return nil, fmt.Errorf("world: vault %q: %w", name, domain.ErrNotFound)
}

// Exec runs fn as one atomic operation from sender.
func (w *World) Exec(ctx context.Context, sender common.Address, fn func(tx domain.Tx) error) (chain.Block, error) {
	return w.Chain.Exec(ctx, sender, func(tx *chain.Tx) error { return fn(tx) })
}

// Fund mints amount of currency to each account and approves the store to
// spend it without limit.
func (w *World) Fund(ctx context.Context, amount *uint256.Int, accounts ...common.Address) error {
	for _, acct := range accounts {
		_, err := w.Exec(ctx, acct, func(tx domain.Tx) error {
			if err := w.Currency.Mint(tx, acct, amount); err != nil {
				return err
			}
			return w.Currency.Approve(tx, acct, w.Escrow.Custody(), new(uint256.Int).SetAllOne())
		})
		if err != nil {
			return fmt.Errorf("world: fund %s: %w", acct.Hex(), err)
		}
	}
	return nil
}

// MintAsset mints the next asset of collection to to. When approve is set the
// store is approved as operator for to.
func (w *World) MintAsset(ctx context.Context, collection, to common.Address, approve bool) (uint256.Int, error) {
	nft, err := w.Collections.NFT(collection)
	if err != nil {
		return uint256.Int{}, err
	}
	var id uint256.Int
	_, err = w.Exec(ctx, to, func(tx domain.Tx) error {
		var err error
		if id, err = nft.Mint(tx, to); err != nil {
			return err
		}
		if approve {
			return nft.SetApprovalForAll(tx, to, w.Escrow.Custody(), true)
		}
		return nil
	})
	if err != nil {
		return uint256.Int{}, fmt.Errorf("world: mint asset: %w", err)
	}
	return id, nil
}

package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/nftstore/internal/chain"
	"github.com/alanyoungcy/nftstore/internal/domain"
	"github.com/alanyoungcy/nftstore/internal/permit"
	"github.com/alanyoungcy/nftstore/internal/world"
)

// Balances summarises one account.
type Balances struct {
	Currency       uint256.Int
	CurrencyNonce  uint64
	StoreAllowance uint256.Int
}

// LedgerService exposes the reference ledgers: reads everywhere, and mint,
// approve and mine on devnets.
type LedgerService struct {
	world  *world.World
	devnet bool
	logger *slog.Logger
}

func NewLedgerService(w *world.World, devnet bool, logger *slog.Logger) *LedgerService {
	return &LedgerService{
		world:  w,
		devnet: devnet,
		logger: logger.With(slog.String("component", "ledger_service")),
	}
}

// ChainInfo summarises the execution runtime.
type ChainInfo struct {
	ChainID uint64      `json:"chain_id"`
	Head    chain.Block `json:"head"`
	Stats   chain.Stats `json:"stats"`
	Devnet  bool        `json:"devnet"`
}

// Chain returns the chain id, head block and execution counters.
func (s *LedgerService) Chain() ChainInfo {
	return ChainInfo{
		ChainID: s.world.Chain.ChainID(),
		Head:    s.world.Chain.Head(),
		Stats:   s.world.Chain.Stats(),
		Devnet:  s.devnet,
	}
}

// Devnet reports whether mint, approve and mine are enabled.
func (s *LedgerService) Devnet() bool { return s.devnet }

// Custody returns the store's custody address.
func (s *LedgerService) Custody() common.Address { return s.world.Escrow.Custody() }

// Balances returns owner's currency position relative to the store.
func (s *LedgerService) Balances(owner common.Address) Balances {
	var b Balances
	s.world.Chain.View(func(chain.Block) {
		b = Balances{
			Currency:       s.world.Currency.BalanceOf(owner),
			CurrencyNonce:  s.world.Currency.Nonce(owner),
			StoreAllowance: s.world.Currency.Allowance(owner, s.Custody()),
		}
	})
	return b
}

// OwnerOf returns the ledger owner and next permit nonce of an asset.
func (s *LedgerService) OwnerOf(collection common.Address, id *uint256.Int) (common.Address, uint64, error) {
	var (
		owner common.Address
		nonce uint64
		err   error
	)
	s.world.Chain.View(func(chain.Block) {
		nft, nftErr := s.world.Collections.NFT(collection)
		if nftErr != nil {
			err = fmt.Errorf("ledger_service: %w: %w", domain.ErrNotFound, nftErr)
			return
		}
		owner, err = nft.OwnerOf(id)
		if err != nil {
			err = fmt.Errorf("ledger_service: %w: %w", domain.ErrNotFound, err)
			return
		}
		nonce = nft.Nonce(id)
	})
	return owner, nonce, err
}

// AssetDomain returns the permit domain clients sign asset permits under.
func (s *LedgerService) AssetDomain(collection common.Address) (permit.Domain, error) {
	nft, err := s.world.Collections.NFT(collection)
	if err != nil {
		return permit.Domain{}, fmt.Errorf("ledger_service: %w: %w", domain.ErrNotFound, err)
	}
	return nft.Domain(), nil
}

// CurrencyDomain returns the permit domain of the currency.
func (s *LedgerService) CurrencyDomain() permit.Domain { return s.world.Currency.Domain() }

// Collections lists the deployed asset contracts.
func (s *LedgerService) Collections() []common.Address { return s.world.Collections.Addresses() }

// PermitCurrency submits an EIP-2612 permit granting the store value over
// owner's balance.
func (s *LedgerService) PermitCurrency(ctx context.Context, from, owner common.Address, value, deadline *uint256.Int, sig []byte) error {
	_, err := s.world.Exec(ctx, from, func(tx domain.Tx) error {
		return s.world.Currency.Permit(tx, owner, s.Custody(), value, deadline, sig)
	})
	if err != nil {
		return fmt.Errorf("ledger_service: permit currency: %w", err)
	}
	return nil
}

// MintCurrency mints amount to to and approves the store for it.
func (s *LedgerService) MintCurrency(ctx context.Context, to common.Address, amount *uint256.Int) error {
	if err := s.requireDevnet("mint currency"); err != nil {
		return err
	}
	if err := s.world.Fund(ctx, amount, to); err != nil {
		return fmt.Errorf("ledger_service: %w", err)
	}
	s.logger.InfoContext(ctx, "currency minted", slog.String("to", to.Hex()), slog.String("amount", amount.Dec()))
	return nil
}

// MintAsset mints the next asset of collection to to.
func (s *LedgerService) MintAsset(ctx context.Context, collection, to common.Address, approve bool) (uint256.Int, error) {
	if err := s.requireDevnet("mint asset"); err != nil {
		return uint256.Int{}, err
	}
	id, err := s.world.MintAsset(ctx, collection, to, approve)
	if err != nil {
		return uint256.Int{}, fmt.Errorf("ledger_service: %w", err)
	}
	s.logger.InfoContext(ctx, "asset minted",
		slog.String("collection", collection.Hex()),
		slog.String("id", id.Dec()),
		slog.String("to", to.Hex()),
	)
	return id, nil
}

// ApproveStore makes the store an operator for owner's assets in collection.
func (s *LedgerService) ApproveStore(ctx context.Context, owner, collection common.Address) error {
	if err := s.requireDevnet("approve"); err != nil {
		return err
	}
	nft, err := s.world.Collections.NFT(collection)
	if err != nil {
		return fmt.Errorf("ledger_service: approve: %w: %w", domain.ErrNotFound, err)
	}
	_, err = s.world.Exec(ctx, owner, func(tx domain.Tx) error {
		return nft.SetApprovalForAll(tx, owner, s.Custody(), true)
	})
	if err != nil {
		return fmt.Errorf("ledger_service: approve: %w", err)
	}
	return nil
}

// Mine advances the chain by n blocks.
func (s *LedgerService) Mine(n uint64) (chain.Block, error) {
	if err := s.requireDevnet("mine"); err != nil {
		return chain.Block{}, err
	}
	return s.world.Chain.Mine(n), nil
}

func (s *LedgerService) requireDevnet(op string) error {
	if !s.devnet {
		return fmt.Errorf("ledger_service: %s: %w: devnet endpoints disabled", op, domain.ErrUnauthorized)
	}
	return nil
}

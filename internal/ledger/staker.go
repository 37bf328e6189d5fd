package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/nftstore/internal/chain"
	"github.com/alanyoungcy/nftstore/internal/domain"
)

type stake struct {
	principal uint256.Int
	pending   uint256.Int
	since     uint64
}

// Staker pays RewardBps of the staked principal per block, minted from the
// currency on harvest.
type Staker struct {
	address   common.Address
	currency  *Token
	rewardBps uint64
	stakes    map[common.Address]stake
}

func NewStaker(address common.Address, currency *Token, rewardBps uint64) *Staker {
	return &Staker{
		address:   address,
		currency:  currency,
		rewardBps: rewardBps,
		stakes:    make(map[common.Address]stake),
	}
}

func (s *Staker) Address() common.Address { return s.address }

// Staked returns holder's principal.
func (s *Staker) Staked(holder common.Address) uint256.Int {
	st := s.stakes[holder]
	return st.principal
}

// Pending returns holder's unharvested reward as of height.
func (s *Staker) Pending(holder common.Address, height uint64) uint256.Int {
	st := s.accrue(s.stakes[holder], height)
	return st.pending
}

// Deposit moves amount from holder into the stake.
func (s *Staker) Deposit(tx domain.Tx, holder common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	if err := s.currency.Transfer(tx, holder, s.address, amount); err != nil {
		return fmt.Errorf("ledger: stake deposit: %w", err)
	}
	st := s.accrue(s.stakes[holder], tx.Height())
	st.principal.Add(&st.principal, amount)
	chain.Set(tx, s.stakes, holder, st)
	return nil
}

// Withdraw returns amount of principal to holder.
func (s *Staker) Withdraw(tx domain.Tx, holder common.Address, amount *uint256.Int) error {
	st := s.accrue(s.stakes[holder], tx.Height())
	if st.principal.Lt(amount) {
		return fmt.Errorf("ledger: stake withdraw: %w", ErrInsufficientBalance)
	}
	st.principal.Sub(&st.principal, amount)
	chain.Set(tx, s.stakes, holder, st)
	if amount.IsZero() {
		return nil
	}
	if err := s.currency.Transfer(tx, s.address, holder, amount); err != nil {
		return fmt.Errorf("ledger: stake withdraw: %w", err)
	}
	return nil
}

// Harvest mints holder's accrued reward to holder and returns it.
func (s *Staker) Harvest(tx domain.Tx, holder common.Address) (uint256.Int, error) {
	st := s.accrue(s.stakes[holder], tx.Height())
	reward := st.pending
	st.pending.Clear()
	chain.Set(tx, s.stakes, holder, st)
	if reward.IsZero() {
		return reward, nil
	}
	if err := s.currency.Mint(tx, holder, &reward); err != nil {
		return uint256.Int{}, fmt.Errorf("ledger: harvest: %w", err)
	}
	return reward, nil
}

func (s *Staker) accrue(st stake, height uint64) stake {
	if height > st.since && !st.principal.IsZero() {
		r := new(uint256.Int).Mul(&st.principal, uint256.NewInt(s.rewardBps))
		r.Mul(r, uint256.NewInt(height-st.since))
		r.Div(r, uint256.NewInt(domain.MaxBps))
		st.pending.Add(&st.pending, r)
	}
	if height > st.since {
		st.since = height
	}
	return st
}

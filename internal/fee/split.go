// Package fee computes and routes the fee split of a settlement.
package fee

import (
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/nftstore/internal/domain"
)

// Split is the division of one settlement amount. Owner+Staking+Seller always
// equals the amount it was computed from.
type Split struct {
	Owner   uint256.Int
	Staking uint256.Int
	Seller  uint256.Int
}

// Compute splits amount per cfg, flooring each fee share. The seller receives
// the remainder.
func Compute(amount *uint256.Int, cfg domain.FeeConfig) Split {
	var s Split
	s.Owner = share(amount, cfg.OwnerFeeBps)
	s.Staking = share(amount, cfg.StakingFeeBps)
	s.Seller.Sub(amount, &s.Owner)
	s.Seller.Sub(&s.Seller, &s.Staking)
	return s
}

// share returns floor(amount * bps / 10000) without overflowing for any amount.
func share(amount *uint256.Int, bps uint16) uint256.Int {
	if bps == 0 {
		return uint256.Int{}
	}
	denom := uint256.NewInt(domain.MaxBps)
	b := uint256.NewInt(uint64(bps))

	q, r := new(uint256.Int), new(uint256.Int)
	q.DivMod(amount, denom, r)

	out := new(uint256.Int).Mul(q, b)
	rem := new(uint256.Int).Mul(r, b)
	rem.Div(rem, denom)
	out.Add(out, rem)
	return *out
}

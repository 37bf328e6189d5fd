package fee

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/nftstore/internal/domain"
)

type payment struct {
	to     common.Address
	amount uint64
}

type fakePayer struct {
	paid []payment
	fail map[common.Address]bool
}

func (p *fakePayer) PushCurrency(_ domain.Tx, to common.Address, amount *uint256.Int) error {
	if p.fail[to] {
		return domain.ErrTransferFailure
	}
	p.paid = append(p.paid, payment{to, amount.Uint64()})
	return nil
}

type fakeVault struct {
	addr     common.Address
	deposits []uint64
	err      error
}

func (v *fakeVault) Address() common.Address { return v.addr }
func (v *fakeVault) Claim(domain.Tx) error   { return nil }
func (v *fakeVault) Deposit(_ domain.Tx, amount *uint256.Int) error {
	if v.err != nil {
		return v.err
	}
	v.deposits = append(v.deposits, amount.Uint64())
	return nil
}

var (
	seller       = common.HexToAddress("0x5e11e7")
	ownerVault   = common.HexToAddress("0x5704")
	stakingVault = common.HexToAddress("0x5705")
)

func TestComputeFloorsShares(t *testing.T) {
	tests := []struct {
		name    string
		amount  uint64
		cfg     domain.FeeConfig
		owner   uint64
		staking uint64
		seller  uint64
	}{
		{"no fees", 1_000, domain.FeeConfig{}, 0, 0, 1_000},
		{"store test rates", 10_000, domain.FeeConfig{OwnerFeeBps: 5_000, StakingFeeBps: 1_000}, 5_000, 1_000, 4_000},
		{"floors", 999, domain.FeeConfig{OwnerFeeBps: 250, StakingFeeBps: 100}, 24, 9, 966},
		{"all fees", 777, domain.FeeConfig{OwnerFeeBps: 10_000}, 777, 0, 0},
		{"tiny", 1, domain.FeeConfig{OwnerFeeBps: 9_999}, 0, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Compute(uint256.NewInt(tt.amount), tt.cfg)
			assert.Equal(t, tt.owner, s.Owner.Uint64())
			assert.Equal(t, tt.staking, s.Staking.Uint64())
			assert.Equal(t, tt.seller, s.Seller.Uint64())
		})
	}
}

func TestComputeNoOverflowNearMax(t *testing.T) {
	amount := new(uint256.Int).SetAllOne()
	s := Compute(amount, domain.FeeConfig{OwnerFeeBps: 10_000})
	assert.True(t, s.Owner.Eq(amount))
	assert.True(t, s.Seller.IsZero())

	s = Compute(amount, domain.FeeConfig{OwnerFeeBps: 3_333, StakingFeeBps: 3_333})
	total := new(uint256.Int).Add(&s.Owner, &s.Staking)
	total.Add(total, &s.Seller)
	assert.True(t, total.Eq(amount))
}

func TestSettleRoutesShares(t *testing.T) {
	payer := &fakePayer{}
	ov := &fakeVault{addr: ownerVault}
	sv := &fakeVault{addr: stakingVault}
	r := NewRouter(payer, ov, sv)

	split, err := r.Settle(nil, seller, uint256.NewInt(10_000), domain.FeeConfig{OwnerFeeBps: 5_000, StakingFeeBps: 1_000})
	require.NoError(t, err)
	assert.Equal(t, uint64(4_000), split.Seller.Uint64())
	assert.Equal(t, []payment{{ownerVault, 5_000}, {stakingVault, 1_000}, {seller, 4_000}}, payer.paid)
	assert.Equal(t, []uint64{5_000}, ov.deposits)
	assert.Equal(t, []uint64{1_000}, sv.deposits)
}

func TestSettleSkipsZeroShares(t *testing.T) {
	payer := &fakePayer{}
	ov := &fakeVault{addr: ownerVault}
	r := NewRouter(payer, ov, nil)

	_, err := r.Settle(nil, seller, uint256.NewInt(500), domain.FeeConfig{})
	require.NoError(t, err)
	assert.Equal(t, []payment{{seller, 500}}, payer.paid)
	assert.Empty(t, ov.deposits)
}

func TestSettleVaultFailureAborts(t *testing.T) {
	payer := &fakePayer{}
	ov := &fakeVault{addr: ownerVault, err: errors.New("paused")}
	r := NewRouter(payer, ov, &fakeVault{addr: stakingVault})

	_, err := r.Settle(nil, seller, uint256.NewInt(500), domain.FeeConfig{OwnerFeeBps: 100})
	assert.ErrorIs(t, err, domain.ErrTransferFailure)
}

package world

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Fixed devnet contract addresses.
var (
	DevStore        = common.HexToAddress("0x0000000000000000000000000000000000005701")
	DevCurrency     = common.HexToAddress("0x0000000000000000000000000000000000005702")
	DevStaker       = common.HexToAddress("0x0000000000000000000000000000000000005703")
	DevOwnerVault   = common.HexToAddress("0x0000000000000000000000000000000000005704")
	DevStakingVault = common.HexToAddress("0x0000000000000000000000000000000000005705")
	DevCollection   = common.HexToAddress("0x0000000000000000000000000000000000005710")
)

// DevConfig returns a single-collection automining devnet administered by admin.
// Both vaults pay out to admin.
func DevConfig(admin common.Address) Config {
	return Config{
		ChainID:            1337,
		AutoMine:           true,
		BlockGap:           12 * time.Second,
		Store:              DevStore,
		Admin:              admin,
		Currency:           DevCurrency,
		CurrencySymbol:     "MIX",
		CurrencyName:       "Mix Token",
		CurrencyVersion:    "1",
		Staker:             DevStaker,
		RewardBps:          0,
		OwnerVault:         DevOwnerVault,
		OwnerBeneficiary:   admin,
		StakingVault:       DevStakingVault,
		StakingBeneficiary: admin,
		Collections: []Collection{
			{Address: DevCollection, Name: "Dev Collection", Version: "1"},
		},
	}
}

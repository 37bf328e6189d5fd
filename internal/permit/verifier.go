package permit

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/nftstore/internal/chain"
	"github.com/alanyoungcy/nftstore/internal/domain"
)

// Verifier checks permits for one contract and consumes their nonces.
// Asset permits are numbered per token id; currency permits per owner.
type Verifier struct {
	domain Domain
	nonces map[common.Hash]uint64
}

// NewVerifier creates a Verifier for d.
func NewVerifier(d Domain) *Verifier {
	return &Verifier{domain: d, nonces: make(map[common.Hash]uint64)}
}

// Domain returns the signing domain.
func (v *Verifier) Domain() Domain { return v.domain }

// AssetNonce returns the next nonce for asset id.
func (v *Verifier) AssetNonce(id *uint256.Int) uint64 {
	return v.nonces[assetSubject(id)]
}

// OwnerNonce returns the next currency permit nonce for owner.
func (v *Verifier) OwnerNonce(owner common.Address) uint64 {
	return v.nonces[ownerSubject(owner)]
}

// VerifyAsset checks that owner signed an approval of spender for id, valid
// until deadline, and consumes the nonce for id.
func (v *Verifier) VerifyAsset(tx domain.Tx, owner, spender common.Address, id, deadline *uint256.Int, sig []byte) error {
	if err := checkDeadline(tx, deadline); err != nil {
		return err
	}
	subject := assetSubject(id)
	msg := AssetPermit{Spender: spender, ID: *id, Nonce: v.nonces[subject], Deadline: *deadline}
	if err := v.check(owner, msg, sig); err != nil {
		return err
	}
	chain.Set(tx, v.nonces, subject, msg.Nonce+1)
	return nil
}

// VerifyCurrency checks an EIP-2612 permit and consumes owner's nonce.
func (v *Verifier) VerifyCurrency(tx domain.Tx, owner, spender common.Address, value, deadline *uint256.Int, sig []byte) error {
	if err := checkDeadline(tx, deadline); err != nil {
		return err
	}
	subject := ownerSubject(owner)
	msg := CurrencyPermit{Owner: owner, Spender: spender, Value: *value, Nonce: v.nonces[subject], Deadline: *deadline}
	if err := v.check(owner, msg, sig); err != nil {
		return err
	}
	chain.Set(tx, v.nonces, subject, msg.Nonce+1)
	return nil
}

func (v *Verifier) check(owner common.Address, msg Message, sig []byte) error {
	signer, err := Recover(v.domain, msg, sig)
	if err != nil {
		return err
	}
	if signer != owner {
		return fmt.Errorf("permit: %w: signed by %s, want %s", domain.ErrSignatureInvalid, signer.Hex(), owner.Hex())
	}
	return nil
}

func checkDeadline(tx domain.Tx, deadline *uint256.Int) error {
	if deadline.Lt(uint256.NewInt(tx.Time())) {
		return fmt.Errorf("permit: %w: deadline %s before block time %d", domain.ErrExpiredOrNotYetDue, deadline.Dec(), tx.Time())
	}
	return nil
}

func assetSubject(id *uint256.Int) common.Hash {
	return common.Hash(id.Bytes32())
}

func ownerSubject(owner common.Address) common.Hash {
	return common.BytesToHash(owner.Bytes())
}

package permit

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/nftstore/internal/domain"
)

// SignatureLength is the length of an r || s || v signature.
const SignatureLength = 65

// Recover returns the address that signed m under d. It accepts v in {0,1} or
// {27,28} and rejects malleable high-s signatures.
func Recover(d Domain, m Message, sig []byte) (common.Address, error) {
	if len(sig) != SignatureLength {
		return common.Address{}, fmt.Errorf("permit: %w: length %d", domain.ErrSignatureInvalid, len(sig))
	}

	v := sig[64]
	if v >= 27 {
		v -= 27
	}
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])
	if !ethcrypto.ValidateSignatureValues(v, r, s, true) {
		return common.Address{}, fmt.Errorf("permit: %w: bad r, s or v", domain.ErrSignatureInvalid)
	}

	normalized := make([]byte, SignatureLength)
	copy(normalized, sig)
	normalized[64] = v

	digest := Digest(d, m)
	pub, err := ethcrypto.SigToPub(digest[:], normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("permit: %w: %w", domain.ErrSignatureInvalid, err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

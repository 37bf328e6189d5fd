package ledger

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/nftstore/internal/domain"
)

// Registry resolves collection addresses to their asset ledger.
type Registry struct {
	nfts map[common.Address]*NFT
}

func NewRegistry(nfts ...*NFT) *Registry {
	r := &Registry{nfts: make(map[common.Address]*NFT, len(nfts))}
	for _, n := range nfts {
		r.nfts[n.Address()] = n
	}
	return r
}

// Collection implements escrow.Registry.
func (r *Registry) Collection(addr common.Address) (domain.NFTLedger, error) {
	n, err := r.NFT(addr)
	if err != nil {
		return nil, err
	}
	return n, nil
}

// NFT returns the concrete ledger for addr.
func (r *Registry) NFT(addr common.Address) (*NFT, error) {
	n, ok := r.nfts[addr]
	if !ok {
		return nil, fmt.Errorf("ledger: collection %s: %w", addr.Hex(), ErrUnknownCollection)
	}
	return n, nil
}

// Addresses lists registered collections in byte order.
func (r *Registry) Addresses() []common.Address {
	out := make([]common.Address, 0, len(r.nfts))
	for a := range r.nfts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

package chain

import "github.com/ethereum/go-ethereum/common"

// Journal records undo actions.
type Journal interface {
	OnRevert(undo func())
}

// Tx is the context of one operation executing inside a block.
type Tx struct {
	sender common.Address
	block  Block
	undo   []func()
}

func (tx *Tx) Sender() common.Address { return tx.sender }
func (tx *Tx) Height() uint64         { return tx.block.Height }
func (tx *Tx) Time() uint64           { return tx.block.Time }

// OnRevert registers undo to run if the operation fails.
func (tx *Tx) OnRevert(undo func()) {
	tx.undo = append(tx.undo, undo)
}

func (tx *Tx) revert() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

// Set writes m[k] = v and journals the previous entry.
func Set[K comparable, V any](j Journal, m map[K]V, k K, v V) {
	prev, had := m[k]
	m[k] = v
	j.OnRevert(func() {
		if had {
			m[k] = prev
		} else {
			delete(m, k)
		}
	})
}

// Delete removes m[k] and journals the previous entry.
func Delete[K comparable, V any](j Journal, m map[K]V, k K) {
	prev, had := m[k]
	if !had {
		return
	}
	delete(m, k)
	j.OnRevert(func() { m[k] = prev })
}

// Assign writes *p = v and journals the previous value.
func Assign[V any](j Journal, p *V, v V) {
	prev := *p
	*p = v
	j.OnRevert(func() { *p = prev })
}

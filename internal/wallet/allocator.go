package wallet

import (
	"context"
	"fmt"
)

// IndexSource reports the highest derivation index already claimed by an
// order, -1 when none exist.
type IndexSource interface {
	MaxAddressIndex(ctx context.Context) (int64, error)
}

// Allocator hands out the next unused derivation index. The index is not
// reserved here: the order insert claims it, and the store's uniqueness
// constraints turn a concurrent double-allocation into a visible creation
// failure instead of two orders sharing an address.
type Allocator struct {
	Source  IndexSource
	Deriver *Deriver
}

func (a *Allocator) AllocateAddress(ctx context.Context) (string, int64, error) {
	max, err := a.Source.MaxAddressIndex(ctx)
	if err != nil {
		return "", 0, fmt.Errorf("read max address index: %w", err)
	}

	index := max + 1
	address, err := a.Deriver.Address(uint32(index))
	if err != nil {
		return "", 0, err
	}
	return address, index, nil
}

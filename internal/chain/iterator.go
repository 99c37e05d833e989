package chain

import "fmt"

// Iterator yields blocks lazily from the tip back to genesis by following
// previous-hash links, in descending height order. Next returns (nil, nil)
// once genesis has been consumed.
type Iterator struct {
	currentHash string
	store       BlockStore
}

// Next returns the block at the current position and steps backwards.
func (it *Iterator) Next() (*Block, error) {
	if it.currentHash == "" {
		return nil, nil
	}

	data, ok, err := it.store.GetBlock(it.currentHash)
	if err != nil {
		return nil, fmt.Errorf("get block %s: %w", it.currentHash, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBlockNotFound, it.currentHash)
	}

	b, err := DeserializeBlock(data)
	if err != nil {
		return nil, err
	}

	it.currentHash = b.PrevHash
	return b, nil
}

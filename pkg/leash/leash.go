package leash

import (
	"errors"
	"fmt"
)

var (
	ErrLeashFromFuture = errors.New("leash references a block beyond the current head")
	ErrLeashExpired    = errors.New("leash block range has elapsed")
)

// Leash binds a signed call to a recent block and a window of blocks after it.
// The runtime rejects the call once the chain has moved past BlockNumber+BlockRange.
type Leash struct {
	Nonce       uint64 `json:"nonce" cbor:"nonce"`
	BlockNumber uint64 `json:"block_number" cbor:"block_number"`
	BlockHash   []byte `json:"block_hash" cbor:"block_hash"`
	BlockRange  uint64 `json:"block_range" cbor:"block_range"`
}

// NewLeash carries the values as given. Nothing is validated here; callers pick a recent
// block and a small range.
func NewLeash(nonce uint64, blockNumber uint64, blockHash []byte, blockRange uint64) Leash {
	return Leash{
		Nonce:       nonce,
		BlockNumber: blockNumber,
		BlockHash:   blockHash,
		BlockRange:  blockRange,
	}
}

// CheckFreshness reports whether a call signed with this leash is still acceptable at head.
func (l Leash) CheckFreshness(head uint64) error {
	if head < l.BlockNumber {
		return fmt.Errorf("%w: block %d, head %d", ErrLeashFromFuture, l.BlockNumber, head)
	}
	// head-BlockNumber cannot underflow here, and avoids overflowing BlockNumber+BlockRange
	if head-l.BlockNumber > l.BlockRange {
		return fmt.Errorf("%w: block %d + range %d, head %d", ErrLeashExpired, l.BlockNumber, l.BlockRange, head)
	}
	return nil
}

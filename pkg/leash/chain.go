package leash

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// IChainReader is the part of ethclient.Client needed to build a leash from live chain state.
type IChainReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
}

// FromChain builds a leash anchored one block behind the current head, so that the
// referenced block is already known to every node serving the call.
func FromChain(ctx context.Context, reader IChainReader, caller common.Address, blockRange uint64) (Leash, error) {
	head, err := reader.BlockNumber(ctx)
	if err != nil {
		return Leash{}, fmt.Errorf("failed to get block number: %w", err)
	}
	blockNumber := head
	if blockNumber > 0 {
		blockNumber--
	}

	header, err := reader.HeaderByNumber(ctx, new(big.Int).SetUint64(blockNumber))
	if err != nil {
		return Leash{}, fmt.Errorf("failed to get header for block %d: %w", blockNumber, err)
	}
	if header == nil {
		return Leash{}, fmt.Errorf("header for block %d not found", blockNumber)
	}

	nonce, err := reader.NonceAt(ctx, caller, nil)
	if err != nil {
		return Leash{}, fmt.Errorf("failed to get nonce for %s: %w", caller.Hex(), err)
	}

	return NewLeash(nonce, blockNumber, header.Hash().Bytes(), blockRange), nil
}

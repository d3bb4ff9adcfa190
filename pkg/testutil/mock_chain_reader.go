package testutil

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// MockChainReader serves block numbers, headers and nonces from memory.
// It satisfies leash.IChainReader without a node.
type MockChainReader struct {
	logger       *zap.Logger
	currentBlock uint64
	nonces       map[common.Address]uint64
	err          error
	mu           sync.Mutex
}

func NewMockChainReader(currentBlock uint64, logger *zap.Logger) *MockChainReader {
	return &MockChainReader{
		logger:       logger,
		currentBlock: currentBlock,
		nonces:       make(map[common.Address]uint64),
	}
}

func (m *MockChainReader) BlockNumber(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	return m.currentBlock, nil
}

// HeaderByNumber returns a deterministic header for any block up to the current one.
// A nil number means the latest block.
func (m *MockChainReader) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}

	blockNumber := m.currentBlock
	if number != nil {
		blockNumber = number.Uint64()
	}
	if blockNumber > m.currentBlock {
		return nil, fmt.Errorf("block %d not found", blockNumber)
	}
	m.logger.Sugar().Debugw("MockChainReader serving header", "block_number", blockNumber)
	return MockHeader(blockNumber), nil
}

func (m *MockChainReader) NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	return m.nonces[account], nil
}

// AdvanceBlocks moves the head forward by n blocks and returns the new head.
func (m *MockChainReader) AdvanceBlocks(n uint64) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentBlock += n
	return m.currentBlock
}

func (m *MockChainReader) GetCurrentBlock() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentBlock
}

func (m *MockChainReader) SetNonce(account common.Address, nonce uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nonces[account] = nonce
}

// SetError makes every following call fail with err. Pass nil to recover.
func (m *MockChainReader) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// MockHeader builds the header MockChainReader returns for blockNumber.
func MockHeader(blockNumber uint64) *types.Header {
	return &types.Header{
		Number:     new(big.Int).SetUint64(blockNumber),
		ParentHash: generateBlockHash(blockNumber - 1),
		Difficulty: big.NewInt(0),
		Time:       blockNumber,
	}
}

// generateBlockHash generates a deterministic block hash for testing
func generateBlockHash(blockNumber uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(blockNumber))
}

package calldataPublicKey

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Layr-Labs/confidential-calls-go/pkg/config"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/crypto/curve25519"
)

// CalldataPublicKey is the runtime's X25519 key for encrypting call data in a given epoch,
// as returned by oasis_callDataPublicKey.
type CalldataPublicKey struct {
	Key       hexutil.Bytes `json:"key"`
	Checksum  hexutil.Bytes `json:"checksum"`
	Signature hexutil.Bytes `json:"signature"`
	Epoch     uint64        `json:"epoch"`
}

// PublicKey returns Key as a curve point.
func (k *CalldataPublicKey) PublicKey() ([curve25519.PointSize]byte, error) {
	var pk [curve25519.PointSize]byte
	if len(k.Key) != curve25519.PointSize {
		return pk, fmt.Errorf("invalid calldata public key length %d, expected %d", len(k.Key), curve25519.PointSize)
	}
	copy(pk[:], k.Key)
	return pk, nil
}

// KeyManager holds the calldata public keys of the most recent epochs, oldest first.
type KeyManager struct {
	mu         sync.RWMutex
	keys       []*CalldataPublicKey
	epochLimit uint64
}

func NewKeyManager() *KeyManager {
	return &KeyManager{epochLimit: config.EpochLimit}
}

// Add stores pk if it is newer than every known key, then drops keys more than
// EpochLimit epochs older than pk.
func (m *KeyManager) Add(pk *CalldataPublicKey) {
	if pk == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.keys) == 0 {
		m.keys = append(m.keys, pk)
		return
	}
	if m.keys[len(m.keys)-1].Epoch < pk.Epoch {
		m.keys = append(m.keys, pk)
	}
	m.trim(pk.Epoch)
}

func (m *KeyManager) trim(newestEpoch uint64) {
	kept := m.keys[:0]
	for _, k := range m.keys {
		if k.Epoch+m.epochLimit >= newestEpoch {
			kept = append(kept, k)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Epoch < kept[j].Epoch })
	if uint64(len(kept)) > m.epochLimit {
		kept = kept[uint64(len(kept))-m.epochLimit:]
	}
	m.keys = kept
}

// Newest returns the key of the latest epoch, or nil when none is known.
func (m *KeyManager) Newest() *CalldataPublicKey {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.keys) == 0 {
		return nil
	}
	return m.keys[len(m.keys)-1]
}

// Clear forgets every key so the next lookup fetches a fresh one.
func (m *KeyManager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = nil
}

func (m *KeyManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.keys)
}

package inMemoryCallSigner

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/Layr-Labs/confidential-calls-go/pkg/callSigner"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

type InMemoryCallSigner struct {
	logger     *zap.Logger
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

var _ callSigner.ICallSigner = (*InMemoryCallSigner)(nil)

func NewInMemoryCallSigner(privateKey *ecdsa.PrivateKey, logger *zap.Logger) (*InMemoryCallSigner, error) {
	if privateKey == nil {
		return nil, fmt.Errorf("private key cannot be nil")
	}
	return &InMemoryCallSigner{
		logger:     logger,
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
	}, nil
}

// NewInMemoryCallSignerFromHex loads a secp256k1 key from hex, with or without the 0x prefix.
func NewInMemoryCallSignerFromHex(privateKeyHex string, logger *zap.Logger) (*InMemoryCallSigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("error loading private key: %w", err)
	}
	return NewInMemoryCallSigner(key, logger)
}

// Sign signs the digest directly, without any message prefix.
func (s *InMemoryCallSigner) Sign(ctx context.Context, digest [32]byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(digest[:], s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign digest: %w", err)
	}

	s.logger.Debug("Signed call digest",
		zap.String("address", s.address.Hex()),
		zap.String("digest", common.Hash(digest).Hex()),
	)
	return sig, nil
}

func (s *InMemoryCallSigner) Address() common.Address {
	return s.address
}

package callSigner

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	SignatureLength = 65

	// RecoveryIdHigh is written into every signature's V byte. The runtime verifies
	// signed calls assuming wallets' high recovery id.
	RecoveryIdHigh byte = 28
)

// ICallSigner produces secp256k1 signatures over a 32 byte digest.
type ICallSigner interface {
	// Sign returns a 65 byte signature as R || S || V. The value of V is not relied upon.
	Sign(ctx context.Context, digest [32]byte) ([]byte, error)
}

// SignerFunc adapts a plain function to ICallSigner.
type SignerFunc func(ctx context.Context, digest [32]byte) ([]byte, error)

func (f SignerFunc) Sign(ctx context.Context, digest [32]byte) ([]byte, error) {
	return f(ctx, digest)
}

// Digest computes keccak256(0x19 0x01 || domainSeparator || hashStruct(message)).
func Digest(typedData apitypes.TypedData) ([32]byte, error) {
	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return [32]byte{}, &HashingError{Stage: HashStageDomain, Err: err}
	}
	typedDataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return [32]byte{}, &HashingError{Stage: HashStageMessage, Err: err}
	}
	return crypto.Keccak256Hash([]byte{0x19, 0x01}, domainSeparator, typedDataHash), nil
}

// SignTypedData hashes the document and signs the digest with signer. The returned
// signature is a copy with its recovery id set to RecoveryIdHigh.
func SignTypedData(ctx context.Context, signer ICallSigner, typedData apitypes.TypedData) ([]byte, error) {
	digest, err := Digest(typedData)
	if err != nil {
		return nil, err
	}

	signature, err := signer.Sign(ctx, digest)
	if err != nil {
		return nil, &SigningError{Err: err}
	}
	if len(signature) != SignatureLength {
		return nil, &SigningError{Err: fmt.Errorf("signer returned %d bytes, expected %d", len(signature), SignatureLength)}
	}

	normalized := make([]byte, SignatureLength)
	copy(normalized, signature)
	normalized[64] = RecoveryIdHigh
	return normalized, nil
}

package envelope

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/Layr-Labs/confidential-calls-go/pkg/callSigner"
	"github.com/Layr-Labs/confidential-calls-go/pkg/cipher"
	"github.com/Layr-Labs/confidential-calls-go/pkg/leash"
	"github.com/Layr-Labs/confidential-calls-go/pkg/typedData"
	"github.com/Layr-Labs/confidential-calls-go/pkg/util"
	"github.com/fxamacker/cbor/v2"
)

var (
	ErrEncryption = errors.New("call data encryption failed")
	ErrNilCipher  = errors.New("cipher cannot be nil")
)

// EncryptionError is returned when the cipher cannot encode a call body.
type EncryptionError struct {
	Err error
}

func (e *EncryptionError) Error() string {
	return fmt.Sprintf("failed to encrypt call data: %v", e.Err)
}

func (e *EncryptionError) Unwrap() []error {
	return []error{ErrEncryption, e.Err}
}

// Data holds the plaintext call data.
type Data struct {
	Body []byte `json:"body" cbor:"body"`
}

// SignedCallDataPack is a call signed by its sender. Encode it into the data field of an eth_call.
type SignedCallDataPack struct {
	Data      Data        `json:"data" cbor:"data"`
	Leash     leash.Leash `json:"leash" cbor:"leash"`
	Signature []byte      `json:"signature" cbor:"signature"`
}

// fullPack is the wire form of a pack whose data is already an encoded call envelope.
type fullPack struct {
	Data      cbor.RawMessage `cbor:"data"`
	Leash     leash.Leash     `cbor:"leash"`
	Signature []byte          `cbor:"signature"`
}

// NewDataPack signs the call described by the arguments and returns the pack.
// The body is kept in plain text; encryption happens at encoding time.
func NewDataPack(
	ctx context.Context,
	signer callSigner.ICallSigner,
	chainId uint64,
	caller, callee []byte,
	gasLimit uint64,
	gasPrice, value *big.Int,
	data []byte,
	l leash.Leash,
) (*SignedCallDataPack, error) {
	signable := typedData.BuildSignableCall(chainId, caller, callee, gasLimit, gasPrice, value, data, l)
	signature, err := callSigner.SignTypedData(ctx, signer, signable)
	if err != nil {
		return nil, fmt.Errorf("failed to sign call: %w", err)
	}
	return &SignedCallDataPack{
		Data:      Data{Body: data},
		Leash:     l,
		Signature: signature,
	}, nil
}

// Encode returns the body as a CBOR byte string.
func (p *SignedCallDataPack) Encode() ([]byte, error) {
	encoded, err := util.MarshalCBOR(p.Data.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode call data: %w", err)
	}
	return encoded, nil
}

// EncryptEncode hands a non-empty body to c. An empty body has nothing to hide and is
// encoded as by Encode.
func (p *SignedCallDataPack) EncryptEncode(c cipher.ICipher) ([]byte, error) {
	if len(p.Data.Body) == 0 {
		return p.Encode()
	}
	if c == nil {
		return nil, &EncryptionError{Err: ErrNilCipher}
	}
	encoded, err := c.EncryptEncode(p.Data.Body)
	if err != nil {
		return nil, &EncryptionError{Err: err}
	}
	return encoded, nil
}

// EncodeFull encodes the whole pack: the call envelope produced by c, the leash and
// the signature. This is the form the runtime expects for signed queries.
func (p *SignedCallDataPack) EncodeFull(c cipher.ICipher) ([]byte, error) {
	var (
		envelope []byte
		err      error
	)
	switch {
	case len(p.Data.Body) == 0:
		envelope, err = cipher.NewPlainCipher().EncryptEncode(p.Data.Body)
	case c == nil:
		err = ErrNilCipher
	default:
		envelope, err = c.EncryptEncode(p.Data.Body)
	}
	if err != nil {
		return nil, &EncryptionError{Err: err}
	}

	encoded, err := util.MarshalCBOR(fullPack{
		Data:      envelope,
		Leash:     p.Leash,
		Signature: p.Signature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode signed call: %w", err)
	}
	return encoded, nil
}

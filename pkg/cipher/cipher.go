package cipher

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/Layr-Labs/confidential-calls-go/pkg/util"
	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/curve25519"
)

// CallFormat identifies how a call body is wrapped on the wire.
type CallFormat uint64

const (
	CallFormatPlain                   CallFormat = 0
	CallFormatEncryptedX25519DeoxysII CallFormat = 1
)

func (f CallFormat) String() string {
	switch f {
	case CallFormatPlain:
		return "plain"
	case CallFormatEncryptedX25519DeoxysII:
		return "encrypted/x25519-deoxysii"
	default:
		return fmt.Sprintf("unknown(%d)", uint64(f))
	}
}

// ICipher wraps call data for the runtime and unwraps its responses.
type ICipher interface {
	Kind() CallFormat
	EncryptEncode(plaintext []byte) ([]byte, error)
	DecryptEncoded(response []byte) ([]byte, error)
}

var ErrMalformedResult = errors.New("malformed call result")

// CallFailedError is a failure reported by a runtime module.
type CallFailedError struct {
	Module  string
	Code    uint64
	Message string
}

func (e *CallFailedError) Error() string {
	return fmt.Sprintf("call failed in module %s with code %d: %s", e.Module, e.Code, e.Message)
}

// DataEnvelope is a call body without encryption.
type DataEnvelope struct {
	Body   []byte     `json:"body" cbor:"body"`
	Format CallFormat `json:"format,omitempty" cbor:"format,omitempty"`
}

// EncryptedBody carries the caller's ephemeral public key and the sealed DataEnvelope.
type EncryptedBody struct {
	PK    []byte `json:"pk" cbor:"pk"`
	Data  []byte `json:"data" cbor:"data"`
	Nonce []byte `json:"nonce" cbor:"nonce"`
	Epoch uint64 `json:"epoch,omitempty" cbor:"epoch,omitempty"`
}

type EncryptedBodyEnvelope struct {
	Body   EncryptedBody `json:"body" cbor:"body"`
	Format CallFormat    `json:"format" cbor:"format"`
}

// ResultEnvelope is a sealed call result.
type ResultEnvelope struct {
	Nonce []byte `json:"nonce" cbor:"nonce"`
	Data  []byte `json:"data" cbor:"data"`
}

type Failure struct {
	Module  string `json:"module" cbor:"module"`
	Code    uint64 `json:"code" cbor:"code"`
	Message string `json:"message,omitempty" cbor:"message,omitempty"`
}

// KeyPair is an X25519 key pair.
type KeyPair struct {
	PublicKey [curve25519.PointSize]byte
	SecretKey [curve25519.ScalarSize]byte
}

// NewKeyPair generates an ephemeral X25519 key pair.
func NewKeyPair() (*KeyPair, error) {
	var kp KeyPair
	if _, err := rand.Read(kp.SecretKey[:]); err != nil {
		return nil, fmt.Errorf("failed to generate secret key: %w", err)
	}
	pk, err := curve25519.X25519(kp.SecretKey[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive public key: %w", err)
	}
	copy(kp.PublicKey[:], pk)
	return &kp, nil
}

// PlainCipher wraps call data in an unencrypted call envelope.
type PlainCipher struct{}

var _ ICipher = PlainCipher{}

func NewPlainCipher() PlainCipher {
	return PlainCipher{}
}

func (PlainCipher) Kind() CallFormat {
	return CallFormatPlain
}

func (PlainCipher) EncryptEncode(plaintext []byte) ([]byte, error) {
	encoded, err := util.MarshalCBOR(DataEnvelope{Body: plaintext})
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return encoded, nil
}

func (PlainCipher) DecryptEncoded(response []byte) ([]byte, error) {
	ok, sealed, err := decodeCallResult(response)
	if err != nil {
		return nil, err
	}
	if sealed != nil {
		return nil, fmt.Errorf("%w: sealed result for a plain call", ErrMalformedResult)
	}
	return ok, nil
}

// decodeCallResult splits a CBOR call result into its single variant.
func decodeCallResult(data []byte) (ok []byte, unknown *ResultEnvelope, err error) {
	var result map[string]cbor.RawMessage
	if err := util.UnmarshalCBOR(data, &result); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedResult, err)
	}
	if len(result) != 1 {
		return nil, nil, fmt.Errorf("%w: expected exactly one variant, got %d", ErrMalformedResult, len(result))
	}

	if raw, found := result["fail"]; found {
		var failure Failure
		if err := util.UnmarshalCBOR(raw, &failure); err != nil {
			return nil, nil, fmt.Errorf("%w: bad failure: %v", ErrMalformedResult, err)
		}
		return nil, nil, &CallFailedError{Module: failure.Module, Code: failure.Code, Message: failure.Message}
	}
	if raw, found := result["unknown"]; found {
		var envelope ResultEnvelope
		if err := util.UnmarshalCBOR(raw, &envelope); err != nil {
			return nil, nil, fmt.Errorf("%w: bad result envelope: %v", ErrMalformedResult, err)
		}
		return nil, &envelope, nil
	}
	if raw, found := result["ok"]; found {
		var out []byte
		if err := util.UnmarshalCBOR(raw, &out); err != nil {
			return nil, nil, fmt.Errorf("%w: bad ok value: %v", ErrMalformedResult, err)
		}
		if out == nil {
			out = []byte{}
		}
		return out, nil, nil
	}
	return nil, nil, fmt.Errorf("%w: unknown variant", ErrMalformedResult)
}

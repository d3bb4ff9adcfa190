package testutil

import (
	"context"
	"sync"

	"github.com/Layr-Labs/confidential-calls-go/pkg/calldataPublicKey"
	"github.com/Layr-Labs/confidential-calls-go/pkg/cipher"
	"github.com/Layr-Labs/confidential-calls-go/pkg/util"
)

// MockRuntime holds the runtime's calldata key pair. It hands out the public key like
// oasis_callDataPublicKey and opens envelopes addressed to it.
type MockRuntime struct {
	keyPair *cipher.KeyPair
	epoch   uint64
	err     error
	calls   int
	mu      sync.Mutex
}

func NewMockRuntime(epoch uint64) (*MockRuntime, error) {
	kp, err := cipher.NewKeyPair()
	if err != nil {
		return nil, err
	}
	return &MockRuntime{keyPair: kp, epoch: epoch}, nil
}

func (r *MockRuntime) GetCallDataPublicKey(ctx context.Context) (*calldataPublicKey.CalldataPublicKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return &calldataPublicKey.CalldataPublicKey{
		Key:   append([]byte(nil), r.keyPair.PublicKey[:]...),
		Epoch: r.epoch,
	}, nil
}

// Calls returns how many times the key was requested.
func (r *MockRuntime) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func (r *MockRuntime) SetError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Open decrypts an encrypted call envelope and returns its body together with the session
// the runtime would use to seal the result.
func (r *MockRuntime) Open(encoded []byte) ([]byte, *cipher.X25519DeoxysIICipher, error) {
	var envelope cipher.EncryptedBodyEnvelope
	if err := util.UnmarshalCBOR(encoded, &envelope); err != nil {
		return nil, nil, err
	}

	var callerPk [32]byte
	copy(callerPk[:], envelope.Body.PK)
	session, err := cipher.NewX25519DeoxysIICipher(r.keyPair, callerPk, envelope.Body.Epoch)
	if err != nil {
		return nil, nil, err
	}
	inner, err := session.Decrypt(envelope.Body.Nonce, envelope.Body.Data)
	if err != nil {
		return nil, nil, err
	}
	var data cipher.DataEnvelope
	if err := util.UnmarshalCBOR(inner, &data); err != nil {
		return nil, nil, err
	}
	return data.Body, session, nil
}

// SealOk encodes data as a successful sealed call result for session.
func SealOk(session *cipher.X25519DeoxysIICipher, data []byte) ([]byte, error) {
	inner, err := util.MarshalCBOR(map[string][]byte{"ok": data})
	if err != nil {
		return nil, err
	}
	ciphertext, nonce, err := session.Encrypt(inner)
	if err != nil {
		return nil, err
	}
	return util.MarshalCBOR(map[string]cipher.ResultEnvelope{
		"unknown": {Nonce: nonce, Data: ciphertext},
	})
}

package cipher

import (
	stdcipher "crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha512"
	"fmt"
	"io"

	"github.com/Layr-Labs/confidential-calls-go/pkg/util"
	"github.com/oasisprotocol/deoxysii"
	"golang.org/x/crypto/curve25519"
)

// Key derivation context shared with the runtime's MRAE box.
var boxKDFContext = []byte("MRAE_Box_Deoxys-II-256-128")

// X25519DeoxysIICipher seals call data to the runtime's calldata public key.
type X25519DeoxysIICipher struct {
	aead      stdcipher.AEAD
	publicKey [curve25519.PointSize]byte
	epoch     uint64
	rand      io.Reader
}

var _ ICipher = (*X25519DeoxysIICipher)(nil)

// DeriveSymmetricKey returns HMAC-SHA512/256(context, X25519(secretKey, peerPublicKey)).
func DeriveSymmetricKey(secretKey [curve25519.ScalarSize]byte, peerPublicKey [curve25519.PointSize]byte) ([]byte, error) {
	shared, err := curve25519.X25519(secretKey[:], peerPublicKey[:])
	if err != nil {
		return nil, fmt.Errorf("failed to compute shared secret: %w", err)
	}
	kdf := hmac.New(sha512.New512_256, boxKDFContext)
	kdf.Write(shared)
	return kdf.Sum(nil), nil
}

// NewX25519DeoxysIICipher builds a cipher between keyPair and the runtime's public key for epoch.
// A zero epoch is left out of the envelope.
func NewX25519DeoxysIICipher(keyPair *KeyPair, peerPublicKey [curve25519.PointSize]byte, epoch uint64) (*X25519DeoxysIICipher, error) {
	if keyPair == nil {
		return nil, fmt.Errorf("key pair cannot be nil")
	}
	key, err := DeriveSymmetricKey(keyPair.SecretKey, peerPublicKey)
	if err != nil {
		return nil, err
	}
	aead, err := deoxysii.New(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create deoxysii cipher: %w", err)
	}
	return &X25519DeoxysIICipher{
		aead:      aead,
		publicKey: keyPair.PublicKey,
		epoch:     epoch,
		rand:      rand.Reader,
	}, nil
}

func (c *X25519DeoxysIICipher) Kind() CallFormat {
	return CallFormatEncryptedX25519DeoxysII
}

func (c *X25519DeoxysIICipher) PublicKey() [curve25519.PointSize]byte {
	return c.publicKey
}

func (c *X25519DeoxysIICipher) Epoch() uint64 {
	return c.epoch
}

// Encrypt seals plaintext under a fresh random nonce.
func (c *X25519DeoxysIICipher) Encrypt(plaintext []byte) (ciphertext []byte, nonce []byte, err error) {
	nonce = make([]byte, deoxysii.NonceSize)
	if _, err := io.ReadFull(c.rand, nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return c.aead.Seal(nil, nonce, plaintext, nil), nonce, nil
}

func (c *X25519DeoxysIICipher) Decrypt(nonce []byte, ciphertext []byte) ([]byte, error) {
	if len(nonce) != deoxysii.NonceSize {
		return nil, fmt.Errorf("invalid nonce size %d, expected %d", len(nonce), deoxysii.NonceSize)
	}
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

// EncryptEnvelope seals a DataEnvelope holding plaintext.
func (c *X25519DeoxysIICipher) EncryptEnvelope(plaintext []byte) (*EncryptedBodyEnvelope, error) {
	inner, err := util.MarshalCBOR(DataEnvelope{Body: plaintext})
	if err != nil {
		return nil, fmt.Errorf("failed to encode inner envelope: %w", err)
	}
	ciphertext, nonce, err := c.Encrypt(inner)
	if err != nil {
		return nil, err
	}
	return &EncryptedBodyEnvelope{
		Body: EncryptedBody{
			PK:    c.publicKey[:],
			Data:  ciphertext,
			Nonce: nonce,
			Epoch: c.epoch,
		},
		Format: c.Kind(),
	}, nil
}

func (c *X25519DeoxysIICipher) EncryptEncode(plaintext []byte) ([]byte, error) {
	envelope, err := c.EncryptEnvelope(plaintext)
	if err != nil {
		return nil, err
	}
	encoded, err := util.MarshalCBOR(envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return encoded, nil
}

// DecryptEncoded unwraps a CBOR call result, opening it when it is sealed.
func (c *X25519DeoxysIICipher) DecryptEncoded(response []byte) ([]byte, error) {
	ok, sealed, err := decodeCallResult(response)
	if err != nil {
		return nil, err
	}
	if sealed == nil {
		return ok, nil
	}

	inner, err := c.Decrypt(sealed.Nonce, sealed.Data)
	if err != nil {
		return nil, err
	}
	ok, sealed, err = decodeCallResult(inner)
	if err != nil {
		return nil, err
	}
	if sealed != nil {
		return nil, fmt.Errorf("%w: nested sealed result", ErrMalformedResult)
	}
	return ok, nil
}

package cipher

import (
	"bytes"
	"errors"
	"testing"

	"github.com/Layr-Labs/confidential-calls-go/pkg/util"
	"github.com/oasisprotocol/deoxysii"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newSession returns a caller cipher and the matching runtime-side cipher.
func newSession(t *testing.T, epoch uint64) (*X25519DeoxysIICipher, *X25519DeoxysIICipher) {
	caller, err := NewKeyPair()
	require.NoError(t, err)
	runtime, err := NewKeyPair()
	require.NoError(t, err)

	callerCipher, err := NewX25519DeoxysIICipher(caller, runtime.PublicKey, epoch)
	require.NoError(t, err)
	runtimeCipher, err := NewX25519DeoxysIICipher(runtime, caller.PublicKey, epoch)
	require.NoError(t, err)
	return callerCipher, runtimeCipher
}

func Test_KeyPair(t *testing.T) {
	t.Run("Should generate distinct key pairs", func(t *testing.T) {
		a, err := NewKeyPair()
		require.NoError(t, err)
		b, err := NewKeyPair()
		require.NoError(t, err)
		assert.NotEqual(t, a.SecretKey, b.SecretKey)
		assert.NotEqual(t, a.PublicKey, b.PublicKey)
	})

	t.Run("Should agree on the symmetric key from either side", func(t *testing.T) {
		a, err := NewKeyPair()
		require.NoError(t, err)
		b, err := NewKeyPair()
		require.NoError(t, err)

		ab, err := DeriveSymmetricKey(a.SecretKey, b.PublicKey)
		require.NoError(t, err)
		ba, err := DeriveSymmetricKey(b.SecretKey, a.PublicKey)
		require.NoError(t, err)
		assert.Equal(t, ab, ba)
		assert.Len(t, ab, deoxysii.KeySize)
	})

	t.Run("Should reject a low order peer key", func(t *testing.T) {
		a, err := NewKeyPair()
		require.NoError(t, err)
		_, err = DeriveSymmetricKey(a.SecretKey, [32]byte{})
		require.Error(t, err)
	})

	t.Run("Should reject a nil key pair", func(t *testing.T) {
		_, err := NewX25519DeoxysIICipher(nil, [32]byte{9}, 0)
		require.Error(t, err)
	})
}

func Test_X25519DeoxysIICipher(t *testing.T) {
	t.Run("Should report the encrypted call format", func(t *testing.T) {
		c, _ := newSession(t, 0)
		assert.Equal(t, CallFormatEncryptedX25519DeoxysII, c.Kind())
		assert.Equal(t, "encrypted/x25519-deoxysii", c.Kind().String())
	})

	t.Run("Should produce an envelope the runtime can open", func(t *testing.T) {
		c, runtime := newSession(t, 7)
		body := []byte("signed call pack")

		encoded, err := c.EncryptEncode(body)
		require.NoError(t, err)

		var envelope EncryptedBodyEnvelope
		require.NoError(t, util.UnmarshalCBOR(encoded, &envelope))
		assert.Equal(t, CallFormatEncryptedX25519DeoxysII, envelope.Format)
		pk := c.PublicKey()
		assert.Equal(t, pk[:], envelope.Body.PK)
		assert.Len(t, envelope.Body.Nonce, deoxysii.NonceSize)
		assert.Equal(t, uint64(7), envelope.Body.Epoch)

		inner, err := runtime.Decrypt(envelope.Body.Nonce, envelope.Body.Data)
		require.NoError(t, err)
		var data DataEnvelope
		require.NoError(t, util.UnmarshalCBOR(inner, &data))
		assert.Equal(t, body, data.Body)
		assert.Equal(t, CallFormatPlain, data.Format)
	})

	t.Run("Should omit a zero epoch from the envelope", func(t *testing.T) {
		c, _ := newSession(t, 0)
		encoded, err := c.EncryptEncode([]byte{1})
		require.NoError(t, err)

		var raw struct {
			Body map[string]any `cbor:"body"`
		}
		require.NoError(t, util.UnmarshalCBOR(encoded, &raw))
		_, hasEpoch := raw.Body["epoch"]
		assert.False(t, hasEpoch)
		assert.Len(t, raw.Body, 3)
	})

	t.Run("Should use a fresh nonce for every encryption", func(t *testing.T) {
		c, _ := newSession(t, 0)
		body := []byte("same body")

		first, err := c.EncryptEncode(body)
		require.NoError(t, err)
		second, err := c.EncryptEncode(body)
		require.NoError(t, err)
		assert.NotEqual(t, first, second)
	})

	t.Run("Should not leak the plaintext", func(t *testing.T) {
		c, _ := newSession(t, 0)
		body := []byte("a very recognisable plaintext marker")

		encoded, err := c.EncryptEncode(body)
		require.NoError(t, err)
		assert.False(t, bytes.Contains(encoded, body))
	})

	t.Run("Should fail to open a tampered ciphertext", func(t *testing.T) {
		c, runtime := newSession(t, 0)
		ciphertext, nonce, err := c.Encrypt([]byte("payload"))
		require.NoError(t, err)

		ciphertext[0] ^= 0xff
		_, err = runtime.Decrypt(nonce, ciphertext)
		require.Error(t, err)
	})

	t.Run("Should reject a nonce of the wrong size", func(t *testing.T) {
		c, _ := newSession(t, 0)
		_, err := c.Decrypt(make([]byte, 12), []byte{1, 2, 3})
		require.Error(t, err)
	})
}

func Test_DecryptEncoded(t *testing.T) {
	sealResult := func(t *testing.T, runtime *X25519DeoxysIICipher, inner any) []byte {
		plaintext, err := util.MarshalCBOR(inner)
		require.NoError(t, err)
		ciphertext, nonce, err := runtime.Encrypt(plaintext)
		require.NoError(t, err)
		encoded, err := util.MarshalCBOR(map[string]ResultEnvelope{
			"unknown": {Nonce: nonce, Data: ciphertext},
		})
		require.NoError(t, err)
		return encoded
	}

	t.Run("Should open a sealed ok result", func(t *testing.T) {
		c, runtime := newSession(t, 0)
		response := sealResult(t, runtime, map[string][]byte{"ok": []byte("return data")})

		out, err := c.DecryptEncoded(response)
		require.NoError(t, err)
		assert.Equal(t, []byte("return data"), out)
	})

	t.Run("Should surface a sealed failure", func(t *testing.T) {
		c, runtime := newSession(t, 0)
		response := sealResult(t, runtime, map[string]Failure{
			"fail": {Module: "evm", Code: 8, Message: "reverted"},
		})

		_, err := c.DecryptEncoded(response)
		var failed *CallFailedError
		require.True(t, errors.As(err, &failed))
		assert.Equal(t, "evm", failed.Module)
		assert.Equal(t, uint64(8), failed.Code)
		assert.Equal(t, "reverted", failed.Message)
	})

	t.Run("Should pass an unsealed ok result through", func(t *testing.T) {
		c, _ := newSession(t, 0)
		response, err := util.MarshalCBOR(map[string][]byte{"ok": {0xde, 0xad}})
		require.NoError(t, err)

		out, err := c.DecryptEncoded(response)
		require.NoError(t, err)
		assert.Equal(t, []byte{0xde, 0xad}, out)
	})

	t.Run("Should surface an unsealed failure", func(t *testing.T) {
		c, _ := newSession(t, 0)
		response, err := util.MarshalCBOR(map[string]Failure{"fail": {Module: "core", Code: 1}})
		require.NoError(t, err)

		_, err = c.DecryptEncoded(response)
		var failed *CallFailedError
		require.True(t, errors.As(err, &failed))
		assert.Equal(t, "core", failed.Module)
	})

	t.Run("Should reject a result sealed for another caller", func(t *testing.T) {
		c, _ := newSession(t, 0)
		_, otherRuntime := newSession(t, 0)
		response := sealResult(t, otherRuntime, map[string][]byte{"ok": {1}})

		_, err := c.DecryptEncoded(response)
		require.Error(t, err)
	})

	malformed := []struct {
		name  string
		input func(t *testing.T) []byte
	}{
		{
			name:  "not cbor",
			input: func(t *testing.T) []byte { return []byte{0xff, 0x00} },
		},
		{
			name: "no variant",
			input: func(t *testing.T) []byte {
				b, err := util.MarshalCBOR(map[string]any{})
				require.NoError(t, err)
				return b
			},
		},
		{
			name: "two variants",
			input: func(t *testing.T) []byte {
				b, err := util.MarshalCBOR(map[string][]byte{"ok": {1}, "unknown": {2}})
				require.NoError(t, err)
				return b
			},
		},
		{
			name: "unexpected variant",
			input: func(t *testing.T) []byte {
				b, err := util.MarshalCBOR(map[string][]byte{"maybe": {1}})
				require.NoError(t, err)
				return b
			},
		},
	}
	for _, tt := range malformed {
		t.Run("Should reject a malformed result: "+tt.name, func(t *testing.T) {
			c, _ := newSession(t, 0)
			_, err := c.DecryptEncoded(tt.input(t))
			require.ErrorIs(t, err, ErrMalformedResult)
		})
	}
}

func Test_PlainCipher(t *testing.T) {
	c := NewPlainCipher()

	t.Run("Should report the plain call format", func(t *testing.T) {
		assert.Equal(t, CallFormatPlain, c.Kind())
		assert.Equal(t, "plain", c.Kind().String())
	})

	t.Run("Should wrap data in a plain call envelope", func(t *testing.T) {
		in := []byte{1, 2, 3}
		out, err := c.EncryptEncode(in)
		require.NoError(t, err)

		var envelope DataEnvelope
		require.NoError(t, util.UnmarshalCBOR(out, &envelope))
		assert.Equal(t, in, envelope.Body)
		assert.Equal(t, CallFormatPlain, envelope.Format)

		var raw map[string]any
		require.NoError(t, util.UnmarshalCBOR(out, &raw))
		assert.Len(t, raw, 1)
	})

	t.Run("Should read ok and fail results", func(t *testing.T) {
		ok, err := util.MarshalCBOR(map[string][]byte{"ok": {7}})
		require.NoError(t, err)
		out, err := c.DecryptEncoded(ok)
		require.NoError(t, err)
		assert.Equal(t, []byte{7}, out)

		fail, err := util.MarshalCBOR(map[string]Failure{"fail": {Module: "evm", Code: 2}})
		require.NoError(t, err)
		_, err = c.DecryptEncoded(fail)
		var failed *CallFailedError
		require.True(t, errors.As(err, &failed))
	})

	t.Run("Should reject a sealed result", func(t *testing.T) {
		sealed, err := util.MarshalCBOR(map[string]ResultEnvelope{"unknown": {Nonce: []byte{1}, Data: []byte{2}}})
		require.NoError(t, err)
		_, err = c.DecryptEncoded(sealed)
		require.ErrorIs(t, err, ErrMalformedResult)
	})

	t.Run("Should name unknown formats", func(t *testing.T) {
		assert.Equal(t, "unknown(9)", CallFormat(9).String())
	})
}

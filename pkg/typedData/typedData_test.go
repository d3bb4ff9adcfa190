package typedData

import (
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/Layr-Labs/confidential-calls-go/pkg/leash"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scenarioCaller() []byte {
	caller := make([]byte, 20)
	caller[19] = 0x01
	return caller
}

func scenarioLeash() leash.Leash {
	return leash.NewLeash(0, 100, make([]byte, 32), 5)
}

func fieldNames(fields []apitypes.Type) []string {
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.Name)
	}
	return names
}

func hashDocument(t *testing.T, doc apitypes.TypedData) (domain, message []byte) {
	domain, err := doc.HashStruct(DomainType, doc.Domain.Map())
	require.NoError(t, err)
	message, err = doc.HashStruct(doc.PrimaryType, doc.Message)
	require.NoError(t, err)
	return domain, message
}

func Test_Types_FieldOrder(t *testing.T) {
	types := Types()

	assert.Equal(t, []string{"name", "version", "chainId"}, fieldNames(types[DomainType]))
	assert.Equal(t, []string{"from", "to", "gasLimit", "gasPrice", "value", "data", "leash"}, fieldNames(types[PrimaryType]))
	assert.Equal(t, []string{"nonce", "blockNumber", "blockHash", "blockRange"}, fieldNames(types[LeashType]))

	assert.Equal(t, "bytes32", types[LeashType][2].Type)
	assert.Equal(t, LeashType, types[PrimaryType][6].Type)

	// callers get their own copy
	types[PrimaryType][0].Name = "mutated"
	assert.Equal(t, "from", Types()[PrimaryType][0].Name)
}

func Test_BuildSignableCall_Scenario(t *testing.T) {
	data, _ := hex.DecodeString("deadbeef")
	doc := BuildSignableCall(1, scenarioCaller(), nil, 21000, nil, nil, data, scenarioLeash())

	assert.Equal(t, PrimaryType, doc.PrimaryType)
	assert.Equal(t, DomainName, doc.Domain.Name)
	assert.Equal(t, DomainVersion, doc.Domain.Version)
	assert.Equal(t, int64(1), (*big.Int)(doc.Domain.ChainId).Int64())
	assert.Empty(t, doc.Domain.VerifyingContract)
	assert.Empty(t, doc.Domain.Salt)

	assert.Equal(t, "0000000000000000000000000000000000000001", doc.Message["from"])
	assert.Equal(t, ZeroAddress, doc.Message["to"])
	assert.Equal(t, int64(21000), (*big.Int)(doc.Message["gasLimit"].(*math.HexOrDecimal256)).Int64())
	assert.Equal(t, 0, (*big.Int)(doc.Message["gasPrice"].(*math.HexOrDecimal256)).Sign())
	assert.Equal(t, 0, (*big.Int)(doc.Message["value"].(*math.HexOrDecimal256)).Sign())
	assert.Equal(t, data, doc.Message["data"])

	l, ok := doc.Message["leash"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, int64(0), (*big.Int)(l["nonce"].(*math.HexOrDecimal256)).Int64())
	assert.Equal(t, int64(100), (*big.Int)(l["blockNumber"].(*math.HexOrDecimal256)).Int64())
	assert.Equal(t, make([]byte, 32), l["blockHash"])
	assert.Equal(t, int64(5), (*big.Int)(l["blockRange"].(*math.HexOrDecimal256)).Int64())

	hashDocument(t, doc)
}

func Test_BuildSignableCall_Deterministic(t *testing.T) {
	data := []byte{0xde, 0xad, 0xbe, 0xef}
	callee := []byte{0xAB, 0xCD, 0xEF, 0x12, 0x34, 0x56, 0x78, 0x90, 0xAB, 0xCD, 0xEF, 0x12, 0x34, 0x56, 0x78, 0x90, 0xAB, 0xCD, 0xEF, 0x12}

	doc1 := BuildSignableCall(0x5aff, scenarioCaller(), callee, 30_000_000, big.NewInt(100), big.NewInt(1), data, scenarioLeash())
	doc2 := BuildSignableCall(0x5aff, scenarioCaller(), callee, 30_000_000, big.NewInt(100), big.NewInt(1), data, scenarioLeash())
	require.Equal(t, doc1, doc2)

	d1, m1 := hashDocument(t, doc1)
	d2, m2 := hashDocument(t, doc2)
	assert.Equal(t, d1, d2)
	assert.Equal(t, m1, m2)
}

func Test_BuildSignableCall_Defaults(t *testing.T) {
	data := []byte{0x01}

	implicit := BuildSignableCall(1, scenarioCaller(), nil, 21000, nil, nil, data, scenarioLeash())
	explicit := BuildSignableCall(1, scenarioCaller(), nil, 21000, big.NewInt(0), big.NewInt(0), data, scenarioLeash())

	di, mi := hashDocument(t, implicit)
	de, me := hashDocument(t, explicit)
	assert.Equal(t, di, de)
	assert.Equal(t, mi, me)
}

func Test_BuildSignableCall_Callee(t *testing.T) {
	callee := make([]byte, 20)
	for i := range callee {
		callee[i] = byte(0xA0 + i)
	}

	doc := BuildSignableCall(1, scenarioCaller(), callee, 21000, nil, nil, nil, scenarioLeash())
	assert.Equal(t, hex.EncodeToString(callee), doc.Message["to"])
	assert.Equal(t, "a0a1a2a3a4a5a6a7a8a9aaabacadaeafb0b1b2b3", doc.Message["to"])

	_, msgWithCallee := hashDocument(t, doc)
	_, msgWithout := hashDocument(t, BuildSignableCall(1, scenarioCaller(), nil, 21000, nil, nil, nil, scenarioLeash()))
	assert.NotEqual(t, msgWithCallee, msgWithout)
}

func Test_BuildSignableCall_LargeIntegers(t *testing.T) {
	maxUint64 := ^uint64(0)
	l := leash.NewLeash(maxUint64, maxUint64, make([]byte, 32), maxUint64)
	value := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	doc := BuildSignableCall(maxUint64, scenarioCaller(), nil, maxUint64, value, value, nil, l)

	assert.Equal(t, maxUint64, (*big.Int)(doc.Domain.ChainId).Uint64())
	assert.Equal(t, 1, (*big.Int)(doc.Domain.ChainId).Sign())
	assert.Equal(t, maxUint64, (*big.Int)(doc.Message["gasLimit"].(*math.HexOrDecimal256)).Uint64())
	assert.Equal(t, 0, (*big.Int)(doc.Message["value"].(*math.HexOrDecimal256)).Cmp(value))

	hashDocument(t, doc)
}

func Test_BuildSignableCall_DoesNotAliasIntegers(t *testing.T) {
	gasPrice := big.NewInt(10)
	doc := BuildSignableCall(1, scenarioCaller(), nil, 21000, gasPrice, nil, nil, scenarioLeash())

	gasPrice.SetInt64(99)
	assert.Equal(t, int64(10), (*big.Int)(doc.Message["gasPrice"].(*math.HexOrDecimal256)).Int64())
}

func Test_BuildSignableCall_MalformedFieldsFailToHash(t *testing.T) {
	t.Run("short block hash", func(t *testing.T) {
		doc := BuildSignableCall(1, scenarioCaller(), nil, 21000, nil, nil, nil, leash.NewLeash(0, 1, []byte{1, 2, 3}, 5))
		_, err := doc.HashStruct(doc.PrimaryType, doc.Message)
		require.Error(t, err)
	})

	t.Run("short caller", func(t *testing.T) {
		doc := BuildSignableCall(1, []byte{1, 2}, nil, 21000, nil, nil, nil, scenarioLeash())
		_, err := doc.HashStruct(doc.PrimaryType, doc.Message)
		require.Error(t, err)
	})

	t.Run("negative value", func(t *testing.T) {
		doc := BuildSignableCall(1, scenarioCaller(), nil, 21000, nil, big.NewInt(-1), nil, scenarioLeash())
		_, err := doc.HashStruct(doc.PrimaryType, doc.Message)
		require.Error(t, err)
	})
}

package typedData

import (
	"encoding/hex"
	"math/big"

	"github.com/Layr-Labs/confidential-calls-go/pkg/leash"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// ZeroAddress stands in for the callee of contract creation calls
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// Domain literals shared with the verifying runtime. Changing any of these breaks
// signature verification on the node side.
const (
	DomainName    = "oasis-runtime-sdk/evm: signed query"
	DomainVersion = "1.0.0"
)

const (
	DomainType  = "EIP712Domain"
	PrimaryType = "Call"
	LeashType   = "Leash"
)

// Field order below is the hashing order.
var (
	domainSchema = []apitypes.Type{
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
	}
	callSchema = []apitypes.Type{
		{Name: "from", Type: "address"},
		{Name: "to", Type: "address"},
		{Name: "gasLimit", Type: "uint64"},
		{Name: "gasPrice", Type: "uint256"},
		{Name: "value", Type: "uint256"},
		{Name: "data", Type: "bytes"},
		{Name: "leash", Type: LeashType},
	}
	leashSchema = []apitypes.Type{
		{Name: "nonce", Type: "uint64"},
		{Name: "blockNumber", Type: "uint64"},
		{Name: "blockHash", Type: "bytes32"},
		{Name: "blockRange", Type: "uint64"},
	}
)

// Types returns a fresh copy of the signed call schema.
func Types() apitypes.Types {
	return apitypes.Types{
		DomainType:  append([]apitypes.Type(nil), domainSchema...),
		PrimaryType: append([]apitypes.Type(nil), callSchema...),
		LeashType:   append([]apitypes.Type(nil), leashSchema...),
	}
}

// BuildSignableCall assembles the EIP-712 document for a signed call.
//
// A nil callee is replaced by ZeroAddress (contract creation). Nil gasPrice and value
// are encoded as zero.
func BuildSignableCall(
	chainId uint64,
	caller, callee []byte,
	gasLimit uint64,
	gasPrice, value *big.Int,
	data []byte,
	l leash.Leash,
) apitypes.TypedData {
	toAddr := ZeroAddress
	if callee != nil {
		toAddr = hex.EncodeToString(callee)
	}

	return apitypes.TypedData{
		Types:       Types(),
		PrimaryType: PrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              DomainName,
			Version:           DomainVersion,
			ChainId:           uint64ToU256(chainId),
			VerifyingContract: "",
			Salt:              "",
		},
		Message: apitypes.TypedDataMessage{
			"from":     hex.EncodeToString(caller),
			"to":       toAddr,
			"gasLimit": uint64ToU256(gasLimit),
			"gasPrice": bigToU256(gasPrice),
			"value":    bigToU256(value),
			"data":     data,
			"leash": map[string]interface{}{
				"nonce":       uint64ToU256(l.Nonce),
				"blockNumber": uint64ToU256(l.BlockNumber),
				"blockHash":   l.BlockHash,
				"blockRange":  uint64ToU256(l.BlockRange),
			},
		},
	}
}

// uint64ToU256 widens without passing through int64, so values above 2^63 keep their magnitude.
func uint64ToU256(v uint64) *math.HexOrDecimal256 {
	return (*math.HexOrDecimal256)(new(big.Int).SetUint64(v))
}

// bigToU256 copies v so the document never aliases caller-owned integers.
func bigToU256(v *big.Int) *math.HexOrDecimal256 {
	if v == nil {
		return (*math.HexOrDecimal256)(new(big.Int))
	}
	return (*math.HexOrDecimal256)(new(big.Int).Set(v))
}

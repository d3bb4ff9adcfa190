package util

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var (
	cborEncMode cbor.EncMode
	cborDecMode cbor.DecMode
)

func init() {
	var err error
	// Canonical encoding (RFC 7049 section 3.9) so that equal values always produce equal bytes.
	// Nil slices encode as empty byte strings, never as null.
	encOpts := cbor.CanonicalEncOptions()
	encOpts.NilContainers = cbor.NilContainerAsEmpty
	if cborEncMode, err = encOpts.EncMode(); err != nil {
		panic(fmt.Sprintf("failed to build cbor encoding mode: %v", err))
	}
	if cborDecMode, err = (cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyEnforcedAPF,
	}).DecMode(); err != nil {
		panic(fmt.Sprintf("failed to build cbor decoding mode: %v", err))
	}
}

// MarshalCBOR encodes v with the canonical CBOR encoding used for call envelopes.
func MarshalCBOR(v interface{}) ([]byte, error) {
	return cborEncMode.Marshal(v)
}

// UnmarshalCBOR decodes data into v, rejecting duplicate map keys.
func UnmarshalCBOR(data []byte, v interface{}) error {
	return cborDecMode.Unmarshal(data, v)
}

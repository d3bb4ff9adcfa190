package callSigner

import (
	"errors"
	"fmt"
)

var (
	ErrHashing = errors.New("typed data hashing failed")
	ErrSigning = errors.New("typed data signing failed")
)

type HashStage string

const (
	HashStageDomain  HashStage = "domain separator"
	HashStageMessage HashStage = "message"
)

// HashingError is returned when a field does not encode under its declared schema type.
type HashingError struct {
	Stage HashStage
	Err   error
}

func (e *HashingError) Error() string {
	return fmt.Sprintf("failed to hash %s: %v", e.Stage, e.Err)
}

func (e *HashingError) Unwrap() []error {
	return []error{ErrHashing, e.Err}
}

// SigningError is returned when the injected signer fails or returns a malformed signature.
type SigningError struct {
	Err error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("failed to sign typed data: %v", e.Err)
}

func (e *SigningError) Unwrap() []error {
	return []error{ErrSigning, e.Err}
}

package awsKmsCallSigner

import (
	"context"
	cryptoEcdsa "crypto/ecdsa"
	"encoding/asn1"
	"fmt"
	"math/big"

	internalAws "github.com/Layr-Labs/confidential-calls-go/internal/aws"
	"github.com/Layr-Labs/confidential-calls-go/pkg/callSigner"
	"github.com/Layr-Labs/confidential-calls-go/pkg/config"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// IKMSClient is the subset of the AWS KMS API used for signing.
type IKMSClient interface {
	GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
	Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
}

// secp256k1 curve order, used for low-S canonicalization
var (
	secp256k1N     = crypto.S256().Params().N
	secp256k1HalfN = new(big.Int).Rsh(secp256k1N, 1)
)

// AWSKMSCallSigner signs call digests with an ECC_SECG_P256K1 key held in AWS KMS.
type AWSKMSCallSigner struct {
	logger    *zap.Logger
	kmsClient IKMSClient
	keyId     string
	publicKey *cryptoEcdsa.PublicKey
	address   common.Address
}

var _ callSigner.ICallSigner = (*AWSKMSCallSigner)(nil)

// NewAWSKMSCallSignerFromConfig loads AWS credentials the usual way and binds to cfg.KeyId.
func NewAWSKMSCallSignerFromConfig(ctx context.Context, cfg *config.AWSKMSSignerConfig, logger *zap.Logger) (*AWSKMSCallSigner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid AWS KMS signer config")
	}
	kmsClient, err := internalAws.NewKMSClient(ctx, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create KMS client for region %s", cfg.Region)
	}
	return NewAWSKMSCallSigner(ctx, kmsClient, cfg.KeyId, logger)
}

// NewAWSKMSCallSigner fetches the key's public key once so each Sign costs a single KMS call.
func NewAWSKMSCallSigner(ctx context.Context, kmsClient IKMSClient, keyId string, logger *zap.Logger) (*AWSKMSCallSigner, error) {
	kmsPubKey, err := kmsClient.GetPublicKey(ctx, &kms.GetPublicKeyInput{
		KeyId: aws.String(keyId),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get public key for key %s", keyId)
	}

	publicKey, err := parseECDSAPublicKey(kmsPubKey.PublicKey)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse public key for key %s", keyId)
	}
	address := crypto.PubkeyToAddress(*publicKey)

	logger.Info("Loaded AWS KMS call signer",
		zap.String("keyId", keyId),
		zap.String("address", address.Hex()),
	)

	return &AWSKMSCallSigner{
		logger:    logger,
		kmsClient: kmsClient,
		keyId:     keyId,
		publicKey: publicKey,
		address:   address,
	}, nil
}

func (a *AWSKMSCallSigner) Address() common.Address {
	return a.address
}

// Sign asks KMS for a DER signature over the digest and converts it to R || S || V.
func (a *AWSKMSCallSigner) Sign(ctx context.Context, digest [32]byte) ([]byte, error) {
	signOutput, err := a.kmsClient.Sign(ctx, &kms.SignInput{
		KeyId:            aws.String(a.keyId),
		Message:          digest[:],
		SigningAlgorithm: types.SigningAlgorithmSpecEcdsaSha256,
		MessageType:      types.MessageTypeDigest,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to sign digest with key %s", a.keyId)
	}

	var sigAsn1 asn1EcSig
	if _, err := asn1.Unmarshal(signOutput.Signature, &sigAsn1); err != nil {
		return nil, errors.Wrap(err, "failed to parse KMS signature")
	}

	r := new(big.Int).SetBytes(sigAsn1.R.Bytes)
	s := new(big.Int).SetBytes(sigAsn1.S.Bytes)
	if s.Cmp(secp256k1HalfN) > 0 {
		s = new(big.Int).Sub(secp256k1N, s)
	}

	signature := make([]byte, 65)
	r.FillBytes(signature[0:32])
	s.FillBytes(signature[32:64])

	// KMS does not report the recovery id, so find the one that recovers our key
	for recoveryId := byte(0); recoveryId < 2; recoveryId++ {
		signature[64] = recoveryId
		recovered, err := crypto.SigToPub(digest[:], signature)
		if err != nil {
			a.logger.Debug("Signature recovery failed",
				zap.Uint8("recoveryId", recoveryId),
				zap.Error(err),
			)
			continue
		}
		if recovered.X.Cmp(a.publicKey.X) == 0 && recovered.Y.Cmp(a.publicKey.Y) == 0 {
			return signature, nil
		}
	}

	return nil, fmt.Errorf("could not determine valid recovery ID for key %s", a.keyId)
}

// parseECDSAPublicKey parses the DER-encoded SubjectPublicKeyInfo returned by KMS
func parseECDSAPublicKey(derBytes []byte) (*cryptoEcdsa.PublicKey, error) {
	var asn1pubk asn1EcPublicKey
	if _, err := asn1.Unmarshal(derBytes, &asn1pubk); err != nil {
		return nil, fmt.Errorf("failed to parse ASN.1 public key: %w", err)
	}
	return crypto.UnmarshalPubkey(asn1pubk.PublicKey.Bytes)
}

type asn1EcSig struct {
	R asn1.RawValue
	S asn1.RawValue
}

type asn1EcPublicKey struct {
	EcPublicKeyInfo asn1EcPublicKeyInfo
	PublicKey       asn1.BitString
}

type asn1EcPublicKeyInfo struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters asn1.ObjectIdentifier
}

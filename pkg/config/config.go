package config

import (
	"fmt"
	"math/big"
	"net/url"
	"os"
	"strconv"
	"strings"

	"k8s.io/apimachinery/pkg/util/validation/field"
)

// Environment variable names for signed call configuration
const (
	EnvSignedCallChainID        = "SIGNED_CALL_CHAIN_ID"
	EnvSignedCallRPCURL         = "SIGNED_CALL_RPC_URL"
	EnvSignedCallGasLimit       = "SIGNED_CALL_GAS_LIMIT"
	EnvSignedCallGasPrice       = "SIGNED_CALL_GAS_PRICE"
	EnvSignedCallBlockRange     = "SIGNED_CALL_BLOCK_RANGE"
	EnvSignedCallEncryptDeploys = "SIGNED_CALL_ENCRYPT_DEPLOYS"
	EnvSignedCallDebug          = "SIGNED_CALL_DEBUG"
)

type ChainId uint64

const (
	ChainId_SapphireMainnet  ChainId = 0x5afe
	ChainId_SapphireTestnet  ChainId = 0x5aff
	ChainId_SapphireLocalnet ChainId = 0x5afd
)

type ChainName string

const (
	ChainName_SapphireMainnet  ChainName = "sapphire"
	ChainName_SapphireTestnet  ChainName = "sapphire-testnet"
	ChainName_SapphireLocalnet ChainName = "sapphire-localnet"
)

var ChainIdToName = map[ChainId]ChainName{
	ChainId_SapphireMainnet:  ChainName_SapphireMainnet,
	ChainId_SapphireTestnet:  ChainName_SapphireTestnet,
	ChainId_SapphireLocalnet: ChainName_SapphireLocalnet,
}
var ChainNameToId = map[ChainName]ChainId{
	ChainName_SapphireMainnet:  ChainId_SapphireMainnet,
	ChainName_SapphireTestnet:  ChainId_SapphireTestnet,
	ChainName_SapphireLocalnet: ChainId_SapphireLocalnet,
}

// Public gateways, used when no rpc url is configured
var ChainIdToDefaultRpcUrl = map[ChainId]string{
	ChainId_SapphireMainnet:  "https://sapphire.oasis.io",
	ChainId_SapphireTestnet:  "https://testnet.sapphire.oasis.io",
	ChainId_SapphireLocalnet: "http://localhost:8545",
}

const (
	DefaultGasLimit   uint64 = 30_000_000
	DefaultGasPrice   uint64 = 100_000_000_000
	DefaultBlockRange uint64 = 15

	// MaxBlockRange caps how long a leash may stay valid. The runtime only keeps
	// recent block hashes around, so larger windows can never be verified.
	MaxBlockRange uint64 = 256

	// EpochLimit is the number of epochs a calldata public key stays usable for
	EpochLimit uint64 = 5
)

func IsSapphire(chainId ChainId) bool {
	_, ok := ChainIdToName[chainId]
	return ok
}

// GetSupportedChainIDsString returns supported chain IDs as strings for help output
func GetSupportedChainIDsString() string {
	return fmt.Sprintf("%d (sapphire), %d (sapphire-testnet), %d (sapphire-localnet)",
		ChainId_SapphireMainnet, ChainId_SapphireTestnet, ChainId_SapphireLocalnet)
}

// SignedCallConfig holds the defaults used when building signed calls
type SignedCallConfig struct {
	ChainID ChainId `json:"chain_id" yaml:"chainId"`
	RpcUrl  string  `json:"rpc_url" yaml:"rpcUrl"`

	// Applied when a request leaves them unset
	GasLimit uint64   `json:"gas_limit" yaml:"gasLimit"`
	GasPrice *big.Int `json:"gas_price,omitempty" yaml:"gasPrice"`

	BlockRange uint64 `json:"block_range" yaml:"blockRange"`

	// Contract creations are sent in plain text unless this is set, so that
	// deployed bytecode stays verifiable.
	EncryptDeploys bool `json:"encrypt_deploys" yaml:"encryptDeploys"`

	Debug bool `json:"debug" yaml:"debug"`
}

// NewDefaultSignedCallConfig returns a config for the given chain with the stock defaults
func NewDefaultSignedCallConfig(chainId ChainId) *SignedCallConfig {
	return &SignedCallConfig{
		ChainID:    chainId,
		RpcUrl:     ChainIdToDefaultRpcUrl[chainId],
		GasLimit:   DefaultGasLimit,
		GasPrice:   new(big.Int).SetUint64(DefaultGasPrice),
		BlockRange: DefaultBlockRange,
	}
}

// NewSignedCallConfigFromEnv reads the SIGNED_CALL_* environment variables on top of the defaults.
func NewSignedCallConfigFromEnv() (*SignedCallConfig, error) {
	chainIdStr := os.Getenv(EnvSignedCallChainID)
	if chainIdStr == "" {
		return nil, fmt.Errorf("%s is required", EnvSignedCallChainID)
	}
	chainId, err := strconv.ParseUint(chainIdStr, 0, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", EnvSignedCallChainID, err)
	}

	cfg := NewDefaultSignedCallConfig(ChainId(chainId))

	if v := os.Getenv(EnvSignedCallRPCURL); v != "" {
		cfg.RpcUrl = v
	}
	if v := os.Getenv(EnvSignedCallGasLimit); v != "" {
		gasLimit, err := strconv.ParseUint(v, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvSignedCallGasLimit, err)
		}
		cfg.GasLimit = gasLimit
	}
	if v := os.Getenv(EnvSignedCallGasPrice); v != "" {
		gasPrice, ok := new(big.Int).SetString(v, 0)
		if !ok {
			return nil, fmt.Errorf("invalid %s: %q", EnvSignedCallGasPrice, v)
		}
		cfg.GasPrice = gasPrice
	}
	if v := os.Getenv(EnvSignedCallBlockRange); v != "" {
		blockRange, err := strconv.ParseUint(v, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvSignedCallBlockRange, err)
		}
		cfg.BlockRange = blockRange
	}
	if v := os.Getenv(EnvSignedCallEncryptDeploys); v != "" {
		encryptDeploys, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvSignedCallEncryptDeploys, err)
		}
		cfg.EncryptDeploys = encryptDeploys
	}
	if v := os.Getenv(EnvSignedCallDebug); v != "" {
		cfg.Debug = strings.EqualFold(v, "true") || v == "1"
	}

	return cfg, nil
}

// Validate validates the signed call configuration
func (c *SignedCallConfig) Validate() error {
	var allErrors field.ErrorList

	if !IsSapphire(c.ChainID) {
		allErrors = append(allErrors, field.Invalid(field.NewPath("chainId"), c.ChainID,
			fmt.Sprintf("unsupported chain ID, supported: %s", GetSupportedChainIDsString())))
	}
	if c.RpcUrl == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("rpcUrl"), "rpcUrl is required"))
	}
	if c.GasLimit == 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("gasLimit"), c.GasLimit, "gasLimit must be greater than 0"))
	}
	if c.GasPrice != nil && c.GasPrice.Sign() < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("gasPrice"), c.GasPrice.String(), "gasPrice cannot be negative"))
	}
	if c.BlockRange == 0 || c.BlockRange > MaxBlockRange {
		allErrors = append(allErrors, field.Invalid(field.NewPath("blockRange"), c.BlockRange,
			fmt.Sprintf("blockRange must be between 1 and %d", MaxBlockRange)))
	}

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

type AWSKMSSignerConfig struct {
	KeyId  string `json:"keyId" yaml:"keyId"`
	Region string `json:"region" yaml:"region"`

	// Endpoint overrides the KMS endpoint, e.g. for a local emulator
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint"`
}

func (kc *AWSKMSSignerConfig) Validate() error {
	var allErrors field.ErrorList
	if kc.KeyId == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("keyId"), "keyId is required"))
	}
	if kc.Endpoint != "" {
		if u, err := url.Parse(kc.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
			allErrors = append(allErrors, field.Invalid(field.NewPath("endpoint"), kc.Endpoint, "endpoint must be an absolute URL"))
		}
	}
	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

package callBuilder

import (
	"context"
	"fmt"
	"math/big"

	"github.com/Layr-Labs/confidential-calls-go/pkg/callSigner"
	"github.com/Layr-Labs/confidential-calls-go/pkg/calldataPublicKey"
	"github.com/Layr-Labs/confidential-calls-go/pkg/cipher"
	"github.com/Layr-Labs/confidential-calls-go/pkg/config"
	"github.com/Layr-Labs/confidential-calls-go/pkg/envelope"
	"github.com/Layr-Labs/confidential-calls-go/pkg/leash"
	"github.com/Layr-Labs/confidential-calls-go/pkg/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// IKeySource supplies the runtime's current calldata public key.
type IKeySource interface {
	GetCallDataPublicKey(ctx context.Context) (*calldataPublicKey.CalldataPublicKey, error)
}

// CallRequest describes a call to sign. Unset gas fields take the configured defaults.
type CallRequest struct {
	From     common.Address
	To       *common.Address
	GasLimit uint64
	GasPrice *big.Int
	Value    *big.Int
	Data     []byte
}

// SignedCall is a signed query ready to be sent as the data of an eth_call.
type SignedCall struct {
	Pack     *envelope.SignedCallDataPack
	Calldata hexutil.Bytes
	Cipher   cipher.ICipher
}

// DecryptResult unwraps the eth_call result of this call.
func (s *SignedCall) DecryptResult(response []byte) ([]byte, error) {
	if len(response) == 0 {
		return []byte{}, nil
	}
	return s.Cipher.DecryptEncoded(response)
}

// EncryptedCalldata is call data encrypted for a transaction or gas estimate.
type EncryptedCalldata struct {
	Calldata hexutil.Bytes
	Cipher   cipher.ICipher
}

// CallBuilder signs and encrypts calls against one chain. It is safe for concurrent use.
type CallBuilder struct {
	config      *config.SignedCallConfig
	signer      callSigner.ICallSigner
	chainReader leash.IChainReader
	keySource   IKeySource
	logger      *zap.Logger
}

// NewCallBuilder wires a builder from its parts. A nil keySource disables encryption.
func NewCallBuilder(
	cfg *config.SignedCallConfig,
	signer callSigner.ICallSigner,
	chainReader leash.IChainReader,
	keySource IKeySource,
	l *zap.Logger,
) (*CallBuilder, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid signed call config: %w", err)
	}
	if signer == nil {
		return nil, fmt.Errorf("signer is required")
	}
	if chainReader == nil {
		return nil, fmt.Errorf("chain reader is required")
	}
	if l == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &CallBuilder{
		config:      cfg,
		signer:      signer,
		chainReader: chainReader,
		keySource:   keySource,
		logger:      l,
	}, nil
}

// NewCallBuilderFromConfig dials cfg.RpcUrl and uses the node for chain state and keys.
// A nil l gets a logger built from cfg.Debug.
func NewCallBuilderFromConfig(ctx context.Context, cfg *config.SignedCallConfig, signer callSigner.ICallSigner, l *zap.Logger) (*CallBuilder, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid signed call config: %w", err)
	}
	if l == nil {
		var err error
		if l, err = logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug}); err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}
	client, err := ethclient.DialContext(ctx, cfg.RpcUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.RpcUrl, err)
	}
	keySource := calldataPublicKey.NewSource(client.Client(), calldataPublicKey.DefaultRefreshInterval, l)
	b, err := NewCallBuilder(cfg, signer, client, keySource, l)
	if err != nil {
		client.Close()
		return nil, err
	}
	return b, nil
}

// BuildCall signs req with a leash on the current chain state and encodes the full pack.
func (b *CallBuilder) BuildCall(ctx context.Context, req CallRequest) (*SignedCall, error) {
	if req.From == (common.Address{}) {
		return nil, fmt.Errorf("from address is required")
	}
	gasLimit, gasPrice := b.applyDefaults(req)

	l, err := leash.FromChain(ctx, b.chainReader, req.From, b.config.BlockRange)
	if err != nil {
		return nil, fmt.Errorf("failed to build leash: %w", err)
	}

	c, err := b.cipherFor(ctx, true)
	if err != nil {
		return nil, err
	}

	var callee []byte
	if req.To != nil {
		callee = req.To.Bytes()
	}
	pack, err := envelope.NewDataPack(ctx, b.signer, uint64(b.config.ChainID),
		req.From.Bytes(), callee, gasLimit, gasPrice, req.Value, req.Data, l)
	if err != nil {
		return nil, err
	}

	calldata, err := pack.EncodeFull(c)
	if err != nil {
		return nil, err
	}

	b.logger.Sugar().Debugw("Built signed call",
		"from", req.From.Hex(),
		"to", addressString(req.To),
		"format", c.Kind().String(),
		"block_number", l.BlockNumber,
		"block_range", l.BlockRange,
		"nonce", l.Nonce,
	)
	return &SignedCall{Pack: pack, Calldata: calldata, Cipher: c}, nil
}

// EncryptCalldata encrypts data for a transaction or gas estimate. Transactions carry
// their own signature, so no pack is built. Empty data is still sealed, since the runtime
// would otherwise deliver the encoded empty body to the contract as calldata.
func (b *CallBuilder) EncryptCalldata(ctx context.Context, to *common.Address, data []byte) (*EncryptedCalldata, error) {
	c, err := b.cipherFor(ctx, to != nil || b.config.EncryptDeploys)
	if err != nil {
		return nil, err
	}

	var calldata []byte
	if c.Kind() == cipher.CallFormatPlain {
		calldata = append([]byte(nil), data...)
	} else if calldata, err = c.EncryptEncode(data); err != nil {
		return nil, &envelope.EncryptionError{Err: err}
	}
	return &EncryptedCalldata{Calldata: calldata, Cipher: c}, nil
}

func (b *CallBuilder) applyDefaults(req CallRequest) (uint64, *big.Int) {
	gasLimit := req.GasLimit
	if gasLimit == 0 {
		gasLimit = b.config.GasLimit
	}
	gasPrice := req.GasPrice
	if gasPrice == nil {
		gasPrice = b.config.GasPrice
	}
	return gasLimit, gasPrice
}

// cipherFor returns a fresh session cipher, or a plain one when encrypt is false or no
// key source is configured.
func (b *CallBuilder) cipherFor(ctx context.Context, encrypt bool) (cipher.ICipher, error) {
	if b.keySource == nil || !encrypt {
		return cipher.NewPlainCipher(), nil
	}

	pk, err := b.keySource.GetCallDataPublicKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get calldata public key: %w", err)
	}
	peer, err := pk.PublicKey()
	if err != nil {
		return nil, err
	}
	keyPair, err := cipher.NewKeyPair()
	if err != nil {
		return nil, err
	}
	c, err := cipher.NewX25519DeoxysIICipher(keyPair, peer, pk.Epoch)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return c, nil
}

func addressString(a *common.Address) string {
	if a == nil {
		return ""
	}
	return a.Hex()
}

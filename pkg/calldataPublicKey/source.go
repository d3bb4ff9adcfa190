package calldataPublicKey

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	CallDataPublicKeyMethod = "oasis_callDataPublicKey"

	// DefaultRefreshInterval is the minimum time between two fetches of the key.
	DefaultRefreshInterval = time.Second

	// epochTooOldMessage is reported by the runtime for calls encrypted to an expired key.
	epochTooOldMessage = "invalid call format: epoch too far in the past"
)

var ErrNoPublicKey = errors.New("could not retrieve calldata public key")

// IRpcCaller is the part of go-ethereum's rpc.Client used to query the key.
type IRpcCaller interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

// Source fetches the runtime's calldata public key and caches the recent ones.
type Source struct {
	logger  *zap.Logger
	client  IRpcCaller
	manager *KeyManager
	limiter *rate.Limiter

	// serializes fetches so concurrent callers share one request
	fetchMu sync.Mutex
}

func NewSource(client IRpcCaller, refreshInterval time.Duration, logger *zap.Logger) *Source {
	if refreshInterval <= 0 {
		refreshInterval = DefaultRefreshInterval
	}
	return &Source{
		logger:  logger,
		client:  client,
		manager: NewKeyManager(),
		limiter: rate.NewLimiter(rate.Every(refreshInterval), 1),
	}
}

// NewSourceFromURL dials the JSON-RPC endpoint at rpcUrl.
func NewSourceFromURL(ctx context.Context, rpcUrl string, logger *zap.Logger) (*Source, error) {
	client, err := rpc.DialContext(ctx, rpcUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", rpcUrl, err)
	}
	return NewSource(client, DefaultRefreshInterval, logger), nil
}

// GetCallDataPublicKey returns the newest cached key, fetching one when none is cached.
func (s *Source) GetCallDataPublicKey(ctx context.Context) (*CalldataPublicKey, error) {
	if pk := s.manager.Newest(); pk != nil {
		return pk, nil
	}

	s.fetchMu.Lock()
	defer s.fetchMu.Unlock()
	// another caller may have fetched while we waited
	if pk := s.manager.Newest(); pk != nil {
		return pk, nil
	}
	return s.fetch(ctx)
}

// Refresh fetches the current key from the node. Calls are spaced at least the refresh
// interval apart; Refresh waits for its turn or for ctx to end.
func (s *Source) Refresh(ctx context.Context) (*CalldataPublicKey, error) {
	s.fetchMu.Lock()
	defer s.fetchMu.Unlock()

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("calldata public key refresh throttled: %w", err)
	}
	return s.fetch(ctx)
}

// Invalidate drops every cached key.
func (s *Source) Invalidate() {
	s.manager.Clear()
}

func (s *Source) fetch(ctx context.Context) (*CalldataPublicKey, error) {
	var pk *CalldataPublicKey
	if err := s.client.CallContext(ctx, &pk, CallDataPublicKeyMethod); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoPublicKey, err)
	}
	if pk == nil {
		return nil, ErrNoPublicKey
	}
	if _, err := pk.PublicKey(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoPublicKey, err)
	}

	s.manager.Add(pk)
	s.logger.Sugar().Debugw("Fetched calldata public key",
		"epoch", pk.Epoch,
		"key", pk.Key.String(),
	)
	return pk, nil
}

// IsEpochTooOld reports whether err is the runtime rejecting a call encrypted to an
// expired calldata public key. Such calls should be rebuilt after a Refresh.
func IsEpochTooOld(err error) bool {
	if err == nil {
		return false
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() != -32000 {
		return false
	}
	return strings.Contains(err.Error(), epochTooOldMessage)
}

package signing

import (
	"fmt"
	"sync"
)

// Scheme identifies which cryptographic scheme a chain uses.
type Scheme string

const (
	SchemeEd25519Solana      Scheme = "ed25519-solana"
	SchemeSecp256k1CosmosADR36 Scheme = "secp256k1-cosmos-adr36"
	SchemeTrustWithoutVerify Scheme = "trust"
)

// ChainConfig binds a chain id to a verification scheme.
type ChainConfig struct {
	ChainID string
	Scheme  Scheme
}

// Registry maps chain ids to their configured verification scheme. It is
// the Verifier's only piece of mutable state, and it is safe for
// concurrent reads (registration happens at startup).
type Registry struct {
	mu     sync.RWMutex
	chains map[string]ChainConfig
}

// NewRegistry returns an empty chain registry.
func NewRegistry() *Registry {
	return &Registry{chains: make(map[string]ChainConfig)}
}

// Register adds or replaces a chain's verification configuration.
func (r *Registry) Register(cfg ChainConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chains[cfg.ChainID] = cfg
}

func (r *Registry) lookup(chainID string) (ChainConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.chains[chainID]
	return cfg, ok
}

// Verify checks req's signature against its claimed chain's configured
// scheme. Chains configured as trust-without-verify always succeed.
func (r *Registry) Verify(req Request) error {
	cfg, ok := r.lookup(req.ChainID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedChain, req.ChainID)
	}

	switch cfg.Scheme {
	case SchemeTrustWithoutVerify:
		return nil
	case SchemeEd25519Solana:
		return verifyEd25519Solana(req)
	case SchemeSecp256k1CosmosADR36:
		return verifySecp256k1CosmosADR36(req)
	default:
		return fmt.Errorf("%w: chain %s has no recognized scheme", ErrUnsupportedChain, req.ChainID)
	}
}

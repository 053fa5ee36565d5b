package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Signer holds an unlocked key for one signing wallet until Lock is called.
type Signer struct {
	name    string
	address common.Address

	mu  sync.RWMutex
	key *ecdsa.PrivateKey
}

// Unlock retrieves w's key from ks. Watch-only wallets cannot be unlocked.
func Unlock(w *Wallet, ks KeystoreBackend) (*Signer, error) {
	if w.Type != TypeSigning {
		return nil, fmt.Errorf("%w: %q", ErrWatchOnly, w.Name)
	}
	hexKey, err := ks.Retrieve(w.KeyRef)
	if err != nil {
		return nil, err
	}
	key, err := crypto.HexToECDSA(normaliseHexKey(hexKey))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)
	if w.Address != "" && common.HexToAddress(w.Address) != addr {
		return nil, fmt.Errorf("%w: key for %q does not match %s", ErrInvalidKey, w.Name, w.Address)
	}
	return &Signer{name: w.Name, address: addr, key: key}, nil
}

// Name is the wallet name this signer was unlocked from.
func (s *Signer) Name() string { return s.name }

// Address returns the signing account.
func (s *Signer) Address() common.Address { return s.address }

// SignTx signs an EVM transaction for chainID.
func (s *Signer) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.key == nil {
		return nil, ErrLocked
	}
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
}

// SignTypedData signs EIP-712 typed data and returns a 65-byte R || S || V
// signature with V in {27, 28}.
func (s *Signer) SignTypedData(ctx context.Context, td apitypes.TypedData) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	digest, err := TypedDataDigest(td)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.key == nil {
		return nil, ErrLocked
	}
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return nil, fmt.Errorf("signing typed data: %w", err)
	}
	sig[64] += 27
	return sig, nil
}

// Lock drops the key; later signing calls fail with ErrLocked.
func (s *Signer) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = nil
}

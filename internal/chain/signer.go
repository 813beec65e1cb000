package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/rangeseeker/rebalancer/internal/types"
)

// LocalSigner signs transactions with in-process keys, one per agent wallet.
// Key material never leaves this struct; the rest of the engine only ever
// handles addresses.
type LocalSigner struct {
	keys    map[common.Address]*ecdsa.PrivateKey
	chainID *big.Int
}

// NewLocalSigner parses a list of hex private keys and indexes them by their
// derived wallet address.
func NewLocalSigner(chainID uint64, hexKeys []string) (*LocalSigner, error) {
	signer := &LocalSigner{
		keys:    make(map[common.Address]*ecdsa.PrivateKey, len(hexKeys)),
		chainID: new(big.Int).SetUint64(chainID),
	}

	for i, hexKey := range hexKeys {
		trimmed := strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
		if trimmed == "" {
			continue
		}
		key, err := crypto.HexToECDSA(trimmed)
		if err != nil {
			return nil, fmt.Errorf("%w: parsing signing key %d: %w", types.ErrInvalidConfiguration, i, err)
		}
		signer.keys[crypto.PubkeyToAddress(key.PublicKey)] = key
	}

	if len(signer.keys) == 0 {
		return nil, fmt.Errorf("%w: no signing keys configured", types.ErrInvalidConfiguration)
	}
	return signer, nil
}

// SignTransaction signs tx with the key belonging to wallet.
func (s *LocalSigner) SignTransaction(_ context.Context, wallet common.Address, tx *ethtypes.Transaction) (*ethtypes.Transaction, error) {
	key, ok := s.keys[wallet]
	if !ok {
		return nil, fmt.Errorf("%w: no signing key for wallet %s", types.ErrNotFound, wallet.Hex())
	}
	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(s.chainID), key)
	if err != nil {
		return nil, fmt.Errorf("signing transaction for %s: %w", wallet.Hex(), err)
	}
	return signed, nil
}

package wallet

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// TypedDataDigest returns keccak256(0x19 0x01 || domainSeparator || hashStruct(message)).
func TypedDataDigest(td apitypes.TypedData) ([]byte, error) {
	dataHash, err := td.HashStruct(td.PrimaryType, td.Message)
	if err != nil {
		return nil, fmt.Errorf("hashing %s: %w", td.PrimaryType, err)
	}
	domainSeparator, err := td.HashStruct("EIP712Domain", td.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("hashing domain: %w", err)
	}
	raw := make([]byte, 0, 66)
	raw = append(raw, 0x19, 0x01)
	raw = append(raw, domainSeparator...)
	raw = append(raw, dataHash...)
	return crypto.Keccak256(raw), nil
}

// RecoverTypedData returns the address that produced sig over td.
func RecoverTypedData(td apitypes.TypedData, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("invalid signature length: expected 65 bytes, got %d", len(sig))
	}
	digest, err := TypedDataDigest(td)
	if err != nil {
		return common.Address{}, err
	}

	// V from 27/28 back to 0/1 for ecrecover.
	rsv := make([]byte, 65)
	copy(rsv, sig)
	if rsv[64] >= 27 {
		rsv[64] -= 27
	}
	pub, err := crypto.SigToPub(digest, rsv)
	if err != nil {
		return common.Address{}, fmt.Errorf("recovering signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

package redeem

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/Mohsinsiddi/lsdredeem/internal/contract"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// ErrSignature covers a failed or unusable typed-data signature.
var ErrSignature = errors.New("signature error")

// PermitRequest is the content of an EIP-2612 permit.
type PermitRequest struct {
	TokenName string
	Version   string
	ChainID   *big.Int
	Token     common.Address
	Owner     common.Address
	Spender   common.Address
	Value     *big.Int
	Nonce     *big.Int
	Deadline  *big.Int
}

// TypedData renders the request as EIP-712 typed data.
func (r PermitRequest) TypedData() apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Permit": {
				{Name: "owner", Type: "address"},
				{Name: "spender", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "nonce", Type: "uint256"},
				{Name: "deadline", Type: "uint256"},
			},
		},
		PrimaryType: "Permit",
		Domain: apitypes.TypedDataDomain{
			Name:              r.TokenName,
			Version:           r.Version,
			ChainId:           (*math.HexOrDecimal256)(r.ChainID),
			VerifyingContract: r.Token.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"owner":    r.Owner.Hex(),
			"spender":  r.Spender.Hex(),
			"value":    r.Value,
			"nonce":    r.Nonce,
			"deadline": r.Deadline,
		},
	}
}

// SplitSignature turns a 65-byte R || S || V signature into the permit
// arguments. V is normalised to 27/28.
func SplitSignature(sig []byte, deadline *big.Int) (contract.Permit, error) {
	if len(sig) != 65 {
		return contract.Permit{}, fmt.Errorf("%w: expected 65 bytes, got %d", ErrSignature, len(sig))
	}
	p := contract.Permit{Deadline: deadline, V: sig[64]}
	copy(p.R[:], sig[:32])
	copy(p.S[:], sig[32:64])
	if p.V < 27 {
		p.V += 27
	}
	if p.V != 27 && p.V != 28 {
		return contract.Permit{}, fmt.Errorf("%w: invalid recovery id %d", ErrSignature, sig[64])
	}
	return p, nil
}

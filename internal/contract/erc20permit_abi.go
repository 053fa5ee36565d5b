package contract

// ERC-20 with EIP-2612 permit. The redeemable token and the stablecoin are
// both driven through this interface.
//
// Function selectors:
//
//	name()              → 0x06fdde03
//	symbol()            → 0x95d89b41
//	decimals()          → 0x313ce567
//	balanceOf(address)  → 0x70a08231
//	allowance(a,a)      → 0xdd62ed3e
//	nonces(address)     → 0x7ecebe00
//	approve(a,u256)     → 0x095ea7b3
//	transfer(a,u256)    → 0xa9059cbb
func init() {
	RegisterBuiltin(BuiltinKind{
		ID:          KindERC20Permit,
		Name:        "ERC-20 + Permit",
		Description: "ERC-20 token with EIP-2612 nonces for gas-less approvals.",
		ABI:         erc20PermitABI,
	})
}

// KindERC20Permit is the builtin ID of the permit-capable ERC-20 ABI.
const KindERC20Permit = "erc20permit"

var erc20PermitABI = []ABIEntry{
	{
		Name: "name", Type: "function",
		Outputs:         []ABIParam{{Name: "", Type: "string"}},
		StateMutability: "view",
	},
	{
		Name: "symbol", Type: "function",
		Outputs:         []ABIParam{{Name: "", Type: "string"}},
		StateMutability: "view",
	},
	{
		Name: "decimals", Type: "function",
		Outputs:         []ABIParam{{Name: "", Type: "uint8"}},
		StateMutability: "view",
	},
	{
		Name: "balanceOf", Type: "function",
		Inputs:          []ABIParam{{Name: "account", Type: "address"}},
		Outputs:         []ABIParam{{Name: "", Type: "uint256"}},
		StateMutability: "view",
	},
	{
		Name: "allowance", Type: "function",
		Inputs:          []ABIParam{{Name: "owner", Type: "address"}, {Name: "spender", Type: "address"}},
		Outputs:         []ABIParam{{Name: "", Type: "uint256"}},
		StateMutability: "view",
	},
	{
		Name: "nonces", Type: "function",
		Inputs:          []ABIParam{{Name: "owner", Type: "address"}},
		Outputs:         []ABIParam{{Name: "", Type: "uint256"}},
		StateMutability: "view",
	},
	{
		Name: "approve", Type: "function",
		Inputs:          []ABIParam{{Name: "spender", Type: "address"}, {Name: "value", Type: "uint256"}},
		Outputs:         []ABIParam{{Name: "", Type: "bool"}},
		StateMutability: "nonpayable",
	},
	{
		Name: "transfer", Type: "function",
		Inputs:          []ABIParam{{Name: "to", Type: "address"}, {Name: "value", Type: "uint256"}},
		Outputs:         []ABIParam{{Name: "", Type: "bool"}},
		StateMutability: "nonpayable",
	},
}

package contract

// The redemption helper pulls the redeemable token from the caller (through
// an allowance or an inline permit) and hands out the destination token.
//
//	redeem(uint256)                                       → 0xdb006a75
//	permitAndRedeem(uint256,uint256,uint8,bytes32,bytes32)
func init() {
	RegisterBuiltin(BuiltinKind{
		ID:          KindHelper,
		Name:        "Redemption Helper",
		Description: "Redeems LSD for the destination token, optionally with an EIP-2612 permit.",
		ABI:         helperABI,
	})
}

// KindHelper is the builtin ID of the redemption helper ABI.
const KindHelper = "helper"

var helperABI = []ABIEntry{
	{
		Name: "redeem", Type: "function",
		Inputs:          []ABIParam{{Name: "amount", Type: "uint256"}},
		StateMutability: "nonpayable",
	},
	{
		Name: "permitAndRedeem", Type: "function",
		Inputs: []ABIParam{
			{Name: "amount", Type: "uint256"},
			{Name: "deadline", Type: "uint256"},
			{Name: "v", Type: "uint8"},
			{Name: "r", Type: "bytes32"},
			{Name: "s", Type: "bytes32"},
		},
		StateMutability: "nonpayable",
	},
}

package contract

// Read side of ERC-1155, enough to show a holder's balance of one id.
//
//	balanceOf(address,uint256) → 0x00fdd58e
func init() {
	RegisterBuiltin(BuiltinKind{
		ID:          KindERC1155,
		Name:        "ERC-1155 Multi Token",
		Description: "ERC-1155 balance reads for a single token id.",
		ABI:         erc1155ABI,
	})
}

// KindERC1155 is the builtin ID of the ERC-1155 ABI.
const KindERC1155 = "erc1155"

var erc1155ABI = []ABIEntry{
	{
		Name: "balanceOf", Type: "function",
		Inputs:          []ABIParam{{Name: "account", Type: "address"}, {Name: "id", Type: "uint256"}},
		Outputs:         []ABIParam{{Name: "", Type: "uint256"}},
		StateMutability: "view",
	},
}

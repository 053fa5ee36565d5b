package config

import "time"

// Gas limits used as EstimateGas fallbacks when the node cannot simulate the tx.
const (
	GasLimitERC20Approve  = uint64(60_000)
	GasLimitERC20Transfer = uint64(60_000)
	GasLimitContractCall  = uint64(200_000) // redeem / permitAndRedeem
)

// Redemption defaults.
const (
	DefaultTokenDecimals        = 18
	DefaultPermitWindow         = 10_000 * time.Second // added to the latest block timestamp
	DefaultApproveUnits         = 1
	DefaultRedeemThresholdUnits = 1
	DefaultPermitVersion        = "1"
	DefaultDestinationTokenID   = "0"

	// MaxPermitWindowSec keeps the window representable as a time.Duration.
	MaxPermitWindowSec = int64((1<<63 - 1) / time.Second)
)

// Timeouts and polling.
const (
	RPCSelectTimeout    = 10 * time.Second
	TxConfirmTimeout    = 3 * time.Minute
	ReceiptPollInterval = 2 * time.Second
	ConnectTimeout      = 30 * time.Second

	// DisconnectAfterFailures is how many consecutive failed liveness probes
	// end a session.
	DisconnectAfterFailures = 2
)

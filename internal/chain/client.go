package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/Mohsinsiddi/lsdredeem/internal/config"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// TxSigner signs transactions for a single account.
type TxSigner interface {
	Address() common.Address
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// RevertError reports a call or transaction rejected by the EVM.
type RevertError struct {
	Hash   common.Hash // zero when the revert was caught at estimate time
	Reason string
}

func (e *RevertError) Error() string {
	if e.Hash != (common.Hash{}) {
		return fmt.Sprintf("transaction reverted (hash: %s): %s", e.Hash.Hex(), e.Reason)
	}
	return "transaction would revert: " + e.Reason
}

// Client is a thin wrapper over ethclient for one RPC endpoint.
type Client struct {
	eth  *ethclient.Client
	url  string
	poll time.Duration
}

// Dial connects to an EVM JSON-RPC endpoint.
func Dial(ctx context.Context, url string) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &Client{eth: ec, url: url, poll: config.ReceiptPollInterval}, nil
}

// SetPollInterval overrides how often receipts are polled.
func (c *Client) SetPollInterval(d time.Duration) { c.poll = d }

// URL returns the endpoint this client talks to.
func (c *Client) URL() string { return c.url }

// Close releases the underlying connection.
func (c *Client) Close() { c.eth.Close() }

// ChainID asks the node for its chain ID.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	return c.eth.ChainID(ctx)
}

// Ping tests the RPC endpoint and returns latency + block number.
func (c *Client) Ping(ctx context.Context) (latency time.Duration, blockNum uint64, err error) {
	start := time.Now()
	blockNum, err = c.eth.BlockNumber(ctx)
	return time.Since(start), blockNum, err
}

// LatestTimestamp returns the timestamp of the latest block, in seconds.
func (c *Client) LatestTimestamp(ctx context.Context) (uint64, error) {
	head, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("latest header: %w", err)
	}
	return head.Time, nil
}

// Call executes a read-only contract call against the latest block.
func (c *Client) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		if isRevert(err) {
			return nil, &RevertError{Reason: extractRevertReason(err.Error())}
		}
		return nil, err
	}
	return out, nil
}

// Send builds, signs and broadcasts an EIP-1559 contract call from signer.
// fallbackGas is used when the node cannot estimate for reasons other than
// a revert.
func (c *Client) Send(ctx context.Context, signer TxSigner, to common.Address, data []byte, fallbackGas uint64) (*PendingTx, error) {
	from := signer.Address()

	chainID, err := c.eth.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}
	nonce, err := c.eth.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	tip, feeCap, err := c.fees(ctx)
	if err != nil {
		return nil, err
	}

	gas, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Data: data})
	switch {
	case err != nil && isRevert(err):
		return nil, &RevertError{Reason: extractRevertReason(err.Error())}
	case err != nil:
		gas = fallbackGas
	default:
		gas = gas * 12 / 10
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Value:     new(big.Int),
		Data:      data,
	})
	signed, err := signer.SignTx(tx, chainID)
	if err != nil {
		return nil, fmt.Errorf("signing transaction: %w", err)
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("broadcasting: %w", err)
	}
	return NewPendingTx(signed.Hash(), c.WaitForReceipt), nil
}

// WaitForReceipt polls until hash is mined or ctx expires. A mined but
// failed transaction yields a *RevertError alongside its receipt.
func (c *Client) WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()
	for {
		receipt, err := c.eth.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			if receipt.Status == types.ReceiptStatusFailed {
				return receipt, &RevertError{Hash: hash, Reason: "execution reverted"}
			}
			return receipt, nil
		case !errors.Is(err, ethereum.NotFound):
			return nil, fmt.Errorf("receipt %s: %w", hash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("transaction %s not mined: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// fees returns a tip and a fee cap of 2*baseFee + tip. Pre-London nodes
// fall back to the legacy gas price for both.
func (c *Client) fees(ctx context.Context) (tip, feeCap *big.Int, err error) {
	head, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("latest header: %w", err)
	}
	if head.BaseFee == nil {
		price, err := c.eth.SuggestGasPrice(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("gas price: %w", err)
		}
		return price, price, nil
	}
	tip, err = c.eth.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("gas tip: %w", err)
	}
	feeCap = new(big.Int).Mul(head.BaseFee, big.NewInt(2))
	feeCap.Add(feeCap, tip)
	return tip, feeCap, nil
}

func isRevert(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "revert")
}

// extractRevertReason tries to pull the revert reason out of an RPC error message.
func extractRevertReason(errMsg string) string {
	if idx := strings.Index(errMsg, "execution reverted:"); idx >= 0 {
		return strings.TrimSpace(errMsg[idx+len("execution reverted:"):])
	}
	if idx := strings.Index(errMsg, "revert"); idx >= 0 {
		return strings.TrimSpace(errMsg[idx:])
	}
	return errMsg
}

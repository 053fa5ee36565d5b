package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/Mohsinsiddi/lsdredeem/internal/chain"
	"github.com/Mohsinsiddi/lsdredeem/internal/chain/chaintest"
	"github.com/Mohsinsiddi/lsdredeem/internal/config"
	"github.com/Mohsinsiddi/lsdredeem/internal/wallet"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// Hardhat/Anvil test accounts #0 and #1.
const (
	aliceKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	bobKey   = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
)

var aliceAddr = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("INFURA_ID", "")
	t.Setenv("LSDREDEEM_PROVIDER_KEY", "")
	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)
	cfg.SetProviderKey("test-key")
	for field, v := range map[string]string{
		"redeemable_token":  "0x00000000000000000000000000000000000000a1",
		"destination_token": "0x00000000000000000000000000000000000000a2",
		"redemption_helper": "0x00000000000000000000000000000000000000a3",
	} {
		require.NoError(t, cfg.SetContract("sepolia", field, v))
	}
	return cfg
}

func sepoliaNode(t *testing.T) *chaintest.Node {
	return chaintest.NewNode(t, map[string]any{"eth_chainId": "0xaa36a7"})
}

func newConnector(t *testing.T, cfg *config.Config, wallets WalletSource, node *chaintest.Node, opts ...Option) *Connector {
	t.Helper()
	opts = append([]Option{
		WithNetwork("sepolia"),
		WithWatchInterval(20 * time.Millisecond),
		WithLogger(zaptest.NewLogger(t)),
	}, opts...)
	c := NewConnector(cfg, wallets, opts...)
	c.endpoints = func(*chain.Chain, string) []string { return []string{node.URL} }
	t.Cleanup(c.Reset)
	return c
}

func aliceOnly(t *testing.T) *wallet.Manager {
	t.Helper()
	m := wallet.NewManager()
	_, err := m.AddWithKey("alice", aliceKey)
	require.NoError(t, err)
	return m
}

func TestConnectRequiresProviderKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.SetProviderKey("")
	node := sepoliaNode(t)

	_, err := newConnector(t, cfg, aliceOnly(t), node).Connect(context.Background(), nil)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.ErrorIs(t, err, chain.ErrNoProviderKey)
	assert.Zero(t, node.Calls("eth_chainId"))
}

func TestConnectUnknownNetwork(t *testing.T) {
	node := sepoliaNode(t)
	c := newConnector(t, testConfig(t), aliceOnly(t), node, WithNetwork("atlantis"))
	_, err := c.Connect(context.Background(), nil)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestConnectMissingDeployment(t *testing.T) {
	node := sepoliaNode(t)
	c := newConnector(t, testConfig(t), aliceOnly(t), node, WithNetwork("base-sepolia"))
	_, err := c.Connect(context.Background(), nil)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.ErrorIs(t, err, config.ErrMissing)
	assert.Zero(t, node.Calls("eth_chainId"))
}

func TestConnectEstablishesSession(t *testing.T) {
	cfg := testConfig(t)
	node := sepoliaNode(t)
	c := newConnector(t, cfg, aliceOnly(t), node)

	sess, err := c.Connect(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), sess.ID)
	assert.Equal(t, int64(11155111), sess.ChainID)
	assert.Equal(t, aliceAddr, sess.Account)
	assert.Equal(t, "alice", sess.Wallet)
	assert.Equal(t, "sepolia", sess.Network)
	assert.Equal(t, "testnet", sess.Mode)
	assert.Equal(t, node.URL, sess.RPC)
	assert.Equal(t, common.HexToAddress("0xa3"), sess.Ledger.Helper())
	assert.Same(t, sess, c.Current())

	sel, ok := c.Cache().Load()
	require.True(t, ok)
	assert.Equal(t, "alice", sel.Wallet)
	assert.Equal(t, "sepolia", sel.Network)
	assert.Equal(t, aliceAddr.Hex(), sel.Account)

	info, err := os.Stat(c.Cache().Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestConnectTwiceFails(t *testing.T) {
	c := newConnector(t, testConfig(t), aliceOnly(t), sepoliaNode(t))
	_, err := c.Connect(context.Background(), nil)
	require.NoError(t, err)
	_, err = c.Connect(context.Background(), nil)
	assert.Error(t, err)
}

func TestConnectWrongChain(t *testing.T) {
	node := chaintest.NewNode(t, map[string]any{"eth_chainId": "0x1"})
	c := newConnector(t, testConfig(t), aliceOnly(t), node)
	_, err := c.Connect(context.Background(), nil)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Nil(t, c.Current())
}

func TestResetIsIdempotent(t *testing.T) {
	c := newConnector(t, testConfig(t), aliceOnly(t), sepoliaNode(t))
	_, err := c.Connect(context.Background(), nil)
	require.NoError(t, err)

	c.Reset()
	assert.Nil(t, c.Current())
	_, ok := c.Cache().Load()
	assert.False(t, ok)

	c.Reset()
	assert.Nil(t, c.Current())

	sess, err := c.Connect(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), sess.ID)
}

func TestCloseKeepsSelection(t *testing.T) {
	c := newConnector(t, testConfig(t), aliceOnly(t), sepoliaNode(t))
	_, err := c.Connect(context.Background(), nil)
	require.NoError(t, err)

	c.Close()
	assert.Nil(t, c.Current())
	sel, ok := c.Cache().Load()
	require.True(t, ok)
	assert.Equal(t, "alice", sel.Wallet)

	c.Close()
	_, ok = c.Cache().Load()
	assert.True(t, ok, "closing with no session keeps the cache")
}

func TestPickerCancelIsRejection(t *testing.T) {
	m := aliceOnly(t)
	_, err := m.AddWithKey("bob", bobKey)
	require.NoError(t, err)

	var offered []string
	c := newConnector(t, testConfig(t), m, sepoliaNode(t), WithWalletSelector(func(ws []*wallet.Wallet) (string, error) {
		for _, w := range ws {
			offered = append(offered, w.Name)
		}
		return "", nil
	}))

	_, err = c.Connect(context.Background(), nil)
	assert.ErrorIs(t, err, ErrUserRejected)
	assert.Equal(t, []string{"alice", "bob"}, offered)
}

func TestPickerChoiceIsUsed(t *testing.T) {
	m := aliceOnly(t)
	_, err := m.AddWithKey("bob", bobKey)
	require.NoError(t, err)

	c := newConnector(t, testConfig(t), m, sepoliaNode(t), WithWalletSelector(func([]*wallet.Wallet) (string, error) {
		return "bob", nil
	}))
	sess, err := c.Connect(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "bob", sess.Wallet)
}

func TestCachedWalletPreferred(t *testing.T) {
	m := aliceOnly(t)
	_, err := m.AddWithKey("bob", bobKey)
	require.NoError(t, err)
	cfg := testConfig(t)
	require.NoError(t, NewSelectionCache(cfg.Dir()).Save(Selection{Wallet: "bob"}))

	c := newConnector(t, cfg, m, sepoliaNode(t), WithWalletSelector(func([]*wallet.Wallet) (string, error) {
		t.Fatal("picker should not be shown")
		return "", nil
	}))
	sess, err := c.Connect(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "bob", sess.Wallet)
}

func TestMissingKeyIsConfigurationError(t *testing.T) {
	ks := wallet.NewInMemoryKeystore()
	m := wallet.NewManager(wallet.WithKeystore(ks))
	w, err := m.AddWithKey("alice", aliceKey)
	require.NoError(t, err)
	require.NoError(t, ks.Delete(w.KeyRef))

	c := newConnector(t, testConfig(t), m, sepoliaNode(t))
	_, err = c.Connect(context.Background(), nil)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.NotErrorIs(t, err, ErrUserRejected)
	assert.ErrorContains(t, err, "wallet add alice")
	assert.Nil(t, c.Current())
}

// lockedWallets declines every unlock, like a dismissed keychain prompt.
type lockedWallets struct{ *wallet.Manager }

func (lockedWallets) Unlock(string) (*wallet.Signer, error) {
	return nil, fmt.Errorf("%w: passphrase prompt dismissed", wallet.ErrLocked)
}

func TestDeclinedUnlockIsRejection(t *testing.T) {
	c := newConnector(t, testConfig(t), lockedWallets{aliceOnly(t)}, sepoliaNode(t))
	_, err := c.Connect(context.Background(), nil)
	assert.ErrorIs(t, err, ErrUserRejected)
	assert.Nil(t, c.Current())
}

func TestWatchOnlyWalletRejected(t *testing.T) {
	m := wallet.NewManager()
	require.NoError(t, m.Add("viewer", aliceAddr.Hex()))

	c := newConnector(t, testConfig(t), m, sepoliaNode(t), WithWallet("viewer"))
	_, err := c.Connect(context.Background(), nil)
	assert.ErrorIs(t, err, ErrConfiguration)
}

type disconnect struct {
	id    uint64
	cause error
}

func connectWatched(t *testing.T, node *chaintest.Node) (*Connector, *Session, <-chan disconnect) {
	t.Helper()
	c := newConnector(t, testConfig(t), aliceOnly(t), node)
	events := make(chan disconnect, 1)
	sess, err := c.Connect(context.Background(), func(id uint64, cause error) {
		events <- disconnect{id, cause}
	})
	require.NoError(t, err)
	return c, sess, events
}

func waitDisconnect(t *testing.T, events <-chan disconnect) disconnect {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("no disconnect reported")
		return disconnect{}
	}
}

func TestWatcherReportsChainChange(t *testing.T) {
	node := sepoliaNode(t)
	c, sess, events := connectWatched(t, node)

	node.Set("eth_chainId", "0x1")
	ev := waitDisconnect(t, events)

	assert.Equal(t, sess.ID, ev.id)
	assert.ErrorIs(t, ev.cause, ErrChainChanged)
	assert.Nil(t, c.Current())
	_, ok := c.Cache().Load()
	assert.False(t, ok)
}

func TestWatcherReportsLostConnection(t *testing.T) {
	node := sepoliaNode(t)
	c, sess, events := connectWatched(t, node)

	node.Set("eth_chainId", chaintest.Handler(func([]json.RawMessage) (any, error) {
		return nil, errors.New("upstream unavailable")
	}))
	ev := waitDisconnect(t, events)

	assert.Equal(t, sess.ID, ev.id)
	assert.ErrorIs(t, ev.cause, ErrDisconnected)
	assert.Nil(t, c.Current())
}

func TestResetSuppressesCallback(t *testing.T) {
	node := sepoliaNode(t)
	c, _, events := connectWatched(t, node)

	c.Reset()
	node.Set("eth_chainId", "0x1")
	select {
	case ev := <-events:
		t.Fatalf("unexpected disconnect after reset: %v", ev.cause)
	case <-time.After(100 * time.Millisecond):
	}
}

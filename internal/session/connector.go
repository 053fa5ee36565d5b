package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Mohsinsiddi/lsdredeem/internal/chain"
	"github.com/Mohsinsiddi/lsdredeem/internal/config"
	"github.com/Mohsinsiddi/lsdredeem/internal/contract"
	"github.com/Mohsinsiddi/lsdredeem/internal/logging"
	"github.com/Mohsinsiddi/lsdredeem/internal/rpc"
	"github.com/Mohsinsiddi/lsdredeem/internal/wallet"
	"go.uber.org/zap"
)

// WalletSource lists and unlocks wallets. *wallet.Manager implements it.
type WalletSource interface {
	Get(name string) (*wallet.Wallet, error)
	List() ([]*wallet.Wallet, error)
	Default() *wallet.Wallet
	Unlock(name string) (*wallet.Signer, error)
}

// WalletSelector asks the user to choose among signing wallets. It returns
// "" when the user cancels.
type WalletSelector func(wallets []*wallet.Wallet) (string, error)

// DisconnectFunc is told once when a session ends without Reset.
type DisconnectFunc func(id uint64, cause error)

// Connector is the connection manager. It owns at most one Session.
type Connector struct {
	cfg      *config.Config
	wallets  WalletSource
	registry *chain.Registry
	picker   *rpc.Picker
	cache    *SelectionCache
	log      *zap.Logger

	selectWallet WalletSelector
	dial         DialFunc
	endpoints    func(c *chain.Chain, mode string) []string
	interval     time.Duration
	walletName   string
	networkName  string

	mu      sync.Mutex
	seq     uint64
	current *Session
	client  Client
	stop    chan struct{}
	done    chan struct{}
}

// Option configures a Connector.
type Option func(*Connector)

// WithLogger sets the logger. nil means no logging.
func WithLogger(l *zap.Logger) Option {
	return func(c *Connector) { c.log = l }
}

// WithWalletSelector sets the interactive fallback for wallet choice.
func WithWalletSelector(s WalletSelector) Option {
	return func(c *Connector) { c.selectWallet = s }
}

// WithDialer replaces how RPC endpoints are dialled.
func WithDialer(d DialFunc) Option {
	return func(c *Connector) { c.dial = d }
}

// WithWallet pins the wallet, skipping the cache, default and picker.
func WithWallet(name string) Option {
	return func(c *Connector) { c.walletName = name }
}

// WithNetwork overrides the configured default network. A testnet slug such
// as "sepolia" also selects testnet mode.
func WithNetwork(name string) Option {
	return func(c *Connector) { c.networkName = name }
}

// WithWatchInterval overrides how often the connection is probed.
func WithWatchInterval(d time.Duration) Option {
	return func(c *Connector) { c.interval = d }
}

// NewConnector builds a Connector over cfg and wallets.
func NewConnector(cfg *config.Config, wallets WalletSource, opts ...Option) *Connector {
	c := &Connector{
		cfg:      cfg,
		wallets:  wallets,
		registry: chain.NewRegistry(),
		picker:   rpc.NewPicker(rpc.Algorithm(cfg.RPCAlgorithm)),
		cache:    NewSelectionCache(cfg.Dir()),
		dial:     dialChain,
		interval: cfg.Watch(),
	}
	c.endpoints = c.defaultEndpoints
	for _, opt := range opts {
		opt(c)
	}
	c.log = logging.OrNop(c.log)
	return c
}

// Cache exposes the selection cache.
func (c *Connector) Cache() *SelectionCache { return c.cache }

// Current returns the live session, or nil.
func (c *Connector) Current() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// target is a resolved network plus its contract set.
type target struct {
	chain      *chain.Chain
	mode       string
	slug       string
	deployment config.Deployment
}

// resolve performs every check that needs no network access.
func (c *Connector) resolve() (target, error) {
	name := c.networkName
	if name == "" {
		name = c.cfg.DefaultNetwork
	}
	ch, err := c.registry.GetByName(name)
	if err != nil {
		return target{}, fmt.Errorf("%w: network %q: %v", ErrConfiguration, name, err)
	}
	mode := c.cfg.NetworkMode
	if strings.EqualFold(name, ch.TestnetSlug) {
		mode = "testnet"
	}
	if mode != "testnet" {
		mode = "mainnet"
	}

	if c.cfg.ProviderKey == "" {
		return target{}, fmt.Errorf("%w: %w (set INFURA_ID or run `lsdredeem config set-key`)", ErrConfiguration, chain.ErrNoProviderKey)
	}
	slug := ch.Slug(mode)
	dep, err := c.cfg.Deployment(slug)
	if err != nil {
		return target{}, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if err := c.cfg.Redeem.Validate(); err != nil {
		return target{}, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return target{chain: ch, mode: mode, slug: slug, deployment: dep}, nil
}

// chooseWallet applies flag → cache → default → picker.
func (c *Connector) chooseWallet() (*wallet.Wallet, error) {
	if c.walletName != "" {
		w, err := c.wallets.Get(c.walletName)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
		return w, nil
	}
	if sel, ok := c.cache.Load(); ok {
		if w, err := c.wallets.Get(sel.Wallet); err == nil && w.Type == wallet.TypeSigning {
			return w, nil
		}
		c.log.Debug("cached wallet no longer usable", zap.String("wallet", sel.Wallet))
	}
	if w := c.wallets.Default(); w != nil && w.Type == wallet.TypeSigning {
		return w, nil
	}

	all, err := c.wallets.List()
	if err != nil {
		return nil, err
	}
	var signing []*wallet.Wallet
	for _, w := range all {
		if w.Type == wallet.TypeSigning {
			signing = append(signing, w)
		}
	}
	switch {
	case len(signing) == 0:
		return nil, fmt.Errorf("%w: no signing wallet (run `lsdredeem wallet add`)", ErrConfiguration)
	case len(signing) == 1:
		return signing[0], nil
	case c.selectWallet == nil:
		return nil, fmt.Errorf("%w: several wallets and none is default (use --wallet)", ErrConfiguration)
	}

	name, err := c.selectWallet(signing)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, ErrUserRejected
	}
	return c.wallets.Get(name)
}

func (c *Connector) defaultEndpoints(ch *chain.Chain, mode string) []string {
	urls := append([]string{}, c.cfg.GetRPCs(ch.Slug(mode))...)
	if u, err := ch.ProviderURL(mode, c.cfg.ProviderKey); err == nil {
		urls = append(urls, u)
	}
	return append(urls, ch.RPCs(mode)...)
}

// Connect establishes a new Session, replacing none: callers must Reset an
// existing one first. onDisconnect may be nil.
func (c *Connector) Connect(ctx context.Context, onDisconnect DisconnectFunc) (*Session, error) {
	t, err := c.resolve()
	if err != nil {
		return nil, err
	}
	w, err := c.chooseWallet()
	if err != nil {
		return nil, err
	}
	if w.Type != wallet.TypeSigning {
		return nil, fmt.Errorf("%w: %w: %q", ErrConfiguration, wallet.ErrWatchOnly, w.Name)
	}

	selectCtx, cancel := context.WithTimeout(ctx, config.RPCSelectTimeout)
	url, err := c.picker.Select(selectCtx, c.endpoints(t.chain, t.mode))
	cancel()
	if err != nil {
		return nil, fmt.Errorf("selecting rpc for %s: %w", t.slug, err)
	}
	c.log.Debug("rpc selected", zap.String("url", url), zap.String("algorithm", string(c.picker.Algorithm())))

	client, err := c.dial(ctx, url)
	if err != nil {
		return nil, err
	}
	id, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("reading chain id: %w", err)
	}
	if want := t.chain.ID(t.mode); id.Int64() != want {
		client.Close()
		return nil, fmt.Errorf("%w: %s serves chain %d, expected %d", ErrConfiguration, url, id.Int64(), want)
	}

	signer, err := c.wallets.Unlock(w.Name)
	if err != nil {
		client.Close()
		if errors.Is(err, wallet.ErrKeyMissing) {
			return nil, fmt.Errorf("%w: %w (re-add it with `lsdredeem wallet add %s --key`)", ErrConfiguration, err, w.Name)
		}
		if errors.Is(err, wallet.ErrLocked) {
			return nil, fmt.Errorf("%w: %w", ErrUserRejected, err)
		}
		return nil, fmt.Errorf("unlocking %s: %w", w.Name, err)
	}
	suite, err := contract.NewSuite(client, signer, t.deployment)
	if err != nil {
		signer.Lock()
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	c.mu.Lock()
	if c.current != nil {
		c.mu.Unlock()
		signer.Lock()
		client.Close()
		return nil, errors.New("already connected")
	}
	c.seq++
	sess := &Session{
		ID:      c.seq,
		ChainID: id.Int64(),
		Account: signer.Address(),
		Wallet:  w.Name,
		Network: t.slug,
		Label:   t.chain.Label(t.mode),
		Mode:    t.mode,
		RPC:     url,
		Ledger:  suite,
		Signer:  signer,
	}
	c.current, c.client = sess, client
	c.stop, c.done = make(chan struct{}), make(chan struct{})
	go c.watch(sess, client, c.stop, c.done, onDisconnect)
	c.mu.Unlock()

	err = c.cache.Save(Selection{
		Wallet:      sess.Wallet,
		Network:     sess.Network,
		Account:     sess.Account.Hex(),
		ChainID:     sess.ChainID,
		RPC:         url,
		ConnectedAt: time.Now().UTC(),
	})
	if err != nil {
		c.log.Warn("saving selection cache", zap.Error(err))
	}
	c.log.Info("connected",
		zap.Uint64("session", sess.ID),
		zap.String("wallet", sess.Wallet),
		zap.String("account", sess.Account.Hex()),
		zap.String("network", sess.Network),
	)
	return sess, nil
}

// watch probes the chain ID until stopped. Repeated failures or a changed
// chain end the session.
func (c *Connector) watch(sess *Session, client Client, stop <-chan struct{}, done chan<- struct{}, onDisconnect DisconnectFunc) {
	defer close(done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.interval)
		id, err := client.ChainID(ctx)
		cancel()

		var cause error
		switch {
		case err != nil:
			failures++
			c.log.Debug("liveness probe failed", zap.Uint64("session", sess.ID), zap.Int("failures", failures), zap.Error(err))
			if failures >= config.DisconnectAfterFailures {
				cause = fmt.Errorf("%w: %v", ErrDisconnected, err)
			}
		case id.Int64() != sess.ChainID:
			cause = fmt.Errorf("%w: %d → %d", ErrChainChanged, sess.ChainID, id.Int64())
		default:
			failures = 0
		}
		if cause == nil {
			continue
		}

		if c.drop(sess.ID) {
			c.log.Info("disconnected", zap.Uint64("session", sess.ID), zap.Error(cause))
			if onDisconnect != nil {
				onDisconnect(sess.ID, cause)
			}
		}
		return
	}
}

// drop tears down session id if it is still current.
func (c *Connector) drop(id uint64) bool {
	c.mu.Lock()
	if c.current == nil || c.current.ID != id {
		c.mu.Unlock()
		return false
	}
	sess, client := c.current, c.client
	c.current, c.client, c.stop, c.done = nil, nil, nil, nil
	c.mu.Unlock()

	c.release(sess, client, true)
	return true
}

func (c *Connector) release(sess *Session, client Client, forget bool) {
	sess.Signer.Lock()
	client.Close()
	if !forget {
		return
	}
	if err := c.cache.Clear(); err != nil {
		c.log.Warn("clearing selection cache", zap.Error(err))
	}
}

// Reset ends the current session, if any, and forgets the cached
// selection. It never calls the disconnect callback and is safe to repeat.
func (c *Connector) Reset() { c.end(true) }

// Close ends the current session but keeps the cached selection, so the
// next process reconnects to the same wallet and network.
func (c *Connector) Close() { c.end(false) }

func (c *Connector) end(forget bool) {
	c.mu.Lock()
	sess, client, stop, done := c.current, c.client, c.stop, c.done
	c.current, c.client, c.stop, c.done = nil, nil, nil, nil
	c.mu.Unlock()

	if sess == nil {
		if forget {
			if err := c.cache.Clear(); err != nil {
				c.log.Warn("clearing selection cache", zap.Error(err))
			}
		}
		return
	}
	close(stop)
	<-done
	c.release(sess, client, forget)
	c.log.Info("session ended", zap.Uint64("session", sess.ID), zap.Bool("forget", forget))
}

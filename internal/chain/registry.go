package chain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrChainNotFound is returned when a chain is not in the registry.
var ErrChainNotFound = errors.New("chain not found")

// ErrNoProviderKey is returned when a provider URL is requested without a key.
var ErrNoProviderKey = errors.New("provider API key not set")

// Chain holds all metadata for a single EVM network and its testnet.
type Chain struct {
	Name            string   `json:"name"`
	DisplayName     string   `json:"display_name"`
	ChainID         int64    `json:"chain_id"`
	TestnetChainID  int64    `json:"testnet_chain_id"`
	NativeCurrency  string   `json:"native_currency"`
	MainnetProvider string   `json:"mainnet_provider"` // URL template, %s = API key
	TestnetProvider string   `json:"testnet_provider"`
	MainnetRPCs     []string `json:"mainnet_rpcs"` // keyless fallbacks
	TestnetRPCs     []string `json:"testnet_rpcs"`
	MainnetExplorer string   `json:"mainnet_explorer"`
	TestnetExplorer string   `json:"testnet_explorer"`
	TestnetName     string   `json:"testnet_name"`
	TestnetSlug     string   `json:"testnet_slug"` // deployment key for the testnet
}

// Registry is the chain registry.
type Registry struct {
	chains []Chain
	byName map[string]*Chain
	byID   map[int64]*Chain
}

// NewRegistry creates and returns the registry of supported networks.
func NewRegistry() *Registry {
	chains := allChains()
	r := &Registry{
		chains: chains,
		byName: make(map[string]*Chain, len(chains)*2),
		byID:   make(map[int64]*Chain, len(chains)*2),
	}
	for i := range r.chains {
		c := &r.chains[i]
		r.byName[c.Name] = c
		r.byName[c.TestnetSlug] = c
		r.byID[c.ChainID] = c
		r.byID[c.TestnetChainID] = c
	}
	return r
}

// All returns every chain in the registry.
func (r *Registry) All() []Chain {
	return r.chains
}

// GetByName finds a chain by its slug ("ethereum") or its testnet slug ("sepolia").
func (r *Registry) GetByName(name string) (*Chain, error) {
	c, ok := r.byName[strings.ToLower(name)]
	if !ok {
		return nil, ErrChainNotFound
	}
	return c, nil
}

// GetByChainID finds a chain by mainnet or testnet chain ID.
func (r *Registry) GetByChainID(id int64) (*Chain, error) {
	c, ok := r.byID[id]
	if !ok {
		return nil, ErrChainNotFound
	}
	return c, nil
}

// ID returns the chain ID for mode ("mainnet"/"testnet").
func (c *Chain) ID(mode string) int64 {
	if mode == "testnet" {
		return c.TestnetChainID
	}
	return c.ChainID
}

// Slug returns the deployment key for mode: the chain name on mainnet,
// the testnet slug otherwise.
func (c *Chain) Slug(mode string) string {
	if mode == "testnet" {
		return c.TestnetSlug
	}
	return c.Name
}

// Label is a display name including the testnet name when relevant.
func (c *Chain) Label(mode string) string {
	if mode == "testnet" {
		return fmt.Sprintf("%s %s", c.DisplayName, c.TestnetName)
	}
	return c.DisplayName
}

// RPCs returns the keyless RPC list for a chain in the given mode.
func (c *Chain) RPCs(mode string) []string {
	if mode == "testnet" {
		return c.TestnetRPCs
	}
	return c.MainnetRPCs
}

// ProviderURL fills the provider template for mode with key.
func (c *Chain) ProviderURL(mode, key string) (string, error) {
	if key == "" {
		return "", ErrNoProviderKey
	}
	tmpl := c.MainnetProvider
	if mode == "testnet" {
		tmpl = c.TestnetProvider
	}
	return fmt.Sprintf(tmpl, key), nil
}

// Explorer returns the explorer URL for a chain in the given mode.
func (c *Chain) Explorer(mode string) string {
	if mode == "testnet" {
		return c.TestnetExplorer
	}
	return c.MainnetExplorer
}

// TxURL links a transaction hash on the explorer.
func (c *Chain) TxURL(mode, hash string) string {
	return c.Explorer(mode) + "/tx/" + hash
}

// --- chain data ---

func allChains() []Chain {
	return []Chain{
		{
			Name: "ethereum", DisplayName: "Ethereum", ChainID: 1, TestnetChainID: 11155111,
			NativeCurrency:  "ETH",
			MainnetProvider: "https://mainnet.infura.io/v3/%s",
			TestnetProvider: "https://sepolia.infura.io/v3/%s",
			MainnetRPCs:     []string{"https://eth.llamarpc.com", "https://ethereum-rpc.publicnode.com"},
			TestnetRPCs:     []string{"https://ethereum-sepolia-rpc.publicnode.com"},
			MainnetExplorer: "https://etherscan.io",
			TestnetExplorer: "https://sepolia.etherscan.io",
			TestnetName:     "Sepolia",
			TestnetSlug:     "sepolia",
		},
		{
			Name: "polygon", DisplayName: "Polygon", ChainID: 137, TestnetChainID: 80002,
			NativeCurrency:  "POL",
			MainnetProvider: "https://polygon-mainnet.infura.io/v3/%s",
			TestnetProvider: "https://polygon-amoy.infura.io/v3/%s",
			MainnetRPCs:     []string{"https://polygon-bor-rpc.publicnode.com"},
			TestnetRPCs:     []string{"https://rpc-amoy.polygon.technology"},
			MainnetExplorer: "https://polygonscan.com",
			TestnetExplorer: "https://amoy.polygonscan.com",
			TestnetName:     "Amoy",
			TestnetSlug:     "amoy",
		},
		{
			Name: "arbitrum", DisplayName: "Arbitrum", ChainID: 42161, TestnetChainID: 421614,
			NativeCurrency:  "ETH",
			MainnetProvider: "https://arbitrum-mainnet.infura.io/v3/%s",
			TestnetProvider: "https://arbitrum-sepolia.infura.io/v3/%s",
			MainnetRPCs:     []string{"https://arb1.arbitrum.io/rpc"},
			TestnetRPCs:     []string{"https://sepolia-rollup.arbitrum.io/rpc"},
			MainnetExplorer: "https://arbiscan.io",
			TestnetExplorer: "https://sepolia.arbiscan.io",
			TestnetName:     "Arb Sepolia",
			TestnetSlug:     "arbitrum-sepolia",
		},
		{
			Name: "optimism", DisplayName: "Optimism", ChainID: 10, TestnetChainID: 11155420,
			NativeCurrency:  "ETH",
			MainnetProvider: "https://optimism-mainnet.infura.io/v3/%s",
			TestnetProvider: "https://optimism-sepolia.infura.io/v3/%s",
			MainnetRPCs:     []string{"https://mainnet.optimism.io"},
			TestnetRPCs:     []string{"https://sepolia.optimism.io"},
			MainnetExplorer: "https://optimistic.etherscan.io",
			TestnetExplorer: "https://sepolia-optimism.etherscan.io",
			TestnetName:     "OP Sepolia",
			TestnetSlug:     "optimism-sepolia",
		},
		{
			Name: "base", DisplayName: "Base", ChainID: 8453, TestnetChainID: 84532,
			NativeCurrency:  "ETH",
			MainnetProvider: "https://base-mainnet.infura.io/v3/%s",
			TestnetProvider: "https://base-sepolia.infura.io/v3/%s",
			MainnetRPCs:     []string{"https://mainnet.base.org"},
			TestnetRPCs:     []string{"https://sepolia.base.org"},
			MainnetExplorer: "https://basescan.org",
			TestnetExplorer: "https://sepolia.basescan.org",
			TestnetName:     "Base Sepolia",
			TestnetSlug:     "base-sepolia",
		},
		{
			Name: "linea", DisplayName: "Linea", ChainID: 59144, TestnetChainID: 59141,
			NativeCurrency:  "ETH",
			MainnetProvider: "https://linea-mainnet.infura.io/v3/%s",
			TestnetProvider: "https://linea-sepolia.infura.io/v3/%s",
			MainnetRPCs:     []string{"https://rpc.linea.build"},
			TestnetRPCs:     []string{"https://rpc.sepolia.linea.build"},
			MainnetExplorer: "https://lineascan.build",
			TestnetExplorer: "https://sepolia.lineascan.build",
			TestnetName:     "Linea Sepolia",
			TestnetSlug:     "linea-sepolia",
		},
	}
}

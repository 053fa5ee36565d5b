package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/spf13/viper"
)

const (
	defaultNetwork   = "ethereum"
	defaultMode      = "mainnet"
	defaultAlgorithm = "fastest"
	defaultInterval  = 10
	defaultStrategy  = "approve"
	defaultApprove   = "balance"
	defaultStandard  = "erc1155"

	configFile = "config.json"
	syncFile   = "sync.json"

	envPrefix = "LSDREDEEM"
)

// ErrMissing is wrapped by every "required setting absent" error so callers
// can tell configuration problems apart from runtime failures.
var ErrMissing = errors.New("required config missing")

// Load reads config from dir (or creates defaults). dir defaults to ~/.lsdredeem.
//
// Values are layered defaults < config.json < environment. The provider key
// is also read from INFURA_ID.
func Load(dir string) (*Config, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("could not determine home dir: %w", err)
		}
		dir = filepath.Join(home, ".lsdredeem")
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("could not create config dir: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	path := filepath.Join(dir, configFile)
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Captured before env bindings so Save never writes an env-only key.
	fileKey := v.GetString("provider_key")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("provider_key", envPrefix+"_PROVIDER_KEY", "INFURA_ID"); err != nil {
		return nil, fmt.Errorf("binding env: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.configDir = dir
	cfg.fileProviderKey = fileKey
	if cfg.CustomRPCs == nil {
		cfg.CustomRPCs = make(map[string][]string)
	}
	if cfg.Contracts == nil {
		cfg.Contracts = make(map[string]Deployment)
	}

	return cfg, nil
}

// Save writes the config to disk. A provider key supplied only through the
// environment is not persisted.
func (c *Config) Save() error {
	if err := os.MkdirAll(c.configDir, 0o700); err != nil {
		return err
	}
	out := *c
	out.ProviderKey = c.fileProviderKey
	data, err := json.MarshalIndent(&out, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.configDir, configFile), data, 0o600)
}

// SetProviderKey stores the RPC provider API key.
func (c *Config) SetProviderKey(key string) {
	c.ProviderKey = key
	c.fileProviderKey = key
}

// AddRPC adds a custom RPC URL for a chain.
func (c *Config) AddRPC(chain, url string) error {
	if c.CustomRPCs == nil {
		c.CustomRPCs = make(map[string][]string)
	}
	if slices.Contains(c.CustomRPCs[chain], url) {
		return fmt.Errorf("RPC %s already exists for chain %s", url, chain)
	}
	c.CustomRPCs[chain] = append(c.CustomRPCs[chain], url)
	return nil
}

// RemoveRPC removes a custom RPC URL for a chain.
func (c *Config) RemoveRPC(chain, url string) error {
	rpcs := c.CustomRPCs[chain]
	idx := slices.Index(rpcs, url)
	if idx == -1 {
		return fmt.Errorf("RPC %s not found for chain %s", url, chain)
	}
	c.CustomRPCs[chain] = slices.Delete(rpcs, idx, idx+1)
	return nil
}

// GetRPCs returns custom RPCs for a chain.
func (c *Config) GetRPCs(chain string) []string {
	return c.CustomRPCs[chain]
}

// Dir returns the config directory.
func (c *Config) Dir() string {
	return c.configDir
}

// Deployment returns the validated contract set for network.
func (c *Config) Deployment(network string) (Deployment, error) {
	d, ok := c.Contracts[strings.ToLower(network)]
	if !ok {
		return Deployment{}, fmt.Errorf("%w: no contracts configured for %s", ErrMissing, network)
	}
	if err := d.Validate(); err != nil {
		return Deployment{}, fmt.Errorf("%s: %w", network, err)
	}
	return d, nil
}

// SetContract updates one field of a network's deployment.
func (c *Config) SetContract(network, field, value string) error {
	if c.Contracts == nil {
		c.Contracts = make(map[string]Deployment)
	}
	network = strings.ToLower(network)
	d := c.Contracts[network]

	switch field {
	case "redeemable_token", "destination_token", "redemption_helper", "stablecoin":
		if !common.IsHexAddress(value) {
			return fmt.Errorf("invalid address %q for %s", value, field)
		}
		switch field {
		case "redeemable_token":
			d.RedeemableToken = value
		case "destination_token":
			d.DestinationToken = value
		case "redemption_helper":
			d.RedemptionHelper = value
		case "stablecoin":
			d.Stablecoin = value
		}
	case "destination_token_id":
		if _, err := strconv.ParseUint(value, 10, 64); err != nil {
			return fmt.Errorf("invalid token id %q", value)
		}
		d.DestinationTokenID = value
	case "destination_standard":
		if value != "erc1155" && value != "erc20" {
			return fmt.Errorf("unknown token standard %q (want erc1155 or erc20)", value)
		}
		d.DestinationStandard = value
	default:
		return fmt.Errorf("unknown contract field %q", field)
	}

	if d.DestinationStandard == "" {
		d.DestinationStandard = defaultStandard
	}
	if d.DestinationTokenID == "" {
		d.DestinationTokenID = DefaultDestinationTokenID
	}
	c.Contracts[network] = d
	return nil
}

// SetRedeemOption updates one redeem setting from its string form.
func (c *Config) SetRedeemOption(key, value string) error {
	r := c.Redeem
	switch key {
	case "strategy":
		r.Strategy = value
	case "approve_mode":
		r.ApproveMode = value
	case "permit_version":
		r.PermitVersion = value
	case "approve_units", "permit_window_sec", "threshold_units":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("%s must be an integer: %w", key, err)
		}
		switch key {
		case "approve_units":
			r.ApproveUnits = n
		case "permit_window_sec":
			r.PermitWindowSec = n
		case "threshold_units":
			r.ThresholdUnits = n
		}
	case "token_decimals":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("token_decimals must be an integer: %w", err)
		}
		r.TokenDecimals = n
	default:
		return fmt.Errorf("unknown redeem option %q", key)
	}
	if err := r.Validate(); err != nil {
		return err
	}
	c.Redeem = r
	return nil
}

// Validate checks that every required address is present and well formed.
func (d Deployment) Validate() error {
	required := []struct{ name, value string }{
		{"redeemable_token", d.RedeemableToken},
		{"destination_token", d.DestinationToken},
		{"redemption_helper", d.RedemptionHelper},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%w: %s", ErrMissing, r.name)
		}
		if !common.IsHexAddress(r.value) {
			return fmt.Errorf("invalid address %q for %s", r.value, r.name)
		}
	}
	if d.Stablecoin != "" && !common.IsHexAddress(d.Stablecoin) {
		return fmt.Errorf("invalid address %q for stablecoin", d.Stablecoin)
	}
	switch d.DestinationStandard {
	case "", "erc1155", "erc20":
	default:
		return fmt.Errorf("unknown token standard %q", d.DestinationStandard)
	}
	return nil
}

// Validate checks the redeem settings for values the flow cannot use.
func (r RedeemSettings) Validate() error {
	if r.Strategy != "approve" && r.Strategy != "permit" {
		return fmt.Errorf("unknown strategy %q (want approve or permit)", r.Strategy)
	}
	if r.ApproveMode != "balance" && r.ApproveMode != "fixed" {
		return fmt.Errorf("unknown approve_mode %q (want balance or fixed)", r.ApproveMode)
	}
	if r.ApproveUnits <= 0 {
		return fmt.Errorf("approve_units must be positive")
	}
	if r.ThresholdUnits <= 0 {
		return fmt.Errorf("threshold_units must be positive")
	}
	if r.TokenDecimals < 0 || r.TokenDecimals > 77 {
		return fmt.Errorf("token_decimals out of range: %d", r.TokenDecimals)
	}
	if r.PermitWindowSec <= 0 || r.PermitWindowSec > MaxPermitWindowSec {
		return fmt.Errorf("permit_window_sec must be between 1 and %d", MaxPermitWindowSec)
	}
	if !fitsUint256(r.ApproveUnits, r.TokenDecimals) {
		return fmt.Errorf("approve_units * 10^%d exceeds uint256", r.TokenDecimals)
	}
	if !fitsUint256(r.ThresholdUnits, r.TokenDecimals) {
		return fmt.Errorf("threshold_units * 10^%d exceeds uint256", r.TokenDecimals)
	}
	return nil
}

// fitsUint256 reports whether units whole tokens fit a uint256 in base units.
func fitsUint256(units int64, decimals int) bool {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	return new(big.Int).Mul(big.NewInt(units), scale).Cmp(math.MaxBig256) <= 0
}

// PermitWindow returns the permit validity window.
func (r RedeemSettings) PermitWindow() time.Duration {
	return time.Duration(r.PermitWindowSec) * time.Second
}

// Watch returns the liveness/refresh interval.
func (c *Config) Watch() time.Duration {
	if c.WatchInterval <= 0 {
		return defaultInterval * time.Second
	}
	return time.Duration(c.WatchInterval) * time.Second
}

// LoadSync reads sync.json.
func (c *Config) LoadSync() (*SyncConfig, error) {
	return loadJSON[SyncConfig](filepath.Join(c.configDir, syncFile))
}

// SaveSync writes sync.json.
func (c *Config) SaveSync(sc *SyncConfig) error {
	return saveJSON(filepath.Join(c.configDir, syncFile), sc)
}

// --- helpers ---

func setDefaults(v *viper.Viper) {
	v.SetDefault("default_network", defaultNetwork)
	v.SetDefault("default_wallet", "")
	v.SetDefault("network_mode", defaultMode)
	v.SetDefault("rpc_algorithm", defaultAlgorithm)
	v.SetDefault("provider_key", "")
	v.SetDefault("watch_interval", defaultInterval)

	v.SetDefault("redeem.strategy", defaultStrategy)
	v.SetDefault("redeem.approve_mode", defaultApprove)
	v.SetDefault("redeem.approve_units", DefaultApproveUnits)
	v.SetDefault("redeem.token_decimals", DefaultTokenDecimals)
	v.SetDefault("redeem.permit_window_sec", int64(DefaultPermitWindow/time.Second))
	v.SetDefault("redeem.permit_version", DefaultPermitVersion)
	v.SetDefault("redeem.threshold_units", DefaultRedeemThresholdUnits)
}

func loadJSON[T any](path string) (*T, error) {
	var zero T
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &zero, nil
	}
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func saveJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

package config

// Config holds all lsdredeem configuration.
type Config struct {
	DefaultNetwork string                `json:"default_network" mapstructure:"default_network"`
	DefaultWallet  string                `json:"default_wallet"  mapstructure:"default_wallet"`
	NetworkMode    string                `json:"network_mode"    mapstructure:"network_mode"`  // "mainnet" | "testnet"
	RPCAlgorithm   string                `json:"rpc_algorithm"   mapstructure:"rpc_algorithm"` // "fastest" | "round-robin" | "failover"
	ProviderKey    string                `json:"provider_key,omitempty" mapstructure:"provider_key"`
	WatchInterval  int                   `json:"watch_interval"  mapstructure:"watch_interval"` // seconds
	CustomRPCs     map[string][]string   `json:"custom_rpcs"     mapstructure:"custom_rpcs"`
	Contracts      map[string]Deployment `json:"contracts"       mapstructure:"contracts"` // keyed by network name
	Redeem         RedeemSettings        `json:"redeem"          mapstructure:"redeem"`

	// internal: config dir path used for Save()
	configDir string
	// provider key as read from config.json, before env overrides
	fileProviderKey string
}

// Deployment is the set of contract addresses used on one network.
type Deployment struct {
	RedeemableToken     string `json:"redeemable_token"     mapstructure:"redeemable_token"`
	DestinationToken    string `json:"destination_token"    mapstructure:"destination_token"`
	DestinationTokenID  string `json:"destination_token_id" mapstructure:"destination_token_id"` // decimal, erc1155 only
	DestinationStandard string `json:"destination_standard" mapstructure:"destination_standard"` // "erc1155" | "erc20"
	RedemptionHelper    string `json:"redemption_helper"    mapstructure:"redemption_helper"`
	Stablecoin          string `json:"stablecoin,omitempty" mapstructure:"stablecoin"`
}

// RedeemSettings are the tunables of the approve/redeem flow.
type RedeemSettings struct {
	Strategy        string `json:"strategy"          mapstructure:"strategy"`     // "approve" | "permit"
	ApproveMode     string `json:"approve_mode"      mapstructure:"approve_mode"` // "balance" | "fixed"
	ApproveUnits    int64  `json:"approve_units"     mapstructure:"approve_units"`
	TokenDecimals   int    `json:"token_decimals"    mapstructure:"token_decimals"`
	PermitWindowSec int64  `json:"permit_window_sec" mapstructure:"permit_window_sec"`
	PermitVersion   string `json:"permit_version"    mapstructure:"permit_version"`
	ThresholdUnits  int64  `json:"threshold_units"   mapstructure:"threshold_units"`
}

// SyncConfig is the structure of sync.json.
type SyncConfig struct {
	Source     string `json:"source"`
	LastSynced string `json:"last_synced"`
}

package e2e_test

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var binaryPath string

func TestMain(m *testing.M) {
	// Build the binary before all E2E tests.
	tmp, err := os.MkdirTemp("", "lsdredeem-e2e-test")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(tmp)

	binaryPath = filepath.Join(tmp, "lsdredeem")
	// Build from the module root (two levels up from test/e2e/).
	moduleRoot, err := filepath.Abs(filepath.Join("..", ".."))
	if err != nil {
		panic(err)
	}
	cmd := exec.Command("go", "build", "-o", binaryPath, ".")
	cmd.Dir = moduleRoot
	if out, err := cmd.CombinedOutput(); err != nil {
		panic("build failed: " + string(out))
	}

	os.Exit(m.Run())
}

func runCLI(t *testing.T, configDir string, args ...string) (string, error) {
	t.Helper()
	cmd := exec.Command(binaryPath, args...)
	cmd.Env = append(os.Environ(),
		"LSDREDEEM_CONFIG_DIR="+configDir,
		"INFURA_ID=",
		"LSDREDEEM_PROVIDER_KEY=",
	)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

func TestVersionFlag(t *testing.T) {
	dir := t.TempDir()
	out, err := runCLI(t, dir, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "lsdredeem")
	assert.Contains(t, out, "1.0.0")
}

func TestHelpCommand(t *testing.T) {
	dir := t.TempDir()
	out, err := runCLI(t, dir, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "lsdredeem")
	assert.Contains(t, out, "Redeem liquid staked tokens")
	for _, c := range []string{"connect", "approve", "redeem", "balance", "wallet", "sync"} {
		assert.Contains(t, strings.ToLower(out), c)
	}
	assert.Contains(t, out, "--testnet")
	assert.Contains(t, out, "--mainnet")
}

func TestNetworkList(t *testing.T) {
	dir := t.TempDir()
	out, err := runCLI(t, dir, "network", "list")
	require.NoError(t, err)
	assert.Contains(t, strings.ToLower(out), "ethereum")

	out, err = runCLI(t, dir, "--testnet", "network", "list")
	require.NoError(t, err)
	assert.Contains(t, strings.ToLower(out), "sepolia")
}

func TestConfigShow(t *testing.T) {
	dir := t.TempDir()
	out, err := runCLI(t, dir, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "default_network")
	assert.Contains(t, out, "redeem")
	assert.Contains(t, out, "approve_mode")
}

func TestConfigSetNetworkTestnetSlug(t *testing.T) {
	dir := t.TempDir()
	_, err := runCLI(t, dir, "config", "set-network", "sepolia")
	require.NoError(t, err)

	out, err := runCLI(t, dir, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, `"network_mode": "testnet"`)
}

func TestConfigSetNetworkUnknown(t *testing.T) {
	dir := t.TempDir()
	_, err := runCLI(t, dir, "config", "set-network", "atlantis")
	assert.Error(t, err)
}

func TestConfigSetContract(t *testing.T) {
	dir := t.TempDir()
	_, err := runCLI(t, dir, "config", "set-contract", "sepolia", "redeemable_token", "0x00000000000000000000000000000000000000a1")
	require.NoError(t, err)

	out, err := runCLI(t, dir, "config", "contracts")
	require.NoError(t, err)
	assert.Contains(t, out, "sepolia")
	assert.Contains(t, out, "destination_token")
}

func TestConfigSetContractInvalidAddress(t *testing.T) {
	dir := t.TempDir()
	_, err := runCLI(t, dir, "config", "set-contract", "sepolia", "redeemable_token", "0x123")
	assert.Error(t, err)
}

func TestConfigSetStrategy(t *testing.T) {
	dir := t.TempDir()
	_, err := runCLI(t, dir, "config", "set-strategy", "permit")
	require.NoError(t, err)

	out, _ := runCLI(t, dir, "config", "show")
	assert.Contains(t, out, `"strategy": "permit"`)

	_, err = runCLI(t, dir, "config", "set-strategy", "yolo")
	assert.Error(t, err)
}

func TestWalletAddAndList(t *testing.T) {
	dir := t.TempDir()

	_, err := runCLI(t, dir, "wallet", "add", "watcher", "0x1234567890abcdef1234567890abcdef12345678")
	require.NoError(t, err)

	out, err := runCLI(t, dir, "wallet", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "watcher")
	assert.Contains(t, out, "0x1234")
}

func TestWalletRemove(t *testing.T) {
	dir := t.TempDir()

	runCLI(t, dir, "wallet", "add", "w1", "0x1234567890abcdef1234567890abcdef12345678") //nolint:errcheck
	_, err := runCLI(t, dir, "--yes", "wallet", "remove", "w1")
	require.NoError(t, err)

	out, err := runCLI(t, dir, "wallet", "list")
	require.NoError(t, err)
	assert.NotContains(t, out, "w1")
}

func TestDisconnectWhenNotConnected(t *testing.T) {
	dir := t.TempDir()
	out, err := runCLI(t, dir, "disconnect")
	require.NoError(t, err)
	assert.Contains(t, out, "Not connected")
}

func TestRedeemRejectsBadAmount(t *testing.T) {
	dir := t.TempDir()
	out, err := runCLI(t, dir, "redeem", "1.5")
	assert.Error(t, err)
	assert.Contains(t, out, "base units")
}

func TestSyncFromLocalManifest(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(t.TempDir(), "deployments.yaml")
	require.NoError(t, os.WriteFile(manifest, []byte(`networks:
  sepolia:
    redeemable_token: "0x00000000000000000000000000000000000000a1"
    destination_token: "0x00000000000000000000000000000000000000a2"
    redemption_helper: "0x00000000000000000000000000000000000000a3"
`), 0o600))

	_, err := runCLI(t, dir, "sync", "set-source", manifest)
	require.NoError(t, err)
	out, err := runCLI(t, dir, "sync", "run")
	require.NoError(t, err)
	assert.Contains(t, out, "updated sepolia")

	out, err = runCLI(t, dir, "config", "contracts")
	require.NoError(t, err)
	assert.Contains(t, out, "complete")
}

func TestSyncRunWithoutSource(t *testing.T) {
	dir := t.TempDir()
	_, err := runCLI(t, dir, "sync", "run")
	assert.Error(t, err)
}

func TestAbiList(t *testing.T) {
	dir := t.TempDir()
	out, err := runCLI(t, dir, "abi", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "erc20permit")
}

func TestTestnetMainnetMutuallyExclusive(t *testing.T) {
	dir := t.TempDir()
	_, err := runCLI(t, dir, "--testnet", "--mainnet", "config", "show")
	assert.Error(t, err)
}

func TestUnknownCommandShowsError(t *testing.T) {
	dir := t.TempDir()
	out, _ := runCLI(t, dir, "unknowncommand")
	assert.Contains(t, strings.ToLower(out), "unknown command")
}

func TestRedeemHelpShowsStrategyFlag(t *testing.T) {
	dir := t.TempDir()
	out, err := runCLI(t, dir, "redeem", "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "--strategy")
	assert.Contains(t, out, "--testnet")
}

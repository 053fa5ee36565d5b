// Package sync pulls contract deployments from a remote or local manifest
// into the per-network contract config.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Mohsinsiddi/lsdredeem/internal/config"
	"github.com/Mohsinsiddi/lsdredeem/internal/logging"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ErrNoSource is returned by Run when no manifest source is configured.
var ErrNoSource = errors.New("no sync source configured")

// Manifest is a deployments file. Networks lists whole deployments keyed by
// network slug. Contracts lists single addresses keyed by field then
// network, and is merged on top.
type Manifest struct {
	Networks  map[string]ManifestDeployment       `json:"networks"  yaml:"networks"`
	Contracts map[string]map[string]ManifestEntry `json:"contracts" yaml:"contracts"`
}

// ManifestDeployment mirrors config.Deployment.
type ManifestDeployment struct {
	RedeemableToken     string `json:"redeemable_token"     yaml:"redeemable_token"`
	DestinationToken    string `json:"destination_token"    yaml:"destination_token"`
	DestinationTokenID  string `json:"destination_token_id" yaml:"destination_token_id"`
	DestinationStandard string `json:"destination_standard" yaml:"destination_standard"`
	RedemptionHelper    string `json:"redemption_helper"    yaml:"redemption_helper"`
	Stablecoin          string `json:"stablecoin"           yaml:"stablecoin"`
}

// ManifestEntry is a single contract deployment entry.
type ManifestEntry struct {
	Address string `json:"address" yaml:"address"`
}

// Report lists what a Run changed.
type Report struct {
	Updated []string
	Skipped map[string]error
}

// Syncer fetches manifests and writes them into the config.
type Syncer struct {
	cfg    *config.Config
	client *http.Client
	log    *zap.Logger
}

// New creates a new Syncer.
func New(cfg *config.Config, log *zap.Logger) *Syncer {
	log = logging.OrNop(log)
	return &Syncer{
		cfg:    cfg,
		client: &http.Client{Timeout: 15 * time.Second},
		log:    log,
	}
}

// SetSource sets the manifest URL or file path.
func (s *Syncer) SetSource(src string) error {
	syncCfg, err := s.cfg.LoadSync()
	if err != nil {
		return err
	}
	syncCfg.Source = src
	return s.cfg.SaveSync(syncCfg)
}

// Run fetches the manifest from the configured source and replaces the
// deployment of every network it names. Networks whose deployment does not
// validate are skipped and keep their previous contracts.
func (s *Syncer) Run(ctx context.Context) (Report, error) {
	syncCfg, err := s.cfg.LoadSync()
	if err != nil {
		return Report{}, fmt.Errorf("loading sync config: %w", err)
	}
	if syncCfg.Source == "" {
		return Report{}, fmt.Errorf("%w: run lsdredeem sync set-source <url>", ErrNoSource)
	}

	m, err := s.load(ctx, syncCfg.Source)
	if err != nil {
		return Report{}, fmt.Errorf("fetching manifest: %w", err)
	}

	rep := Report{Skipped: make(map[string]error)}
	for network, d := range m.deployments() {
		if err := d.Validate(); err != nil {
			s.log.Warn("skipping network", zap.String("network", network), zap.Error(err))
			rep.Skipped[network] = err
			continue
		}
		if s.cfg.Contracts == nil {
			s.cfg.Contracts = make(map[string]config.Deployment)
		}
		s.cfg.Contracts[network] = d
		rep.Updated = append(rep.Updated, network)
	}
	sort.Strings(rep.Updated)
	if len(rep.Updated) == 0 {
		return rep, fmt.Errorf("manifest %s has no usable deployments", syncCfg.Source)
	}

	if err := s.cfg.Save(); err != nil {
		return rep, fmt.Errorf("saving contracts: %w", err)
	}
	syncCfg.LastSynced = time.Now().UTC().Format(time.RFC3339)
	if err := s.cfg.SaveSync(syncCfg); err != nil {
		return rep, err
	}
	s.log.Info("synced deployments", zap.String("source", syncCfg.Source), zap.Strings("networks", rep.Updated))
	return rep, nil
}

// Watch runs Syncer.Run on a ticker until ctx is cancelled. Only the first
// run's error is returned; later failures are logged.
func (s *Syncer) Watch(ctx context.Context, interval time.Duration) error {
	if _, err := s.Run(ctx); err != nil {
		return err
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Run(ctx); err != nil {
				s.log.Warn("sync failed", zap.Error(err))
			}
		}
	}
}

// deployments flattens both manifest sections into config deployments.
func (m *Manifest) deployments() map[string]config.Deployment {
	out := make(map[string]config.Deployment)
	for network, d := range m.Networks {
		out[strings.ToLower(network)] = config.Deployment{
			RedeemableToken:     d.RedeemableToken,
			DestinationToken:    d.DestinationToken,
			DestinationTokenID:  d.DestinationTokenID,
			DestinationStandard: d.DestinationStandard,
			RedemptionHelper:    d.RedemptionHelper,
			Stablecoin:          d.Stablecoin,
		}
	}
	for field, networks := range m.Contracts {
		for network, e := range networks {
			network = strings.ToLower(network)
			d := out[network]
			switch field {
			case "redeemable_token":
				d.RedeemableToken = e.Address
			case "destination_token":
				d.DestinationToken = e.Address
			case "redemption_helper":
				d.RedemptionHelper = e.Address
			case "stablecoin":
				d.Stablecoin = e.Address
			default:
				continue
			}
			out[network] = d
		}
	}
	for network, d := range out {
		if d.DestinationStandard == "" {
			d.DestinationStandard = "erc1155"
		}
		if d.DestinationTokenID == "" {
			d.DestinationTokenID = config.DefaultDestinationTokenID
		}
		out[network] = d
	}
	return out
}

func (s *Syncer) load(ctx context.Context, src string) (*Manifest, error) {
	if !strings.HasPrefix(src, "http://") && !strings.HasPrefix(src, "https://") {
		path := strings.TrimPrefix(src, "file://")
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return parseManifest(data, isYAML(path, ""))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return parseManifest(body, isYAML(req.URL.Path, resp.Header.Get("Content-Type")))
}

func isYAML(path, contentType string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return strings.Contains(contentType, "yaml")
}

func parseManifest(data []byte, asYAML bool) (*Manifest, error) {
	var m Manifest
	var err error
	if asYAML {
		err = yaml.Unmarshal(data, &m)
	} else {
		err = json.Unmarshal(data, &m)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	return &m, nil
}

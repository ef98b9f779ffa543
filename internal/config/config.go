// Package config loads service configuration from flags and environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ardanlabs/conf"

	"nem-cosigner/internal/domain"
	"nem-cosigner/internal/nem"
)

// EnvPrefix prefixes every environment variable, e.g. NEM_COSIGNER_ACCOUNT_MULTISIG_ADDRESS.
const EnvPrefix = "NEM_COSIGNER"

// DefaultRESTPort is the NIS REST port.
const DefaultRESTPort = 7890

// Store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendBadger   = "badger"
)

// defaultNodes are public NIS nodes per network.
var defaultNodes = map[nem.Network][]string{
	nem.Mainnet: {
		"hugealice.nem.ninja:7890",
		"alice2.nem.ninja:7890",
		"alice3.nem.ninja:7890",
		"alice4.nem.ninja:7890",
		"alice5.nem.ninja:7890",
	},
	nem.Testnet: {
		"hugetestalice.nem.ninja:7890",
		"hugetestalice2.nem.ninja:7890",
		"medalice2.nem.ninja:7890",
	},
}

// Config is the service configuration.
type Config struct {
	conf.Version
	Network struct {
		Mode   string `conf:"default:testnet,help:mainnet or testnet"`
		Nodes  string `conf:"optional,help:comma-separated host[:port] list; empty uses the network's public nodes"`
		WSPort int    `conf:"default:7778"`
	}
	Account struct {
		MultisigAddress string `conf:"required"`
		CosignerAddress string `conf:"optional"`
		PrivateKey      string `conf:"optional,mask"`
		AllowList       string `conf:"optional,help:comma-separated cosignatory public keys"`
	}
	Cosign struct {
		Capabilities string        `conf:"default:all,help:comma list of read sign tip or all"`
		Verification string        `conf:"default:strict,help:strict or relaxed"`
		Ceiling      float64       `conf:"default:0,help:max XEM co-signed per window; 0 disables"`
		LimitWindow  time.Duration `conf:"default:24h,help:limit window; 0 sums all signatures ever"`
		RejectionTTL time.Duration `conf:"default:10m"`
		QueueSize    int           `conf:"default:256"`
	}
	Monitor struct {
		Module        string        `conf:"default:monitor"`
		CheckInterval time.Duration `conf:"default:10m"`
		Threshold     time.Duration `conf:"default:5m"`
		SettleDelay   time.Duration `conf:"default:3s"`
		PollInterval  time.Duration `conf:"default:30s"`
	}
	RPC struct {
		Timeout    time.Duration `conf:"default:30s"`
		MaxRetries int           `conf:"default:3"`
	}
	Store struct {
		Backend     string `conf:"default:badger,help:badger postgres or memory (memory is for tests only)"`
		PostgresDSN string `conf:"optional,mask"`
		BadgerPath  string `conf:"default:data/records"`
		Migrate     bool   `conf:"default:true"`
	}
	Log struct {
		Level string `conf:"default:info"`
		JSON  bool   `conf:"default:false"`
		File  string `conf:"optional"`
	}
	Server struct {
		MetricsAddr string `conf:"default:0.0.0.0:9102"`
	}
}

// Load parses args and the environment into a Config and validates it.
// conf.ErrHelpWanted and conf.ErrVersionWanted are returned unwrapped.
func Load(args []string) (*Config, error) {
	var cfg Config
	cfg.Version.Desc = "NEM multisig co-signing service"
	if err := conf.Parse(args, EnvPrefix, &cfg); err != nil {
		if errors.Is(err, conf.ErrHelpWanted) || errors.Is(err, conf.ErrVersionWanted) {
			return &cfg, err
		}
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Usage returns the help text.
func Usage(cfg *Config) (string, error) {
	return conf.Usage(EnvPrefix, cfg)
}

// VersionString returns the version text.
func VersionString(cfg *Config) (string, error) {
	return conf.VersionString(EnvPrefix, cfg)
}

// String renders the config with secrets masked.
func (c *Config) String() string {
	out, err := conf.String(c)
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return out
}

// Validate checks the values conf cannot.
func (c *Config) Validate() error {
	network, err := c.NetworkID()
	if err != nil {
		return err
	}
	if !nem.IsValidAddress(nem.NormalizeAddress(c.Account.MultisigAddress), network) {
		return fmt.Errorf("multisig address %q is not a valid %s address", c.Account.MultisigAddress, network)
	}
	if c.Account.CosignerAddress != "" && !nem.IsValidAddress(nem.NormalizeAddress(c.Account.CosignerAddress), network) {
		return fmt.Errorf("cosigner address %q is not a valid %s address", c.Account.CosignerAddress, network)
	}

	caps, err := c.Capabilities()
	if err != nil {
		return err
	}
	if caps.Has(CapSign) {
		if c.Account.PrivateKey == "" {
			return errors.New("sign capability requires a private key")
		}
		if len(c.AllowList()) == 0 {
			return errors.New("sign capability requires a non-empty cosignatory allow-list")
		}
	}

	switch c.Cosign.Verification {
	case "strict", "relaxed":
	default:
		return fmt.Errorf("unknown verification mode %q", c.Cosign.Verification)
	}
	if c.Cosign.Ceiling < 0 {
		return fmt.Errorf("ceiling must not be negative, got %v", c.Cosign.Ceiling)
	}
	if c.Cosign.LimitWindow < 0 {
		return fmt.Errorf("limit window must not be negative, got %v", c.Cosign.LimitWindow)
	}

	if _, err := c.Endpoints(); err != nil {
		return err
	}

	switch c.Store.Backend {
	case BackendMemory:
	case BackendBadger:
		if strings.TrimSpace(c.Store.BadgerPath) == "" {
			return errors.New("badger backend requires a path")
		}
	case BackendPostgres:
		if c.Store.PostgresDSN == "" {
			return errors.New("postgres backend requires a DSN")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	if c.Monitor.Threshold <= 0 || c.Monitor.CheckInterval <= 0 || c.Monitor.PollInterval <= 0 {
		return errors.New("monitor intervals must be positive")
	}
	return nil
}

// NetworkID resolves Network.Mode.
func (c *Config) NetworkID() (nem.Network, error) {
	switch n, err := nem.ParseNetwork(c.Network.Mode); {
	case err != nil:
		return 0, err
	case n != nem.Mainnet && n != nem.Testnet:
		return 0, fmt.Errorf("network mode must be mainnet or testnet, got %q", c.Network.Mode)
	default:
		return n, nil
	}
}

// Endpoints returns the configured candidate nodes, or the network defaults.
func (c *Config) Endpoints() ([]domain.Endpoint, error) {
	network, err := c.NetworkID()
	if err != nil {
		return nil, err
	}
	nodes := splitList(c.Network.Nodes)
	if len(nodes) == 0 {
		nodes = defaultNodes[network]
	}

	endpoints := make([]domain.Endpoint, 0, len(nodes))
	for _, n := range nodes {
		e, err := domain.ParseEndpoint(n, DefaultRESTPort)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", n, err)
		}
		e.WSPort = c.Network.WSPort
		endpoints = append(endpoints, e)
	}
	return endpoints, nil
}

// AllowList returns the configured cosignatory public keys.
func (c *Config) AllowList() []string {
	return splitList(c.Account.AllowList)
}

// Capabilities parses Cosign.Capabilities.
func (c *Config) Capabilities() (Capabilities, error) {
	return ParseCapabilities(c.Cosign.Capabilities)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

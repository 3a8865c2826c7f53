package agentnode

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// startupProfile is the optional TOML overlay for flag defaults, in the
// style of xerrien-agent-mesh/main.go's startupProfile: a non-empty profile
// value overrides the matching flag, except agent_name, which only fills in
// an empty -name.
type startupProfile struct {
	AgentName      string   `toml:"agent_name"`
	TeeProvider    string   `toml:"tee_provider"`
	StoragePath    string   `toml:"storage_path"`
	RPCURL         string   `toml:"rpc_url"`
	CoordinatorURL string   `toml:"coordinator_url"`
	Endpoint       string   `toml:"endpoint"`
	DockerImage    string   `toml:"docker_image"`
	ListenAddr     string   `toml:"listen_addr"`
	QuoteURL       string   `toml:"quote_url"`
	PubkeyPath     string   `toml:"pubkey_path"`
	SignerURL      string   `toml:"signer_url"`
}

// Config is the fully-resolved boot configuration for one Agent process,
// gathering the environment inputs of spec §6.
type Config struct {
	AgentName      string
	TeeProvider    string // "mock" or "secretvm"
	StoragePath    string
	RPCURL         string
	CoordinatorURL string
	Endpoint       string
	DockerImage    string
	ListenAddr     string
	QuoteURL       string
	PubkeyPath     string
	SignerURL      string
}

// LoadConfig parses command-line flags (and an optional -config TOML
// overlay) into a Config.
func LoadConfig(args []string) (*Config, error) {
	fs := flag.NewFlagSet("agent", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional path to a startup profile TOML")
	agentName := fs.String("name", "", "agent name, unique within the Coordinator")
	teeProvider := fs.String("tee", "mock", "TEE provider selector: mock or secretvm")
	storagePath := fs.String("storage", "agent-state.json", "path to the persisted identity blob")
	rpcURL := fs.String("rpc", "", "Solana RPC URL")
	coordinatorURL := fs.String("coordinator", "http://127.0.0.1:8080", "Coordinator base URL")
	endpoint := fs.String("endpoint", "", "externally reachable base URL for this agent (loopback substituted by the Coordinator if empty)")
	dockerImage := fs.String("image", "proofofflip-agent:dev", "docker image identifier recorded in the birth certificate")
	listenAddr := fs.String("listen", ":8081", "HTTP listen address")
	quoteURL := fs.String("quote-url", "", "hardware attestation page URL (secretvm provider only)")
	pubkeyPath := fs.String("pubkey-path", "", "mounted PEM path for the enclave public key (secretvm provider only)")
	signerURL := fs.String("signer-url", "http://127.0.0.1:29343/sign", "loopback signing service URL (secretvm provider only)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := &Config{
		AgentName:      *agentName,
		TeeProvider:    *teeProvider,
		StoragePath:    *storagePath,
		RPCURL:         *rpcURL,
		CoordinatorURL: *coordinatorURL,
		Endpoint:       *endpoint,
		DockerImage:    *dockerImage,
		ListenAddr:     *listenAddr,
		QuoteURL:       *quoteURL,
		PubkeyPath:     *pubkeyPath,
		SignerURL:      *signerURL,
	}

	if *configPath != "" {
		profile, err := loadStartupProfile(*configPath)
		if err != nil {
			return nil, err
		}
		applyStartupProfile(cfg, profile)
	}

	if cfg.AgentName == "" {
		return nil, fmt.Errorf("agentnode: -name (or agent_name in the config profile) is required")
	}
	return cfg, nil
}

func loadStartupProfile(path string) (*startupProfile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("agentnode: reading startup profile %s: %w", path, err)
	}
	var profile startupProfile
	if err := toml.Unmarshal(b, &profile); err != nil {
		return nil, fmt.Errorf("agentnode: parsing startup profile %s: %w", path, err)
	}
	return &profile, nil
}

func applyStartupProfile(cfg *Config, profile *startupProfile) {
	if cfg.AgentName == "" {
		cfg.AgentName = profile.AgentName
	}
	if profile.TeeProvider != "" {
		cfg.TeeProvider = profile.TeeProvider
	}
	if profile.StoragePath != "" {
		cfg.StoragePath = profile.StoragePath
	}
	if profile.RPCURL != "" {
		cfg.RPCURL = profile.RPCURL
	}
	if profile.CoordinatorURL != "" {
		cfg.CoordinatorURL = profile.CoordinatorURL
	}
	if profile.Endpoint != "" {
		cfg.Endpoint = profile.Endpoint
	}
	if profile.DockerImage != "" {
		cfg.DockerImage = profile.DockerImage
	}
	if profile.ListenAddr != "" {
		cfg.ListenAddr = profile.ListenAddr
	}
	if profile.QuoteURL != "" {
		cfg.QuoteURL = profile.QuoteURL
	}
	if profile.PubkeyPath != "" {
		cfg.PubkeyPath = profile.PubkeyPath
	}
	if profile.SignerURL != "" {
		cfg.SignerURL = profile.SignerURL
	}
}

// IsLoopback reports whether endpoint is empty or points at loopback,
// spec §4.5 step 1's trigger for the Coordinator substituting the request
// source IP.
func IsLoopback(endpoint string) bool {
	if endpoint == "" {
		return true
	}
	for _, h := range []string{"127.0.0.1", "localhost", "::1", "0.0.0.0"} {
		if strings.Contains(endpoint, h) {
			return true
		}
	}
	return false
}

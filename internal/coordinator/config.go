package coordinator

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"proofofflip/internal/attestation"
)

type startupProfile struct {
	ListenAddr      string   `toml:"listen_addr"`
	TeeProvider     string   `toml:"tee_provider"`
	WalletPath      string   `toml:"wallet_path"`
	IdentityPath    string   `toml:"identity_path"`
	RPCURL          string   `toml:"rpc_url"`
	DockerImage     string   `toml:"docker_image"`
	AllowlistMode   string   `toml:"allowlist_mode"`
	Allowlist       []string `toml:"allowlist"`
	ParserURL       string   `toml:"parser_url"`
	VMInventoryCmd  string   `toml:"vm_inventory_command"`
	QuoteURL        string   `toml:"quote_url"`
	PubkeyPath      string   `toml:"pubkey_path"`
	SignerURL       string   `toml:"signer_url"`
}

// Config is the fully-resolved boot configuration for the Coordinator
// process, gathering the environment inputs of spec §6.
type Config struct {
	ListenAddr     string
	TeeProvider    string
	WalletPath     string
	IdentityPath   string
	RPCURL         string
	DockerImage    string
	AllowlistMode  attestation.Mode
	Allowlist      []string
	ParserURL      string
	VMInventoryCmd string
	QuoteURL       string
	PubkeyPath     string
	SignerURL      string
}

func LoadConfig(args []string) (*Config, error) {
	fs := flag.NewFlagSet("coordinator", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional path to a startup profile TOML")
	listenAddr := fs.String("listen", ":8080", "HTTP listen address")
	teeProvider := fs.String("tee", "mock", "TEE provider selector: mock or secretvm")
	walletPath := fs.String("wallet", "dashboard-wallet.json", "path to the Coordinator's wallet blob")
	identityPath := fs.String("identity", "dashboard-identity.json", "path to the Coordinator's identity blob")
	rpcURL := fs.String("rpc", "", "Solana RPC URL")
	dockerImage := fs.String("image", "proofofflip-coordinator:dev", "docker image identifier recorded in the Coordinator's own birth certificate")
	allowlistMode := fs.String("allowlist-mode", "tofu", "RTMR3 allowlist mode: explicit, tofu, or open")
	allowlist := fs.String("allowlist", "", "comma-separated RTMR3 allowlist (explicit mode)")
	parserURL := fs.String("parser-url", "", "external quote-parser service URL")
	vmInventoryCmd := fs.String("vm-inventory-command", "", "shell command that exits 0 if a named agent's VM still exists")
	quoteURL := fs.String("quote-url", "", "hardware attestation page URL (secretvm provider only)")
	pubkeyPath := fs.String("pubkey-path", "", "mounted PEM path for the enclave public key (secretvm provider only)")
	signerURL := fs.String("signer-url", "http://127.0.0.1:29343/sign", "loopback signing service URL (secretvm provider only)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := &Config{
		ListenAddr:     *listenAddr,
		TeeProvider:    *teeProvider,
		WalletPath:     *walletPath,
		IdentityPath:   *identityPath,
		RPCURL:         *rpcURL,
		DockerImage:    *dockerImage,
		AllowlistMode:  attestation.Mode(*allowlistMode),
		ParserURL:      *parserURL,
		VMInventoryCmd: *vmInventoryCmd,
		QuoteURL:       *quoteURL,
		PubkeyPath:     *pubkeyPath,
		SignerURL:      *signerURL,
	}
	if *allowlist != "" {
		cfg.Allowlist = strings.Split(*allowlist, ",")
	}

	if *configPath != "" {
		profile, err := loadStartupProfile(*configPath)
		if err != nil {
			return nil, err
		}
		applyStartupProfile(cfg, profile)
	}
	return cfg, nil
}

func loadStartupProfile(path string) (*startupProfile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("coordinator: reading startup profile %s: %w", path, err)
	}
	var profile startupProfile
	if err := toml.Unmarshal(b, &profile); err != nil {
		return nil, fmt.Errorf("coordinator: parsing startup profile %s: %w", path, err)
	}
	return &profile, nil
}

func applyStartupProfile(cfg *Config, profile *startupProfile) {
	if profile.ListenAddr != "" {
		cfg.ListenAddr = profile.ListenAddr
	}
	if profile.TeeProvider != "" {
		cfg.TeeProvider = profile.TeeProvider
	}
	if profile.WalletPath != "" {
		cfg.WalletPath = profile.WalletPath
	}
	if profile.IdentityPath != "" {
		cfg.IdentityPath = profile.IdentityPath
	}
	if profile.RPCURL != "" {
		cfg.RPCURL = profile.RPCURL
	}
	if profile.DockerImage != "" {
		cfg.DockerImage = profile.DockerImage
	}
	if profile.AllowlistMode != "" {
		cfg.AllowlistMode = attestation.Mode(profile.AllowlistMode)
	}
	if len(profile.Allowlist) > 0 {
		cfg.Allowlist = profile.Allowlist
	}
	if profile.ParserURL != "" {
		cfg.ParserURL = profile.ParserURL
	}
	if profile.VMInventoryCmd != "" {
		cfg.VMInventoryCmd = profile.VMInventoryCmd
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

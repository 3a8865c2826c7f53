package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"proofofflip/internal/attestation"
	"proofofflip/internal/chain"
	"proofofflip/internal/coordinator"
	"proofofflip/internal/teeprovider"
	"proofofflip/internal/vminventory"
)

const coordinatorShutdownTimeout = 5 * time.Second

func main() {
	cfg, err := coordinator.LoadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fmt.Printf("Starting ProofOfFlip Coordinator on %s\n", cfg.ListenAddr)

	var provider teeprovider.Provider
	switch cfg.TeeProvider {
	case "mock", "":
		provider = teeprovider.NewMockProvider("coordinator")
	case "secretvm":
		provider = teeprovider.NewHardwareProvider(cfg.QuoteURL, cfg.PubkeyPath, cfg.SignerURL)
	default:
		log.Fatalf("coordinator: unknown -tee provider %q", cfg.TeeProvider)
	}

	var chainClient chain.Client
	if cfg.RPCURL == "" {
		fmt.Println("No -rpc URL given, running against an in-memory mock chain")
		chainClient = chain.NewMockClient()
	} else {
		rpcClient, err := chain.NewRPCClient(context.Background(), cfg.RPCURL)
		if err != nil {
			log.Fatalf("coordinator: connecting to Solana RPC: %v", err)
		}
		chainClient = rpcClient
	}

	parser := attestation.NewCompositeParser(cfg.ParserURL)
	allowlist := attestation.NewAllowlist(cfg.AllowlistMode, cfg.Allowlist)
	vmChecker := vminventory.NewCommandChecker(cfg.VMInventoryCmd, 0)

	c := coordinator.New(cfg, provider, chainClient, parser, allowlist, vmChecker)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := c.Boot(ctx); err != nil {
		log.Fatalf("coordinator: boot failed: %v", err)
	}

	go func() {
		if err := c.Run(ctx); err != nil {
			log.Fatalf("coordinator: run failed: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), coordinatorShutdownTimeout)
	defer shutdownCancel()
	if err := c.Shutdown(shutdownCtx); err != nil {
		fmt.Printf("coordinator: shutdown error: %v\n", err)
	}
	fmt.Println("Coordinator stopped.")
}

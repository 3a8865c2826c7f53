package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"proofofflip/internal/agentnode"
	"proofofflip/internal/chain"
	"proofofflip/internal/teeprovider"
)

const agentShutdownTimeout = 5 * time.Second

func main() {
	cfg, err := agentnode.LoadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fmt.Printf("Starting ProofOfFlip agent %q\n", cfg.AgentName)
	fmt.Printf("Storage: %s\n", cfg.StoragePath)
	fmt.Printf("Coordinator: %s\n", cfg.CoordinatorURL)

	var provider teeprovider.Provider
	switch cfg.TeeProvider {
	case "mock", "":
		provider = teeprovider.NewMockProvider(cfg.AgentName)
	case "secretvm":
		provider = teeprovider.NewHardwareProvider(cfg.QuoteURL, cfg.PubkeyPath, cfg.SignerURL)
	default:
		log.Fatalf("agent: unknown -tee provider %q", cfg.TeeProvider)
	}

	var chainClient chain.Client
	if cfg.RPCURL == "" {
		fmt.Println("No -rpc URL given, running against an in-memory mock chain")
		chainClient = chain.NewMockClient()
	} else {
		rpcClient, err := chain.NewRPCClient(context.Background(), cfg.RPCURL)
		if err != nil {
			log.Fatalf("agent: connecting to Solana RPC: %v", err)
		}
		chainClient = rpcClient
	}

	node := agentnode.New(cfg, provider, chainClient)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := node.Boot(ctx); err != nil {
		log.Fatalf("agent: boot failed: %v", err)
	}
	fmt.Printf("Agent %s running, wallet %s\n", cfg.AgentName, node.Wallet().Address)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), agentShutdownTimeout)
	defer shutdownCancel()
	if err := node.Shutdown(shutdownCtx); err != nil {
		fmt.Printf("agent: shutdown error: %v\n", err)
	}
	fmt.Println("Agent stopped.")
}

package main

import (
	"flag"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/cometbft/cometbft/abci/server"
	"github.com/ethereum/go-ethereum/common"

	"agentcasino/internal/app"
	"agentcasino/internal/wei"
)

func main() {
	var (
		home      = flag.String("home", ".acas", "app home directory (state will be stored under <home>/app)")
		addr      = flag.String("addr", "tcp://127.0.0.1:26658", "ABCI listen address")
		transport = flag.String("transport", "socket", "ABCI transport (socket|grpc)")

		casino   = flag.String("casino", "", "casino account address (genesis only; persisted state wins)")
		exposure = flag.String("max-exposure", "100", "bankroll exposure cap in ether")
		chainID  = flag.Int64("chain-id", 1337, "EIP-712 chain id")
		contract = flag.String("contract", "", "EIP-712 verifying contract address")
	)
	flag.Parse()

	cfg := app.Config{ChainID: big.NewInt(*chainID)}
	if *casino != "" {
		if !common.IsHexAddress(*casino) {
			_, _ = fmt.Fprintf(os.Stderr, "invalid -casino address: %s\n", *casino)
			os.Exit(1)
		}
		cfg.Casino = common.HexToAddress(*casino)
	}
	if *contract != "" {
		if !common.IsHexAddress(*contract) {
			_, _ = fmt.Fprintf(os.Stderr, "invalid -contract address: %s\n", *contract)
			os.Exit(1)
		}
		cfg.Contract = common.HexToAddress(*contract)
	}
	maxExposure, err := wei.ToWei(*exposure)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid -max-exposure: %v\n", err)
		os.Exit(1)
	}
	cfg.MaxExposure = maxExposure

	a, err := app.New(*home, cfg)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "init app: %v\n", err)
		os.Exit(1)
	}

	srv, err := server.NewServer(*addr, *transport, a)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "start abci server: %v\n", err)
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "abci server start: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = srv.Stop() }()

	// Wait for signal.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}

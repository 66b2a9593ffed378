// Command veilswapd runs a confidential swap engine node: an in-process
// encryption capability, a decryption oracle client, the reserve ledger and
// an external pool adapter, with an optional badger audit journal.
//
// Usage:
//
//	veilswapd [flags]
//
// Flags:
//
//	--config   Path to a config file (optional; VEILSWAP_* env vars override)
//	--dev      Self-contained mode: run an in-process decryption oracle
//	--version  Print version and exit
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/veilswap/veilswap/amm"
	"github.com/veilswap/veilswap/audit"
	"github.com/veilswap/veilswap/batch"
	"github.com/veilswap/veilswap/config"
	"github.com/veilswap/veilswap/crypto"
	"github.com/veilswap/veilswap/engine"
	"github.com/veilswap/veilswap/fhe"
	"github.com/veilswap/veilswap/log"
	"github.com/veilswap/veilswap/oracle"
)

// Build-time version info, overridable with ldflags:
//
//	go build -ldflags "-X main.version=v0.2.0"
var version = "v0.1.0-dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

// run is the actual entry point, returning an exit code.
func run(args []string) int {
	fs := flag.NewFlagSet("veilswapd", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "path to config file")
	devMode := fs.Bool("dev", false, "run an in-process decryption oracle")
	showVersion := fs.Bool("version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *showVersion {
		fmt.Printf("veilswapd %s\n", version)
		return 0
	}

	keeper := fhe.NewKeeper()

	// In dev mode a freshly keyed in-process oracle overrides the configured
	// callback address, so a config file is usable with just operator keys.
	var localOracle *oracle.LocalOracle
	if *devMode {
		key, err := crypto.GenerateKey()
		if err != nil {
			fmt.Fprintf(os.Stderr, "veilswapd: oracle key: %v\n", err)
			return 1
		}
		localOracle = oracle.NewLocalOracle(keeper, key)
		os.Setenv("VEILSWAP_ORACLE_ADDRESS", localOracle.Address().Hex())
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "veilswapd: %v\n", err)
		return 1
	}

	logger := log.New(log.ParseLevel(cfg.LogLevel))
	log.SetDefault(logger)
	logger.Info("veilswapd starting", "version", version,
		"oracle", cfg.OracleAddress.Hex(), "dev", *devMode,
		"operators", len(cfg.OperatorPubkeys), "quorum", cfg.Quorum,
		"slippage_bps", cfg.SlippageBps)

	client := oracle.NewClient(cfg.OracleAddress)
	pool := amm.NewConstantProductPool()

	eng, err := engine.New(engine.Config{
		SlippageBps: cfg.SlippageBps,
		Operators:   &batch.OperatorSet{Pubkeys: cfg.OperatorPubkeys, Quorum: cfg.Quorum},
		EventBuffer: cfg.EventBuffer,
	}, keeper, client, pool)
	if err != nil {
		logger.Error("engine init failed", "err", err)
		return 1
	}

	if cfg.AuditDir != "" {
		journal, err := audit.Open(cfg.AuditDir)
		if err != nil {
			logger.Error("audit journal open failed", "dir", cfg.AuditDir, "err", err)
			return 1
		}
		defer journal.Close()
		sub := journal.Follow(eng.Bus())
		defer sub.Unsubscribe()
		logger.Info("audit journal open", "dir", cfg.AuditDir, "seq", journal.Seq())
	}

	stop := make(chan struct{})
	if localOracle != nil {
		go answerLoop(localOracle, client, eng, logger, stop)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	logger.Info("shutting down", "signal", s.String())
	close(stop)
	eng.Bus().Close()
	return 0
}

// answerLoop polls the client for pending decryption requests and feeds the
// signed callbacks back into the engine, standing in for the external
// threshold committee.
func answerLoop(svc *oracle.LocalOracle, client *oracle.Client, eng *engine.Engine, logger *log.Logger, stop <-chan struct{}) {
	tick := time.NewTicker(250 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-stop:
			return
		case <-tick.C:
			for _, req := range client.Pending() {
				cb, err := svc.Answer(req)
				if err != nil {
					logger.Error("oracle answer failed", "request", req.ID.Hex(), "err", err)
					continue
				}
				if err := eng.HandleDecryptionCallback(cb); err != nil {
					logger.Warn("callback rejected", "request", req.ID.Hex(), "err", err)
				}
			}
		}
	}
}

package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lyxmarket/config"
	"lyxmarket/core/events"
	"lyxmarket/core/types"
	"lyxmarket/crypto"
	"lyxmarket/native/market"
	"lyxmarket/native/royalty"
	"lyxmarket/observability/logging"
	"lyxmarket/rpc"
	"lyxmarket/state"
	"lyxmarket/storage"
)

// slogEmitter forwards marketplace events to the structured logger.
type slogEmitter struct {
	logger *slog.Logger
}

func (e slogEmitter) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	attrs := []any{slog.String("type", evt.EventType())}
	if carrier, ok := evt.(interface{ Event() *types.Event }); ok {
		if payload := carrier.Event(); payload != nil {
			for key, value := range payload.Attributes {
				attrs = append(attrs, slog.String(key, value))
			}
		}
	}
	e.logger.Info("market event", attrs...)
}

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	devAccount := flag.Bool("dev-account", false, "DEV ONLY: generate and fund a throwaway account at startup")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("LYXMARKET_ENV"))
	logger := logging.Setup("lyxmarketd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	manager := state.NewManager(db)
	emitter := slogEmitter{logger: logger}

	registry := market.NewRegistry()
	registry.SetState(manager)
	registry.SetAssets(manager)
	registry.SetEmitter(emitter)

	ledger := market.NewLedger()
	ledger.SetState(manager)
	ledger.SetEmitter(emitter)

	engine := market.NewEngine(registry, ledger)
	engine.SetState(manager)
	engine.SetAssets(manager)
	engine.SetResolver(royalty.NewResolver(manager))
	engine.SetEmitter(emitter)
	engine.SetConfirmTimeout(cfg.ConfirmTimeoutSecs)

	if cfg.FeeRecipient != "" {
		recipient, err := cfg.FeeRecipientBytes()
		if err != nil {
			logger.Error("Invalid fee recipient", slog.Any("error", err))
			os.Exit(1)
		}
		engine.SetFeeRecipient(recipient)
		engine.SetFeeBps(cfg.FeeBps)
	}
	if cfg.Operator != "" {
		operator, err := cfg.OperatorBytes()
		if err != nil {
			logger.Error("Invalid operator address", slog.Any("error", err))
			os.Exit(1)
		}
		engine.SetOperator(operator)
	}

	if *devAccount {
		key, err := crypto.GeneratePrivateKey()
		if err != nil {
			panic(fmt.Sprintf("Failed to generate dev account: %v", err))
		}
		addr := key.PubKey().Address()
		var funded [20]byte
		copy(funded[:], addr.Bytes())
		balance, _ := new(big.Int).SetString("1000000000000000000000", 10)
		if err := manager.Credit(funded, balance); err != nil {
			panic(fmt.Sprintf("Failed to fund dev account: %v", err))
		}
		logger.Warn("Funded throwaway dev account",
			slog.String("address", addr.String()),
			slog.String("privateKey", hex.EncodeToString(key.Bytes())))
	}

	server := rpc.NewServer(engine, registry, manager)
	mux := http.NewServeMux()
	mux.HandleFunc("/", server.Handle)
	mux.Handle("/metrics", promhttp.Handler())

	logger.Info("RPC server listening",
		slog.String("address", cfg.RPCAddress),
		slog.String("env", env))
	if err := http.ListenAndServe(cfg.RPCAddress, mux); err != nil {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

// Command monitor runs the liquidation detection service: it tracks
// confirmed oracle prices from chain logs, projects account health under
// pending transmit transactions, and emits liquidation candidates before
// the price update lands.
//
// How to run:
//
//	go run ./cmd/monitor --rpc-url $ETH_RPC_URL --ws-url $ETH_WS_URL \
//	    --etherscan-key $ETHERSCAN_KEY --assets 0xAsset:0xSource,...
package main

import (
	"context"
	"flag"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	ethclients "github.com/Iwinswap/iwinswap-ethclients"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	liquidations "github.com/aknirmal90/liquidations-v2-sub000"
	"github.com/aknirmal90/liquidations-v2-sub000/alert"
	"github.com/aknirmal90/liquidations-v2-sub000/audit"
	"github.com/aknirmal90/liquidations-v2-sub000/calls"
	"github.com/aknirmal90/liquidations-v2-sub000/detector"
	"github.com/aknirmal90/liquidations-v2-sub000/events"
	"github.com/aknirmal90/liquidations-v2-sub000/explorer"
	"github.com/aknirmal90/liquidations-v2-sub000/kinds"
	"github.com/aknirmal90/liquidations-v2-sub000/oracle"
	"github.com/aknirmal90/liquidations-v2-sub000/projector"
	"github.com/aknirmal90/liquidations-v2-sub000/verifier"
)

const maxConcurrentCalls = 10

func main() {
	rpcURL := flag.String("rpc-url", "", "Ethereum RPC URL (required)")
	wsURL := flag.String("ws-url", "", "Ethereum websocket URL for subscriptions (required)")
	etherscanURL := flag.String("etherscan-url", "https://api.etherscan.io/api", "Contract explorer API URL")
	etherscanKey := flag.String("etherscan-key", "", "Contract explorer API key")
	assets := flag.String("assets", "", "Tracked assets as asset:source pairs (comma-separated)")
	auditPath := flag.String("audit-path", "audit.db", "Path to the component audit database")
	webhookURL := flag.String("webhook-url", "", "Alert webhook URL (optional)")
	metricsPort := flag.String("metrics-port", ":9090", "Prometheus metrics port")
	verifyFreq := flag.Duration("verify-frequency", 30*time.Second, "Balance verification frequency")
	pruneFreq := flag.Duration("prune-frequency", 10*time.Minute, "Delisted asset pruning frequency")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if *rpcURL == "" || *wsURL == "" {
		logger.Error("RPC URL and websocket URL are required")
		flag.Usage()
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("Connecting to RPC...", "url", *rpcURL)
	client, err := ethclient.Dial(*rpcURL)
	if err != nil {
		logger.Error("Failed to connect to RPC", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	chainID, err := client.ChainID(ctx)
	if err != nil {
		logger.Error("Failed to get chain ID", "error", err)
		os.Exit(1)
	}
	logger.Info("Connected", "chainID", chainID)

	wsRPC, err := rpc.DialContext(ctx, *wsURL)
	if err != nil {
		logger.Error("Failed to connect to websocket endpoint", "error", err)
		os.Exit(1)
	}
	defer wsRPC.Close()
	wsClient := ethclient.NewClient(wsRPC)

	getClient := func() (ethclients.ETHClient, error) { return client, nil }

	var alerter *alert.WebhookAlerter
	if *webhookURL != "" {
		alerter = alert.NewWebhookAlerter(*webhookURL, logger)
	}

	explorerClient := explorer.NewClient(*etherscanURL, *etherscanKey)
	kindCache := kinds.NewCache(explorerClient.ContractSource, func(addr common.Address, contractName string) {
		logger.Warn("Unsupported price source", "source", addr.Hex(), "contract", contractName)
		if alerter != nil {
			if err := alerter.AlertOnUnsupportedSource(ctx, addr, contractName); err != nil {
				logger.Error("Failed to send unsupported source alert", "error", err)
			}
		}
	})

	resolver, err := oracle.NewResolver(kindCache, oracle.NewComponentCache(), getClient, logger)
	if err != nil {
		logger.Error("Failed to build resolver", "error", err)
		os.Exit(1)
	}

	auditLog, err := audit.NewLog(*auditPath, nil)
	if err != nil {
		logger.Error("Failed to open audit log", "path", *auditPath, "error", err)
		os.Exit(1)
	}
	defer auditLog.Close()

	store := projector.NewStore()

	// The projector reads confirmed prices through the system, which is
	// constructed afterwards; the closure defers the dereference.
	var system *liquidations.LiquidationSystem
	proj, err := projector.NewProjector(store, func(asset common.Address) (*big.Int, bool) {
		return system.HistoricalPrice(asset)
	})
	if err != nil {
		logger.Error("Failed to build projector", "error", err)
		os.Exit(1)
	}

	// The best-candidate rows are precomputed by an external feed; the
	// table is the hand-off point it writes into.
	candidates := detector.NewCandidateTable()
	det, err := detector.NewDetector(candidates.Candidates, func(d detector.Detection) {
		logger.Info("Liquidation candidate",
			"user", d.User.Hex(),
			"collateral_asset", d.CollateralAsset.Hex(),
			"debt_asset", d.DebtAsset.Hex(),
			"debt_to_cover", d.DebtToCover,
			"profit", d.Profit,
			"current_hf", d.CurrentHealthFactor,
			"predicted_hf", d.PredictedHealthFactor,
			"tx", d.TransmissionHash.Hex(),
		)
		if alerter != nil {
			if err := alerter.AlertOnLiquidationCandidate(ctx, d.User, d.CurrentHealthFactor, d.PredictedHealthFactor, d.TransmissionHash); err != nil {
				logger.Error("Failed to send candidate alert", "error", err)
			}
		}
	})
	if err != nil {
		logger.Error("Failed to build detector", "error", err)
		os.Exit(1)
	}

	ver, err := verifier.NewVerifier(store, calls.NewBatchCaller(maxConcurrentCalls), getClient)
	if err != nil {
		logger.Error("Failed to build verifier", "error", err)
		os.Exit(1)
	}

	newBlocks := make(chan *types.Block, 16)
	pendingTransmissions := make(chan oracle.TransactionObservation, 64)

	cfg := &liquidations.Config{
		SystemName:           "aave_v3_mainnet",
		PrometheusReg:        prometheus.DefaultRegisterer,
		NewBlockEventer:      newBlocks,
		PendingTransmissions: pendingTransmissions,
		GetClient:            getClient,
		Resolve:              resolver.Resolve,
		RefreshCap:           resolver.MaxCap,
		ContractKind: func(ctx context.Context, source common.Address) (kinds.Kind, error) {
			info, err := kindCache.ContractInfo(ctx, source)
			if err != nil {
				return kinds.KindUnknown, err
			}
			return info.Kind, nil
		},
		UnderlyingSources: resolver.UnderlyingSources,
		UpdatedInBlock:    events.UpdatedSourcesInBlock,
		ApplyPositions: func(logs []types.Log) (int, int) {
			return events.ApplyPositionEvents(logs, store)
		},
		Project:       proj.Project,
		RefreshHealth: proj.RefreshHealthFactors,
		RecordDetections: func(source common.Address, txHash common.Hash, updatedAssets []common.Address, users []projector.AtRiskUser) int {
			return len(det.Record(source, txHash, updatedAssets, users))
		},
		AppendAudit: auditLog.Append,
		VerifyUsers: func(ctx context.Context, users []common.Address) (int, error) {
			drifts, err := ver.VerifyUsers(ctx, users)
			return len(drifts), err
		},
		InDelistedList: func(common.Address) bool { return false },
		ErrorHandler:   func(error) {},
		TestBloom: func(b types.Bloom) bool {
			return events.AnswerUpdatedInBloom(b) || events.PositionEventInBloom(b)
		},
		FilterTopics: [][]common.Hash{append([]common.Hash{
			events.AnswerUpdatedEvent, events.PriceCapUpdatedEvent, events.CapParametersUpdatedEvent,
		}, events.PoolTopics...)},
		PruneFrequency:  *pruneFreq,
		VerifyFrequency: *verifyFreq,
		LogMaxRetries:   3,
		LogRetryDelay:   200 * time.Millisecond,
		Logger:          logger,
	}

	system, err = liquidations.NewLiquidationSystem(ctx, cfg)
	if err != nil {
		logger.Error("Failed to start liquidation system", "error", err)
		os.Exit(1)
	}

	resolver.SetNotifyDegraded(func(source common.Address, field string, age time.Duration) {
		system.NoteDegradedResolution()
		if alerter != nil {
			if err := alerter.AlertOnDegradedResolution(ctx, source, field, age); err != nil {
				logger.Error("Failed to send degraded resolution alert", "error", err)
			}
		}
	})

	registered := 0
	for _, pair := range strings.Split(*assets, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.Split(pair, ":")
		if len(parts) != 2 || !common.IsHexAddress(parts[0]) || !common.IsHexAddress(parts[1]) {
			logger.Warn("Ignoring invalid asset pair", "pair", pair)
			continue
		}
		asset, source := common.HexToAddress(parts[0]), common.HexToAddress(parts[1])
		if err := system.RegisterAsset(ctx, asset, source); err != nil {
			logger.Error("Failed to register asset", "asset", asset.Hex(), "source", source.Hex(), "error", err)
			continue
		}
		registered++
	}
	logger.Info("Assets registered", "count", registered)

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		logger.Info("Metrics server started", "port", *metricsPort)
		if err := http.ListenAndServe(*metricsPort, nil); err != nil {
			logger.Error("Metrics server error", "error", err)
		}
	}()

	go streamBlocks(ctx, logger, wsClient, newBlocks)
	go streamPendingTransmissions(ctx, logger, wsRPC, pendingTransmissions)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Received shutdown signal", "signal", sig)
		cancel()
	case <-ctx.Done():
	}
}

// streamBlocks subscribes to new heads and feeds full blocks to the
// system's confirmed path. Subscription failures are retried with backoff.
func streamBlocks(ctx context.Context, logger *slog.Logger, client *ethclient.Client, out chan<- *types.Block) {
	for {
		if ctx.Err() != nil {
			return
		}

		heads := make(chan *types.Header, 16)
		sub, err := client.SubscribeNewHead(ctx, heads)
		if err != nil {
			logger.Error("Failed to subscribe to new heads, retrying", "error", err)
			select {
			case <-time.After(5 * time.Second):
				continue
			case <-ctx.Done():
				return
			}
		}

		for {
			select {
			case head := <-heads:
				block, err := client.BlockByHash(ctx, head.Hash())
				if err != nil {
					logger.Warn("Failed to fetch block body", "block", head.Number.Uint64(), "error", err)
					continue
				}
				select {
				case out <- block:
				default:
					logger.Warn("Block channel full, dropping block", "block", block.NumberU64())
				}
			case err := <-sub.Err():
				logger.Error("Head subscription failed, resubscribing", "error", err)
				sub.Unsubscribe()
				goto resubscribe
			case <-ctx.Done():
				sub.Unsubscribe()
				return
			}
		}
	resubscribe:
	}
}

// streamPendingTransmissions watches the mempool for oracle transmit calls
// and feeds decoded observations to the system's prediction path.
func streamPendingTransmissions(ctx context.Context, logger *slog.Logger, wsRPC *rpc.Client, out chan<- oracle.TransactionObservation) {
	gc := gethclient.New(wsRPC)
	for {
		if ctx.Err() != nil {
			return
		}

		txs := make(chan *types.Transaction, 256)
		sub, err := gc.SubscribeFullPendingTransactions(ctx, txs)
		if err != nil {
			logger.Error("Failed to subscribe to pending transactions, retrying", "error", err)
			select {
			case <-time.After(5 * time.Second):
				continue
			case <-ctx.Done():
				return
			}
		}

		for {
			select {
			case tx := <-txs:
				obs, ok := events.PendingTransmission(tx, time.Now())
				if !ok {
					continue
				}
				select {
				case out <- obs:
				default:
					logger.Warn("Pending transmission channel full, dropping", "tx", tx.Hash().Hex())
				}
			case err := <-sub.Err():
				logger.Error("Pending transaction subscription failed, resubscribing", "error", err)
				sub.Unsubscribe()
				goto resubscribe
			case <-ctx.Done():
				sub.Unsubscribe()
				return
			}
		}
	resubscribe:
	}
}
